// Package payload decrypts and checks the encrypted user-data blobs that the
// identity provider hands to the mini-program client.
//
// The client forwards base64 ciphertext and IV; the key is the per-login
// session key obtained from the code exchange. The cipher is AES-CBC with
// PKCS#7 padding. Decryption never guesses: malformed base64, wrong key or IV
// length, a ciphertext that is not a whole number of blocks, or invalid
// padding all yield [ErrDecryption].
package payload
