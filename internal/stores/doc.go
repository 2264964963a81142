// Package stores holds small Redis-backed stores that sit beside the engine
// rather than inside it. Today that is the captcha challenge store.
package stores
