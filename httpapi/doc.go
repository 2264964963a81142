// Package httpapi serves mpauth.Engine over JSON/HTTP.
//
// Every response body is an [Envelope]: code 0 on success, 1 on a business
// failure, or the identity provider's own error code when it rejected a login
// code. HTTP status codes follow the failure class (401 for rejected tokens
// and credentials, 423 for locked accounts, 429 for throttled callers, 503
// and 504 for backend outages).
//
// Routes:
//
//	GET  /api/captcha
//	POST /api/signup
//	POST /api/signin
//	POST /api/signout          (bearer)
//	POST /api/password/reset   (bearer)
//	GET  /api/me               (bearer)
//	POST /api/external/signup
//	POST /api/external/signin
//	POST /api/external/decrypt
package httpapi
