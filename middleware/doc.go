// Package middleware adapts mpauth.Engine to net/http.
//
// [Guard] reads the Authorization header, calls Engine.Validate and stores
// the resolved account in the request context, where handlers read it with
// [AuthResultFromContext]. [ClientIP] records the caller address for the
// engine's sign-in throttle.
//
// The package makes no authentication decisions of its own; every token is
// judged by Engine.Validate.
package middleware
