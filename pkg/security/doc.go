// Package security implements the gates wrapped around the external
// surface: HMAC-signed bearer tokens, constant-time API key checks,
// and the public-path matcher. All crypto is stdlib.
package security
