// Package hooks holds the request interceptors that wrap the site handler.
//
// LiveToken fills in the session liveness cookie for clients that did not
// send one. SecurityHeaders sets the standard response hardening headers.
package hooks
