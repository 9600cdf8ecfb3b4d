// Package api contains API service implementations.
//
// The rest subpackage exposes the passkey ceremonies over HTTP: it parses
// authenticator responses at the boundary, delegates to the ceremony
// service, and maps service errors to status codes. Transport concerns
// stay here so the ceremony logic remains protocol-independent.
package api
