// Package firebase implements the session identity provider over the
// Identity Toolkit REST API, plus a JWKS backed validator for the ID
// tokens it mints.
//
// The provider keeps one signed in user in memory. ID tokens are exchanged
// lazily: CurrentIDToken refreshes through the secure token endpoint when
// the cached token is near expiry, so every outgoing request carries a
// token that will not expire mid flight.
package firebase
