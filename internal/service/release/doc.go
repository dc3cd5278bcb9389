// Package release fetches the latest release descriptor from the release API.
//
// The API may be reached by IP address after the resolver's preflight, so
// certificate verification is disabled and the real hostname travels in the
// Host header and as TLS SNI.
package release
