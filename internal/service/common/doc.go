// Package common holds helpers shared by several services.
//
// It provides an HTTP client wrapper with per-call timeouts and the
// first-success combinator used for every ordered fallback list (DNS server
// labels, mirror prefixes, release assets).
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
