// Package release holds the release descriptor returned by the release API
// and the rules for comparing a release tag with the running version.
package release
