// Package config defines the updater settings and provides helpers to load,
// validate and save them in YAML format.
//
// Settings are optional: without a file the updater runs with the built-in
// defaults (GitHub API host, the launcher repository, the DNS label list and
// the mirror prefix list). A file that exists is checked against an embedded
// JSON schema before it is decoded.
package config
