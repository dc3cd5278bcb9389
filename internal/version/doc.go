// Package version exposes build metadata for the updater.
//
// Version doubles as the "current version" the updater compares against the
// latest release tag, so release builds must inject it via ldflags:
//
//	go build -ldflags "-X github.com/oshokin/cul-updater/internal/version.Version=1.6.0"
package version
