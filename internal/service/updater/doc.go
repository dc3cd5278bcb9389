// Package updater runs one update check for the launcher.
//
// It resolves and probes the release API host, fetches the latest release,
// compares its tag with the running version and, when the release is newer,
// downloads the package through the mirror list. A marker file in the output
// directory keeps two updaters from writing the same package at once.
package updater
