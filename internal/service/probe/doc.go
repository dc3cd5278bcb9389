// Package probe checks whether an address accepts TCP connections.
package probe
