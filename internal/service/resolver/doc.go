// Package resolver turns the release API hostname into a reachable target.
//
// It walks an ordered list of DNS server labels, resolves the hostname,
// probes the resulting address over TCP and builds the API URL. In the
// default system mode every label resolves through the system resolver and
// only serves as a log marker; the direct mode sends the query to the
// labelled server itself.
package resolver
