// Package monitor wires the feed, registry, detector, and store into
// the running daemon and serves the read-only status facade.
package monitor
