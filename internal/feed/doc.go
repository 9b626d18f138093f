// Package feed owns the streaming connection to the Polymarket CLOB
// WebSocket. A Client wraps a single connection; the Feed session layer
// keeps subscriptions alive across reconnects and normalizes every
// inbound message kind into one BookUpdate shape.
package feed
