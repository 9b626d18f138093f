// Package gamma provides access to the Polymarket Gamma REST API for
// market discovery, plus the small CLOB REST surface (price and book
// lookups) used by the one-shot scan tool.
package gamma
