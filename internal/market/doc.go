// Package market owns the tracked-market state.
//
// The Table is the exclusive holder of per-market quote state and the
// instrument reverse index, guarded by a single mutex. The Registry
// refreshes the tracked set from Gamma discovery and diffs it against
// the Table. The Detector turns quote updates into opportunity window
// open and close events.
package market
