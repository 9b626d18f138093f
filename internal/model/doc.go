// Package model defines the domain types shared across the monitor:
// discovered markets, normalized feed updates, and the persisted
// opportunity and snapshot records.
package model
