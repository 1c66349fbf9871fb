// Package catalog keeps the set of marketable item ids.
//
// The catalog is loaded from the snapshot API at startup and refreshed on an
// interval. Full sweeps read it to know which items exist.
package catalog
