// Package discovery supplies candidate work ("initiatives") to the poll loop
// and filters it before anything runs.
//
// # Components
//
//  1. WorkSource - pluggable scan/execute contract
//  2. MultiSource - runs several sources concurrently, one slot per source
//  3. Partition - splits a scan into autonomous candidates and for-user items
//  4. Gate - decides per cycle whether discovery (or cleanup) runs at all
//  5. RecentSet - suppresses repeats of the same initiative id within a window
//  6. Feed - publishes the latest ScanReport by value for reporting consumers
//  7. FileSource - reads initiatives from a YAML file
//
// Nothing in this package executes an initiative on its own; execution is
// always requested by the poll loop after admission and approval checks.
package discovery
