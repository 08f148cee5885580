// Package poller implements the Column Poller component.
//
// The Column Poller:
//   - Fetches a column's source immediately on start, then on the interval
//     the adapter recommends plus random jitter
//   - Keeps at most one fetch in flight per column
//   - Replaces the visible submissions atomically on success and keeps the
//     previous ones on failure
//   - Contains adapter and handler panics to the column that raised them
//   - Guarantees no state change and no handler call after Stop returns
package poller
