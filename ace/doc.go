// Package ace implements the playbook evolution cycle: mine recent turn and
// retrieval logs for candidate strategies (generate), grade the bullets that
// were active (reflect), then apply counters, additions and removals in one
// versioned write (curate). Cycles are idempotent within a minimum interval
// so re-running a nightly job is harmless.
package ace
