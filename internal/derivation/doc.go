// Package derivation indexes compiled derivation entries and schedules them.
//
// A Collection answers "which entries must re-run for these changed fields"
// in time proportional to the number of changed fields plus the number of
// wildcard entries, independent of the total entry count. A Dispatcher
// consults the Collection on every change and routes the selected entries
// either to an immediate run or to a per-period debounce gate.
//
// The engine never interprets Expression: a Runner supplied by the host
// evaluates whatever entries it is handed.
package derivation
