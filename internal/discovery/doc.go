// Package discovery enumerates the units of work of a source: item pages
// reached through pagination, category pages listed on an index, or rows of
// a tabular export. Every crawler returns locators deduplicated and in
// discovery order, and reports an unreachable entry point as
// harvest.ErrEntryUnreachable.
package discovery
