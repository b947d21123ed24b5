// Package app wires one harvest run end to end: scrape into the raw store,
// clean into the clean store, write the dataset card, publish, and announce.
//
// Each source has its own binary under cmd/ that calls Main with its ID.
// Entry points take no flags; an optional config file is named by the
// HARVEST_CONFIG environment variable and every key can be overridden with a
// HARVEST_ variable.
package app
