// Package types defines the core data types used throughout the storage system.
//
// Key types:
//   - Sample: one timestamped value of a metric (raw or rolled up)
//   - TierSpec: resolution period and capacity of one tier
//   - Record: a sample addressed to a metric and tier, as handed to the store
//   - Summary: aggregated statistics over a range of samples
package types
