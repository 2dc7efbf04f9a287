// Package storage implements durable persistence of the statistics tiers.
//
// Architecture:
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│  Collector  │────▶│ Persistence │────▶│    Store    │
//	│   (tick)    │     │   (queue)   │     │ (log/tier)  │
//	└─────────────┘     └─────────────┘     └─────────────┘
//	                           │                   │
//	                           ▼                   ▼
//	                    ┌─────────────┐     ┌─────────────┐
//	                    │Backpressure │     │  Retention  │──▶ Parquet archive
//	                    └─────────────┘     └─────────────┘
//
// Every metric tier has its own append-only log of CRC-framed records split
// into segments. At startup LoadAll replays the logs into the in-memory
// tiers; a damaged record ends its segment and never fails startup.
// Retention deletes whole segments once all their samples have left the
// tier, optionally archiving them to Parquet first.
//
// The storage directory is optional. Without one the Service is a no-op and
// statistics live in memory only.
package storage
