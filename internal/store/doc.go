// Package store keeps the latest poll result of every source.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [SourceResult]: Storage representation of a source poll and its widgets
//
// Only the latest result per source is kept; there is no history.
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers will miss updates rather than block the system).
package store
