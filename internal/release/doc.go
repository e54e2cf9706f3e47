// Package release defines the unified release record that every source
// adapter normalizes into, along with the dedup and merge helpers shared by
// the ingestion pipeline and its downstream consumers.
package release
