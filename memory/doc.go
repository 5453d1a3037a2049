// Package memory contains concrete core.MemoryStore implementations plus the
// TurnRecorder hook that feeds them. The store interface and record types
// reside in the core package; select an implementation (in-memory here,
// MySQL in sqlstore) at wiring time.
//
// Recall is keyword based: queries and records are tokenized and a record
// scores by the share of query terms it contains.
package memory
