// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing sessions, events and run outputs. Not intended
// for production usage.
package testutil
