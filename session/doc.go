// Package session houses concrete implementations of core.SessionStore. The
// interface itself (and the Session struct) live in the core package so that
// agents and the runner never depend on a concrete backend.
//
// The in-memory store below serves tests and single-process deployments; the
// redis sub-package keeps sessions across restarts and server replicas. Only
// the wiring layer decides which one to instantiate.
package session
