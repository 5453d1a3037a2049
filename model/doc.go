// Package model defines the provider-agnostic abstractions for talking to the
// language model that backs every planner agent.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Normalize tool / function call representation (ToolDefinition, ToolCall)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate deterministic tests (MockModel, ScriptedModel)
//
// Providers (OpenAI, Anthropic) implement the Model interface from this
// package so agents and flows remain decoupled from vendor SDKs.
package model
