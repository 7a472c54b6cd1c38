// Package stratum is a multi-tenant event-sourced storage and delivery
// engine.
//
// It combines an append-only event log with optimistic concurrency, a
// snapshot store, an embedded at-least-once message bus, and an idempotent
// consumer runtime that applies each event to a read model exactly once.
package stratum
