// Package domain contains the core domain entities and value objects for
// deskbridge.
//
// This package represents the innermost layer of the architecture. It has no
// dependencies on infrastructure concerns (HTTP, file system, logging) and
// contains only pure business logic.
//
// # Entities
//
//   - [Issue]: A single source record with the fields the migration reads
//   - [Batch]: One fetched page of records together with per-record outcomes
//   - [MissingEntity]: An identity that has no account on the target system
//
// # Design Principles
//
// Domain entities are:
//   - Immutable after construction (where practical)
//   - Free of infrastructure dependencies
//   - Focused on business rules and invariants
//   - Testable without mocks or external systems
package domain
