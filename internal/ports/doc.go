// Package ports defines the interfaces (ports) that connect the migration
// engine to infrastructure adapters.
//
// Ports are the boundaries between the application core and the outside
// world. They define what the engine needs from external systems without
// specifying how those needs are fulfilled.
//
// # Port Interfaces
//
//   - [Source]: Reads record pages and attachment content from the system
//     being migrated away from
//   - [Target]: Writes tickets, followups and documents to the destination
//     service desk
//   - [CheckpointStore]: Persists and loads migration progress
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// # Usage
//
// The engine (internal/engine) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them with concrete
// REST clients and file storage.
//
// This separation enables:
//   - Testing the batch loop with in-memory fakes
//   - Swapping either service client without changing engine logic
//   - Clear boundaries and dependency direction
package ports
