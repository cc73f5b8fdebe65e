package ports

import (
	"context"

	"github.com/deskbridge/deskbridge/internal/domain"
)

// SessionManager owns the target session lifecycle. A client moves from
// uninitialized to active exactly once per OpenSession, and CloseSession is
// idempotent so teardown paths can always call it.
type SessionManager interface {
	// OpenSession authenticates and stores the session token. Opening an
	// already-active session is an error.
	OpenSession(ctx context.Context) error

	// CloseSession invalidates the session. Closing a closed or never
	// opened session is a no-op.
	CloseSession(ctx context.Context) error
}

// ReferenceDirectory resolves target-side reference data by name.
type ReferenceDirectory interface {
	// LoadReferenceCache fetches the complete name→ID listing for kind and
	// swaps it in atomically. Concurrent readers keep seeing the previous
	// snapshot until the swap.
	LoadReferenceCache(ctx context.Context, kind domain.ReferenceKind) error

	// ResolveByName looks a name up in the loaded snapshot. It performs no
	// I/O and cannot fail; a miss is (0, false).
	ResolveByName(kind domain.ReferenceKind, name string) (int, bool)
}

// TicketWriter creates and mutates tickets on the target.
type TicketWriter interface {
	// CreateTicket creates a ticket and returns its new identifier.
	CreateTicket(ctx context.Context, fields map[string]any) (int, error)

	// UpdateTicket applies a partial update to an existing ticket.
	UpdateTicket(ctx context.Context, id int, fields map[string]any) error

	// AddFollowup attaches a dated comment to a ticket. An authorID of 0
	// leaves authorship to the session user.
	AddFollowup(ctx context.Context, ticketID, authorID int, content, date string) error

	// LinkItem associates an inventory item with a ticket.
	LinkItem(ctx context.Context, ticketID int, itemType string, itemID int) error

	// FindItemID resolves an inventory item by type and name; 0 with nil
	// error means not found.
	FindItemID(ctx context.Context, itemType, name string) (int, error)

	// EnsureCategory finds a category by name, creating it when absent,
	// and returns its identifier.
	EnsureCategory(ctx context.Context, name string) (int, error)

	// StatusNames returns the target's status name→identifier table.
	StatusNames(ctx context.Context) (map[string]int, error)

	// TypeNames returns the target's ticket type name→identifier table.
	TypeNames(ctx context.Context) (map[string]int, error)
}

// DocumentStore uploads attachment content and links it to tickets.
type DocumentStore interface {
	// UploadDocument stores one file and returns the document identifier.
	UploadDocument(ctx context.Context, filename string, data []byte) (int, error)

	// LinkDocument associates an uploaded document with a ticket.
	LinkDocument(ctx context.Context, docID, ticketID int) error
}

// Target aggregates everything the engine needs on the write side.
type Target interface {
	SessionManager
	ReferenceDirectory
	TicketWriter
	DocumentStore
}
