package ports

import (
	"context"

	"github.com/deskbridge/deskbridge/internal/domain"
)

// Source reads records from the system being migrated away from.
// Implementations handle pagination, authentication and retries internally.
type Source interface {
	// Search returns one page of records matching query, starting at
	// offset, plus the total number of matches. The page may be shorter
	// than limit on the last page.
	Search(ctx context.Context, query string, offset, limit int) ([]domain.Issue, int, error)

	// AttachmentContent downloads the raw bytes of one attachment.
	AttachmentContent(ctx context.Context, contentURL string) ([]byte, error)

	// ProjectStatuses lists the status names the project's workflows use.
	ProjectStatuses(ctx context.Context, project string) ([]string, error)

	// SecurityLevels lists the project's security level names.
	SecurityLevels(ctx context.Context, project string) ([]string, error)
}
