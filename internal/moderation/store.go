package moderation

import (
	"context"
)

// Store defines the persistence interface for moderation data.
// Implementations must be safe for concurrent use.
type Store interface {
	// Audit log
	LogAction(ctx context.Context, entry AuditEntry) error
	ListAuditLog(ctx context.Context, limit int) ([]AuditEntry, error)
}
