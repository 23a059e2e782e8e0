// Package watch implements the hiding-detection workflow: it snapshots the
// visible history of every author it sees, publishes each day's snapshots to
// a wiki page and ingests the externally computed verdicts back into a
// per-author cache.
package watch

import (
	"context"
	"time"

	"github.com/historyhiders/hidewatch/internal/database"
	"github.com/historyhiders/hidewatch/internal/moderation"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Deps are the collaborators a Watcher is built from. Audit is optional.
type Deps struct {
	Content   ContentAPI
	Documents Documents
	Store     database.Store
	Scheduler Scheduler
	Audit     moderation.Store
}

// Watcher ties the workflow to its collaborators. It holds no mutable state
// of its own; every method is safe for concurrent use.
type Watcher struct {
	cfg       Config
	content   ContentAPI
	docs      Documents
	kv        database.Store
	scheduler Scheduler
	audit     moderation.Store
}

// New creates a Watcher.
func New(cfg Config, deps Deps) *Watcher {
	return &Watcher{
		cfg:       cfg,
		content:   deps.Content,
		docs:      deps.Documents,
		kv:        deps.Store,
		scheduler: deps.Scheduler,
		audit:     deps.Audit,
	}
}

// Config returns the watcher's configuration.
func (w *Watcher) Config() Config {
	return w.cfg
}

type actorKey struct{}

// AutoModActor is recorded in the audit log for actions nobody triggered.
const AutoModActor = "automod"

// WithActor attaches the moderator performing an action to ctx.
func WithActor(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, actorKey{}, username)
}

func actorFrom(ctx context.Context) string {
	if name, ok := ctx.Value(actorKey{}).(string); ok && name != "" {
		return name
	}
	return AutoModActor
}

func (w *Watcher) record(ctx context.Context, action moderation.AuditAction, target, reason string, details map[string]string) {
	if w.audit == nil {
		return
	}
	actor := actorFrom(ctx)
	entry := moderation.AuditEntry{
		ID:        uuid.NewString(),
		Action:    action,
		Actor:     actor,
		Target:    target,
		Reason:    reason,
		Details:   details,
		Timestamp: time.Now().UTC(),
		AutoMod:   actor == AutoModActor,
	}
	if err := w.audit.LogAction(ctx, entry); err != nil {
		log.Warn().Err(err).Str("action", string(action)).Msg("Failed to write audit log entry")
	}
}
