package sqlstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
)

// logHook logs every statement bun executes.
type logHook struct {
	logger *slog.Logger
}

var _ bun.QueryHook = (*logHook)(nil)

func (h *logHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *logHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	attrs := []any{
		"query", event.Query,
		"duration", time.Since(event.StartTime),
	}
	if event.Err != nil {
		h.logger.WarnContext(ctx, "sqlstore: query failed", append(attrs, "error", event.Err)...)
		return
	}
	h.logger.DebugContext(ctx, "sqlstore: query", attrs...)
}
