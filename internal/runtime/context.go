package runtime

import (
	"context"

	"github.com/squadbot/platform_core/internal/teammap"
)

type contextKey int

const resolutionKey contextKey = iota

// withResolution attaches the tenant resolution to the context before
// business services run.
func withResolution(ctx context.Context, res teammap.Resolution) context.Context {
	return context.WithValue(ctx, resolutionKey, res)
}

// TeamIDFromContext returns the team id attached by the pipeline.
func TeamIDFromContext(ctx context.Context) (string, bool) {
	res, ok := ResolutionFromContext(ctx)
	return res.TeamID, ok
}

// ResolutionFromContext returns the full tenant resolution, including the
// source layer and whether the match was exact.
func ResolutionFromContext(ctx context.Context) (teammap.Resolution, bool) {
	res, ok := ctx.Value(resolutionKey).(teammap.Resolution)
	return res, ok
}
