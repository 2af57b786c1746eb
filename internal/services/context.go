package services

import "context"

type contextKey string

const (
	groupKeyContextKey contextKey = "reshelve.group_key"
	stageContextKey    contextKey = "reshelve.stage"
)

// WithGroupKey attaches the active file-group key to the context so service
// logs can be correlated back to the group being processed.
func WithGroupKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, groupKeyContextKey, key)
}

// GroupKeyFromContext returns the group key attached by WithGroupKey.
func GroupKeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(groupKeyContextKey).(string)
	return key, ok
}

// WithStage attaches the active pipeline stage name to the context.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageContextKey, stage)
}

// StageFromContext returns the stage name attached by WithStage.
func StageFromContext(ctx context.Context) (string, bool) {
	stage, ok := ctx.Value(stageContextKey).(string)
	return stage, ok
}
