package services

import "context"

// ctxKey keeps these values private to this package.
type ctxKey int

const (
	itemIDKey ctxKey = iota
	stageKey
	requestIDKey
)

func withValue(ctx context.Context, key ctxKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func lookup(ctx context.Context, key ctxKey) (string, bool) {
	v, _ := ctx.Value(key).(string)
	return v, v != ""
}

// WithItemID tags ctx with the queue item being processed.
func WithItemID(ctx context.Context, id string) context.Context {
	return withValue(ctx, itemIDKey, id)
}

func ItemIDFromContext(ctx context.Context) (string, bool) { return lookup(ctx, itemIDKey) }

// WithStage tags ctx with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return withValue(ctx, stageKey, stage)
}

func StageFromContext(ctx context.Context) (string, bool) { return lookup(ctx, stageKey) }

// WithRequestID tags ctx with an API request correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) { return lookup(ctx, requestIDKey) }
