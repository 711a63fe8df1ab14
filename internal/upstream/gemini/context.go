package gemini

import "context"

type apiKeyContextKey struct{}

// WithRequestAPIKey attaches a caller-supplied API key that overrides the
// client's configured key for requests made with ctx.
func WithRequestAPIKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, apiKeyContextKey{}, key)
}

func RequestAPIKeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(apiKeyContextKey{}).(string)
	return key
}
