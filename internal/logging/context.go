package logging

import "context"

type sessionKey struct{}

type sessionAttrs struct {
	id      string
	docType string
}

// WithSession tags ctx with a capture session. Loggers add session_id and,
// when set, doc_type to every entry logged with the returned context.
func WithSession(ctx context.Context, sessionID, docType string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, sessionAttrs{id: sessionID, docType: docType})
}

// SessionFromContext returns the session id set by WithSession.
func SessionFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	a, ok := ctx.Value(sessionKey{}).(sessionAttrs)
	return a.id, ok
}

// contextArgs prepends the session attributes of ctx to args. Keys the
// caller passes explicitly win.
func contextArgs(ctx context.Context, args []any) []any {
	if ctx == nil {
		return args
	}
	a, ok := ctx.Value(sessionKey{}).(sessionAttrs)
	if !ok {
		return args
	}

	out := make([]any, 0, len(args)+4)
	if !hasKey(args, "session_id") {
		out = append(out, "session_id", a.id)
	}
	if a.docType != "" && !hasKey(args, "doc_type") {
		out = append(out, "doc_type", a.docType)
	}
	return append(out, args...)
}

func hasKey(args []any, key string) bool {
	for i := 0; i+1 < len(args); i += 2 {
		if k, ok := args[i].(string); ok && k == key {
			return true
		}
	}
	return false
}
