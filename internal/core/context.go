package core

import "context"

type contextKey string

const ctxKeyOrigin contextKey = "save_origin"

// Origin describes where a save request came from. It is attached to the
// save context and reported in the save log line.
type Origin struct {
	ClientIP  string
	UserAgent string
	BodyBytes int64
}

// WithOrigin returns a copy of ctx carrying o.
func WithOrigin(ctx context.Context, o Origin) context.Context {
	return context.WithValue(ctx, ctxKeyOrigin, o)
}

// OriginFrom extracts the save origin from ctx.
func OriginFrom(ctx context.Context) (Origin, bool) {
	o, ok := ctx.Value(ctxKeyOrigin).(Origin)
	return o, ok
}

func (o Origin) logFields() []any {
	var fields []any
	if o.ClientIP != "" {
		fields = append(fields, "client_ip", o.ClientIP)
	}
	if o.UserAgent != "" {
		fields = append(fields, "user_agent", o.UserAgent)
	}
	if o.BodyBytes > 0 {
		fields = append(fields, "body_bytes", o.BodyBytes)
	}
	return fields
}
