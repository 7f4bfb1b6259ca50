package middleware

import (
	"context"
	"strings"
	"unicode"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// CorrelationHeader carries the correlation identifier on requests and responses.
const CorrelationHeader = "X-Correlation-ID"

// correlationLocal is also read by the access log format.
const correlationLocal = "correlation_id"

// maxCorrelationIDLength bounds client supplied identifiers. They end up in
// logs, events and queued finalize jobs.
const maxCorrelationIDLength = 128

// correlationSources lists the request headers accepted as an identifier, in
// order of preference.
var correlationSources = []string{CorrelationHeader, fiber.HeaderXRequestID}

type correlationCtxKey struct{}

// CorrelationID assigns an identifier to every request, reusing a well formed
// one sent by the client. The identifier is echoed in CorrelationHeader and
// travels with the finalize job the request schedules.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := ""
		for _, header := range correlationSources {
			if id = normalizeCorrelationID(c.Get(header)); id != "" {
				break
			}
		}
		if id == "" {
			id = uuid.NewString()
		}

		c.Locals(correlationLocal, id)
		c.Set(CorrelationHeader, id)
		c.SetUserContext(context.WithValue(c.UserContext(), correlationCtxKey{}, id))
		return c.Next()
	}
}

// CorrelationIDFromContext returns the identifier stored in ctx, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationCtxKey{}).(string)
	return id
}

// RequestCorrelationID returns the identifier of the request handled by c.
func RequestCorrelationID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Locals(correlationLocal).(string); ok {
		return id
	}
	return CorrelationIDFromContext(c.UserContext())
}

// ContextWithCorrelation binds id to ctx. Workers use it to resume the
// identifier recorded on a queued job. Malformed identifiers are dropped.
func ContextWithCorrelation(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	id = normalizeCorrelationID(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationCtxKey{}, id)
}

func normalizeCorrelationID(value string) string {
	value = strings.TrimSpace(value)
	if len(value) > maxCorrelationIDLength {
		return ""
	}
	for _, r := range value {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return ""
		}
	}
	return value
}
