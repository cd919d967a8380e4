package trace

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"chordring/internal/chordid"
)

type traceKey struct{}

// GenerateTraceID builds a globally unique trace id in the form
//
//	<nodeHash>-<ULID>
func GenerateTraceID(nodeHash string) string {
	t := time.Now().UTC()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	return fmt.Sprintf("%s-%s", nodeHash, id.String())
}

// AttachTraceID generates a trace id scoped to nodeHash and stores it
// in ctx, returning the new context and the id.
func AttachTraceID(ctx context.Context, nodeHash chordid.Hash) (context.Context, string) {
	traceID := GenerateTraceID(nodeHash.ToHexString())
	return context.WithValue(ctx, traceKey{}, traceID), traceID
}

// GetTraceID retrieves the trace id from ctx, or "" if none is set.
func GetTraceID(ctx context.Context) string {
	if v := ctx.Value(traceKey{}); v != nil {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}
	return ""
}
