package telemetry

import (
	"go.opentelemetry.io/otel/attribute"

	"chordring/internal/chordid"
)

// HashAttributes renders a ring identifier as a set of span/resource
// attributes under the given prefix, in both hex and decimal form.
func HashAttributes(prefix string, h chordid.Hash) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(prefix+".hex", h.ToHexString()),
		attribute.String(prefix+".dec", h.Int().String()),
	}
}
