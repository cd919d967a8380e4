package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestWriteReadEnvelopeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := Envelope{Type: TypePing, CorrID: 7, Payload: []byte("hello")}
	if err := WriteEnvelope(&buf, want); err != nil {
		t.Fatalf("WriteEnvelope: %v", err)
	}
	got, err := ReadEnvelope(&buf)
	if err != nil {
		t.Fatalf("ReadEnvelope: %v", err)
	}
	if got.Type != want.Type || got.CorrID != want.CorrID || !bytes.Equal(got.Payload, want.Payload) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestReadEnvelopeEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	want := Envelope{Type: TypeNotifyReq, CorrID: 1}
	if err := WriteEnvelope(&buf, want); err != nil {
		t.Fatalf("WriteEnvelope: %v", err)
	}
	got, err := ReadEnvelope(&buf)
	if err != nil {
		t.Fatalf("ReadEnvelope: %v", err)
	}
	if len(got.Payload) != 0 {
		t.Fatalf("expected empty payload, got %v", got.Payload)
	}
}

func TestReadEnvelopeBadPrefix(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteEnvelope(&buf, Envelope{Type: TypePing})
	b := buf.Bytes()
	b[0] ^= 0xFF
	_, err := ReadEnvelope(bytes.NewReader(b))
	if !errors.Is(err, ErrNoPrefix) {
		t.Fatalf("expected ErrNoPrefix, got %v", err)
	}
}

func TestReadEnvelopeBadSuffix(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteEnvelope(&buf, Envelope{Type: TypePing})
	b := buf.Bytes()
	b[len(b)-1] ^= 0xFF
	_, err := ReadEnvelope(bytes.NewReader(b))
	if !errors.Is(err, ErrNoSuffix) {
		t.Fatalf("expected ErrNoSuffix, got %v", err)
	}
}

func TestReadEnvelopeBadChecksum(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteEnvelope(&buf, Envelope{Type: TypePing, Payload: []byte("x")})
	b := buf.Bytes()
	// Flip the payload byte (prefix 4 + header 12 = offset 16) without
	// touching magic, version or the length field.
	b[16] ^= 0xFF
	_, err := ReadEnvelope(bytes.NewReader(b))
	if !errors.Is(err, ErrBadChecksum) {
		t.Fatalf("expected ErrBadChecksum, got %v", err)
	}
}

func TestReadEnvelopeWrongVersion(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteEnvelope(&buf, Envelope{Type: TypePing})
	b := buf.Bytes()
	b[5] = 0xFF // version low byte, within header after prefix
	_, err := ReadEnvelope(bytes.NewReader(b))
	if err == nil {
		t.Fatalf("expected an error for mismatched version/checksum")
	}
}

func TestReadEnvelopeTooShort(t *testing.T) {
	_, err := ReadEnvelope(bytes.NewReader([]byte{'C', 'H'}))
	if !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}
