package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	for _, code := range []string{
		"", ErrProtoBadRequest, ErrBadRequest, ErrUnknownPiece,
		ErrUnknownID, ErrEmptyHistory, ErrRateLimit, ErrInternal,
	} {
		if !IsKnownCode(code) {
			t.Fatalf("code %q should be known", code)
		}
	}
	for _, code := range []string{"E_NOPE", "R_BLOCKED", "blocked"} {
		if IsKnownCode(code) {
			t.Fatalf("code %q should be unknown", code)
		}
	}
}

func TestIsKnownReason(t *testing.T) {
	for _, reason := range []string{
		"", ReasonInvalidShape, ReasonBlocked, ReasonUnsupported,
		ReasonFragile, ReasonNotStanding, ReasonUpsideDown,
	} {
		if !IsKnownReason(reason) {
			t.Fatalf("reason %q should be known", reason)
		}
	}
	for _, reason := range []string{"R_NOPE", "E_BAD_REQUEST"} {
		if IsKnownReason(reason) {
			t.Fatalf("reason %q should be unknown", reason)
		}
	}
}

func TestDecodeBase(t *testing.T) {
	m, err := DecodeBase([]byte(`{"type":"ACT","protocol_version":"1.0","actions":[]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Type != TypeAct || m.ProtocolVersion != Version {
		t.Fatalf("base = %+v", m)
	}
	if _, err := DecodeBase([]byte(`{`)); err == nil {
		t.Fatalf("malformed json must fail")
	}
}
