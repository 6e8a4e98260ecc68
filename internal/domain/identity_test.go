package domain

import (
	"testing"
	"time"
)

func TestCanonicalJSONSortsKeys(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2, "c": 3}
	out, err := CanonicalJSON(a)
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	want := `{"a":2,"b":1,"c":3}`
	if string(out) != want {
		t.Errorf("got %s, want %s", out, want)
	}
}

func TestCanonicalJSONDeterministic(t *testing.T) {
	payload := AttestationPayload{
		DeviceID:  "device-1",
		IssuedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpiresAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	a, err1 := CanonicalJSON(payload)
	b, err2 := CanonicalJSON(payload)
	if err1 != nil || err2 != nil {
		t.Fatalf("errors: %v %v", err1, err2)
	}
	if string(a) != string(b) {
		t.Errorf("expected identical canonical bytes, got %s vs %s", a, b)
	}
}

func TestCanonicalJSONNestedObjects(t *testing.T) {
	v := map[string]any{
		"outer": map[string]any{"z": 1, "a": 2},
		"list":  []any{3, 1, 2},
	}
	out, err := CanonicalJSON(v)
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	want := `{"list":[3,1,2],"outer":{"a":2,"z":1}}`
	if string(out) != want {
		t.Errorf("got %s, want %s", out, want)
	}
}

func TestPairingSessionExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	session := PairingSession{ExpiresAt: now.Add(-time.Minute)}
	if !session.Expired(now) {
		t.Error("expected session to be expired")
	}
	session.ExpiresAt = now.Add(time.Minute)
	if session.Expired(now) {
		t.Error("expected session to still be valid")
	}
}
