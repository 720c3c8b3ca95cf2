package crypto

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCanonicalizeJSON_SortsKeysAndShortensNumbers(t *testing.T) {
	got, err := CanonicalizeJSON([]byte(`{"rent": 1.50, "unit": {"z": true, "a": null}, "ids": [3, "x"], "sqm": 1e2, "tiny": 1e-9}`))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	want := `{"ids":[3,"x"],"rent":1.5,"sqm":100,"tiny":1e-09,"unit":{"a":null,"z":true}}`
	if string(got) != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestCanonicalizeJSON_RejectsTrailingData(t *testing.T) {
	if _, err := CanonicalizeJSON([]byte(`{"a":1} {"b":2}`)); err == nil {
		t.Fatal("expected trailing data error")
	}
}

func TestCanonicalizeAny_KeepsLargeIntegers(t *testing.T) {
	got, err := CanonicalizeAny(map[string]any{"n": int64(9007199254740993)})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(got) != `{"n":9007199254740993}` {
		t.Fatalf("unexpected canonical bytes %s", got)
	}
}

func TestCanonicalizeAny_StringsAreNotHTMLEscaped(t *testing.T) {
	got, err := CanonicalizeAny("Müller & Söhne <GbR>\n\x01")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(got) != `"Müller & Söhne <GbR>\n\u0001"` {
		t.Fatalf("unexpected canonical bytes %s", got)
	}
}

func TestCanonicalizeAny_StructsMatchTheirJSON(t *testing.T) {
	type event struct {
		Seq int       `json:"seq"`
		At  time.Time `json:"at"`
	}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fromStruct, err := CanonicalizeAny(event{Seq: 2, At: at})
	if err != nil {
		t.Fatalf("canonicalize struct: %v", err)
	}
	fromRaw, err := CanonicalizeAny(json.RawMessage(`{"seq":2,"at":"2026-03-01T12:00:00Z"}`))
	if err != nil {
		t.Fatalf("canonicalize raw: %v", err)
	}
	if string(fromStruct) != string(fromRaw) {
		t.Fatalf("expected %s, got %s", fromRaw, fromStruct)
	}
}

func TestService_DigestStableAcrossKeyOrder(t *testing.T) {
	svc := NewService()
	first, err := svc.Digest(map[string]any{"a": 1, "b": "two"})
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	second, err := svc.Digest(json.RawMessage(`{"b":"two","a":1}`))
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if first != second || len(first) != 64 {
		t.Fatalf("expected equal sha256 digests, got %s and %s", first, second)
	}
}
