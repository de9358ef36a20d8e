package cache

import (
	"encoding/json"
	"testing"
)

func TestKey_ParamOrderIndependent(t *testing.T) {
	a := Key("/issues", map[string]any{"a": 1, "b": 2})
	b := Key("/issues", map[string]any{"b": 2, "a": 1})
	if a != b {
		t.Errorf("keys differ for reordered params: %s vs %s", a, b)
	}
}

func TestKey_NestedParams(t *testing.T) {
	a := Key("/search", map[string]any{
		"filter": map[string]any{"project": "dexter", "env": "prod"},
	})
	b := Key("/search", map[string]any{
		"filter": map[string]any{"env": "prod", "project": "dexter"},
	})
	if a != b {
		t.Errorf("keys differ for reordered nested params: %s vs %s", a, b)
	}
}

func TestKey_EquivalentRepresentations(t *testing.T) {
	// A raw JSON value and its decoded form canonicalize identically
	a := Key("/search", map[string]any{"filter": json.RawMessage(`{"y":2,"x":1}`)})
	b := Key("/search", map[string]any{"filter": map[string]any{"x": 1, "y": 2}})
	if a != b {
		t.Errorf("raw vs decoded params produced different keys: %s vs %s", a, b)
	}

	// Ints decode to float64 after the round trip
	c := Key("/issues", map[string]any{"limit": 25})
	d := Key("/issues", map[string]any{"limit": float64(25)})
	if c != d {
		t.Errorf("int vs float64 produced different keys: %s vs %s", c, d)
	}
}

func TestKey_Distinct(t *testing.T) {
	base := Key("/issues", map[string]any{"a": 1})

	if got := Key("/events", map[string]any{"a": 1}); got == base {
		t.Error("different paths must produce different keys")
	}
	if got := Key("/issues", map[string]any{"a": 2}); got == base {
		t.Error("different param values must produce different keys")
	}
	if got := Key("/issues", map[string]any{"b": 1}); got == base {
		t.Error("different param names must produce different keys")
	}
}

func TestKey_EmptyParams(t *testing.T) {
	a := Key("/issues", nil)
	b := Key("/issues", map[string]any{})
	if a != b {
		t.Errorf("nil and empty params should produce the same key: %s vs %s", a, b)
	}

	if c := Key("/issues", map[string]any{"a": 1}); c == a {
		t.Error("params must change the key")
	}
}
