package jsonx

import "testing"

type probe struct {
	Mode string `json:"mode"`
	Goal string `json:"goal"`
}

func TestDecode_CleanJSON(t *testing.T) {
	res := Decode(`{"mode":"coach","goal":"suggest_tiny_step"}`, probe{Mode: "support"})
	if res.Fallback {
		t.Fatalf("expected parsed result, got fallback")
	}
	if res.Value.Mode != "coach" || res.Value.Goal != "suggest_tiny_step" {
		t.Fatalf("unexpected value: %#v", res.Value)
	}
}

func TestDecode_CodeFence(t *testing.T) {
	raw := "```json\n{\"mode\": \"gratitude\"}\n```"
	res := Decode(raw, probe{})
	if res.Fallback || res.Value.Mode != "gratitude" {
		t.Fatalf("expected fenced JSON to parse, got %#v", res)
	}
}

func TestDecode_LeadingProse(t *testing.T) {
	raw := "Sure! Here is the plan: {\"mode\": \"game\"} hope that helps"
	res := Decode(raw, probe{})
	if res.Fallback || res.Value.Mode != "game" {
		t.Fatalf("expected embedded object to parse, got %#v", res)
	}
}

func TestDecode_BracesInsideStrings(t *testing.T) {
	raw := `{"mode":"support","goal":"say {hello}"}`
	res := Decode(raw, probe{})
	if res.Fallback || res.Value.Goal != "say {hello}" {
		t.Fatalf("expected braces inside strings to be ignored, got %#v", res)
	}
}

func TestDecode_MalformedFallsBack(t *testing.T) {
	fallback := probe{Mode: "support", Goal: "reflect_feelings"}
	for _, raw := range []string{"", "not json at all", "{\"mode\": ", "[1,2,3]"} {
		res := Decode(raw, fallback)
		if !res.Fallback {
			t.Fatalf("input %q: expected fallback", raw)
		}
		if res.Value != fallback {
			t.Fatalf("input %q: fallback value mangled: %#v", raw, res.Value)
		}
	}
}
