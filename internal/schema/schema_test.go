package schema

import (
	"strings"
	"testing"

	"freightline/internal/fieldpath"
)

func TestParseDefensive(t *testing.T) {
	for _, text := range []string{"", "   ", "{not json", `[1,2]`, `"scalar"`} {
		s := Parse(text)
		if s.Version != 1 {
			t.Errorf("Parse(%q).Version = %d", text, s.Version)
		}
		if len(s.Fields) != 0 {
			t.Errorf("Parse(%q) produced fields %v", text, s.Fields)
		}
	}
}

func TestParseEncodeRoundTrip(t *testing.T) {
	text := `{"version":3,"fields":[{"id":"clearance","type":"choice","required":true,"options":[{"id":"client","is_final":true,"fields":[{"id":"confirmed","type":"boolean","required":true}]}]}]}`
	s := Parse(text)
	if s.Version != 3 || len(s.Fields) != 1 {
		t.Fatalf("parsed = %+v", s)
	}
	f := s.Fields[0]
	if f.Type != TypeChoice || f.FinalOption() == nil || f.FinalOption().ID != "client" {
		t.Fatalf("choice = %+v", f)
	}
	again := Parse(s.Encode())
	if again.Version != 3 || len(again.Fields) != 1 || again.Fields[0].ID != "clearance" {
		t.Fatalf("round trip = %+v", again)
	}
}

func TestTruthySet(t *testing.T) {
	for _, v := range []string{"1", "true", "yes", "on", " TRUE ", "Yes"} {
		if !Truthy(v) {
			t.Errorf("Truthy(%q) = false", v)
		}
	}
	for _, v := range []string{"", "0", "false", "no", "off", "y", "2"} {
		if Truthy(v) {
			t.Errorf("Truthy(%q) = true", v)
		}
	}
}

func TestNumber(t *testing.T) {
	if n, ok := Number(" 12.5 "); !ok || n != 12.5 {
		t.Fatalf("Number = %v %v", n, ok)
	}
	if _, ok := Number(""); ok {
		t.Fatal("empty text parsed as a number")
	}
	if _, ok := Number("12kg"); ok {
		t.Fatal("suffixed text parsed as a number")
	}
}

func TestParseValuesNormalizesLeaves(t *testing.T) {
	v := ParseValues(`{"loaded":true,"qty":12.5,"count":3,"note":"x","rows":[{"done":false}]}`)
	if v["loaded"] != "true" || v["qty"] != "12.5" || v["count"] != "3" {
		t.Fatalf("normalized = %#v", v)
	}
	rows := v["rows"].([]any)
	if rows[0].(map[string]any)["done"] != "false" {
		t.Fatalf("nested bool not normalized: %#v", rows)
	}

	if len(ParseValues("{bad")) != 0 {
		t.Fatal("malformed values should parse to an empty tree")
	}
	if len(ParseValues(`[1]`)) != 0 {
		t.Fatal("non-object root should parse to an empty tree")
	}
}

func TestApplyUpdatesAndRemovals(t *testing.T) {
	v := Values{}
	v = ApplyUpdates(v, map[string]string{
		"loads.0.origin": "warehouse",
		"loads.1.origin": "port",
		"note":           "rush",
	})
	if fieldpath.GetString(v, fieldpath.Decode("loads.1.origin")) != "port" {
		t.Fatalf("updates = %#v", v)
	}
	v = ApplyRemovals(v, []string{"loads.0", "missing.path"})
	if fieldpath.GetString(v, fieldpath.Decode("loads.0.origin")) != "port" {
		t.Fatalf("splice did not shift rows: %#v", v)
	}
	encoded := EncodeValues(v)
	if !strings.Contains(encoded, `"note":"rush"`) {
		t.Fatalf("encoded = %s", encoded)
	}
}

func TestHasRawValue(t *testing.T) {
	if HasRawValue(Values{}) || HasRawValue(Values{"a": "  "}) {
		t.Fatal("blank trees counted as touched")
	}
	if !HasRawValue(Values{"rows": []any{map[string]any{"x": "1"}}}) {
		t.Fatal("nested leaf not seen")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	p := fieldpath.Decode("loads.2.loading_photo")
	token := Token("step-9", p)
	if !strings.HasPrefix(token, TokenPrefix) {
		t.Fatalf("token = %s", token)
	}
	stepID, got, ok := ParseToken(token)
	if !ok || stepID != "step-9" || fieldpath.Encode(got) != "loads.2.loading_photo" {
		t.Fatalf("parsed = %q %v %v", stepID, got, ok)
	}
	if _, _, ok := ParseToken("OTHER:abc:x"); ok {
		t.Fatal("foreign token parsed")
	}
	if _, _, ok := ParseToken("STEP_FIELD:"); ok {
		t.Fatal("empty token parsed")
	}
}
