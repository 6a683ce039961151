package fieldpath

import (
	"reflect"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Path{
		{Field("loads")},
		{Field("loads"), Index(0), Field("origin")},
		{Field("clearance"), Field("zaxon"), Field("agent")},
		{Field("a.b"), Field(`c\d`)},
		{Field("trucks"), Index(12), Field("booking_status")},
	}
	for _, p := range cases {
		token := Encode(p)
		got := Decode(token)
		if !reflect.DeepEqual(got, p) {
			t.Errorf("Decode(Encode(%v)) = %v (token %q)", p, got, token)
		}
	}
}

func TestDigitOnlyNamesStayNames(t *testing.T) {
	// a field literally named "0" must not decode as a row index
	p := Path{Field("loads"), Field("0"), Field("x")}
	token := Encode(p)
	got := Decode(token)
	if !reflect.DeepEqual(got, p) {
		t.Fatalf("Decode(%q) = %v, want %v", token, got, p)
	}
	if got[1].IsIndex {
		t.Fatalf("segment %q decoded as index", token)
	}

	// whereas a real index decodes as one
	q := Path{Field("loads"), Index(0), Field("x")}
	if tok := Encode(q); !Decode(tok)[1].IsIndex {
		t.Fatalf("index segment lost in %q", tok)
	}
}

func TestDecodePlainTokens(t *testing.T) {
	got := Decode("loads.3.loading_photo")
	want := Path{Field("loads"), Index(3), Field("loading_photo")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if Decode("") != nil {
		t.Fatal("empty token should decode to nil")
	}
	// a trailing backslash degrades to nothing, not a panic
	got = Decode(`a\`)
	if len(got) != 1 || got[0].Name != "a" {
		t.Fatalf("dangling escape decoded to %v", got)
	}
}

func TestSetCreatesContainersByShape(t *testing.T) {
	tree := map[string]any{}
	tree = Set(tree, Decode("loads.1.origin"), "port")
	rows, ok := tree["loads"].([]any)
	if !ok || len(rows) != 2 {
		t.Fatalf("loads = %#v", tree["loads"])
	}
	if rows[0] != nil {
		t.Fatalf("row 0 should be nil padding, got %#v", rows[0])
	}
	row, _ := rows[1].(map[string]any)
	if row["origin"] != "port" {
		t.Fatalf("row 1 = %#v", rows[1])
	}

	// setting a named child over a scalar replaces it
	tree = Set(tree, Decode("loads.1.origin.deep"), "x")
	if GetString(tree, Decode("loads.1.origin.deep")) != "x" {
		t.Fatalf("scalar not replaced: %#v", tree)
	}
}

func TestSetRootIndexFallsBackToName(t *testing.T) {
	tree := Set(map[string]any{}, Path{Index(2), Field("v")}, "x")
	if GetString(tree, Path{Field("2"), Field("v")}) != "x" {
		t.Fatalf("tree = %#v", tree)
	}
}

func TestGetShapeMismatches(t *testing.T) {
	tree := map[string]any{
		"loads": []any{map[string]any{"origin": "warehouse"}},
		"name":  "plan",
	}
	if v, ok := Get(tree, Decode("loads.0.origin")); !ok || v != "warehouse" {
		t.Fatalf("get = %v %v", v, ok)
	}
	if _, ok := Get(tree, Decode("loads.5.origin")); ok {
		t.Fatal("out-of-range index resolved")
	}
	if _, ok := Get(tree, Decode("name.0")); ok {
		t.Fatal("indexing a string resolved")
	}
	if GetString(tree, Decode("loads")) != "" {
		t.Fatal("non-string value should read as empty text")
	}
}

func TestRemoveSplicesArrays(t *testing.T) {
	tree := map[string]any{}
	tree = Set(tree, Decode("loads.0.id"), "a")
	tree = Set(tree, Decode("loads.1.id"), "b")
	tree = Set(tree, Decode("loads.2.id"), "c")

	tree = Remove(tree, Decode("loads.1"))
	rows := tree["loads"].([]any)
	if len(rows) != 2 {
		t.Fatalf("rows = %d after splice", len(rows))
	}
	if GetString(tree, Decode("loads.1.id")) != "c" {
		t.Fatalf("later rows did not shift: %#v", rows)
	}

	tree = Remove(tree, Decode("loads.0.id"))
	if _, ok := Get(tree, Decode("loads.0.id")); ok {
		t.Fatal("key not deleted")
	}

	// unresolvable paths are a no-op
	before := GetString(tree, Decode("loads.1.id"))
	tree = Remove(tree, Decode("nope.7.x"))
	if GetString(tree, Decode("loads.1.id")) != before {
		t.Fatal("no-op removal changed the tree")
	}
}

func TestWithDoesNotShareBacking(t *testing.T) {
	base := make(Path, 0, 4)
	base = append(base, Field("a"))
	left := base.With(Field("left"))
	right := base.With(Field("right"))
	if left[1].Name != "left" || right[1].Name != "right" {
		t.Fatalf("sibling paths clobbered: %v %v", left, right)
	}
}
