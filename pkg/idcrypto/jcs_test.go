package idcrypto

import "testing"

func TestCanonicalizeJSONSortsKeys(t *testing.T) {
	got, err := CanonicalizeJSON([]byte(`{"b":1,"a":2,"c":3}`))
	if err != nil {
		t.Fatalf("CanonicalizeJSON: %v", err)
	}
	want := `{"a":2,"b":1,"c":3}`
	if string(got) != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestCanonicalizeJSONNestedAndArrays(t *testing.T) {
	got, err := CanonicalizeJSON([]byte(`{"z":[3,1,2],"a":{"y":1,"x":2}}`))
	if err != nil {
		t.Fatalf("CanonicalizeJSON: %v", err)
	}
	want := `{"a":{"x":2,"y":1},"z":[3,1,2]}`
	if string(got) != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestCanonicalizeJSONIntegralNumbers(t *testing.T) {
	got, err := CanonicalizeJSON([]byte(`{"n":1.0}`))
	if err != nil {
		t.Fatalf("CanonicalizeJSON: %v", err)
	}
	want := `{"n":1}`
	if string(got) != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestCanonicalizeJSONEscapesControlCharacters(t *testing.T) {
	got, err := CanonicalizeJSON([]byte(`{"s":"line1\nline2"}`))
	if err != nil {
		t.Fatalf("CanonicalizeJSON: %v", err)
	}
	want := `{"s":"line1\nline2"}`
	if string(got) != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestCanonicalizeJSONIsStableUnderWhitespaceAndKeyOrder(t *testing.T) {
	a, err := CanonicalizeJSON([]byte(`{ "a" : 1, "b" : 2 }`))
	if err != nil {
		t.Fatalf("CanonicalizeJSON: %v", err)
	}
	b, err := CanonicalizeJSON([]byte(`{"b":2,"a":1}`))
	if err != nil {
		t.Fatalf("CanonicalizeJSON: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("expected identical canonical bytes, got %q and %q", a, b)
	}
}
