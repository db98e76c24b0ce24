package capability

import "testing"

func TestParseAndMatch(t *testing.T) {
	cases := []struct {
		granted  string
		required string
		want     bool
	}{
		{"state:read:count", "state:read:count", true},
		{"state:read:count", "state:read:other", false},
		{"state:read:*", "state:read:anything", true},
		{"state:write:*", "state:read:anything", false},
		{"ext:http", "ext:http", true},
		{"ext:*", "ext:anything", true},
		{"events:emit:*", "events:emit:toast", true},
		{"view:update:chart1", "view:update:chart1", true},
		{"view:update:chart1", "view:update:chart2", false},
	}

	for _, c := range cases {
		tok, err := Parse(c.granted)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", c.granted, err)
		}
		got := tok.Matches(c.required)
		if got != c.want {
			t.Errorf("Token(%q).Matches(%q) = %v, want %v", c.granted, c.required, got, c.want)
		}
	}
}

func TestParseMalformed(t *testing.T) {
	for _, bad := range []string{"", "state", "state:read:", "bogus:read:x", "state:bogus:x"} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Parse(%q) should have failed", bad)
		}
	}
}

func TestMatchesMalformedRequiredDenies(t *testing.T) {
	tok, err := Parse("state:read:*")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if tok.Matches("not-a-capability-string") {
		t.Error("malformed required string should deny")
	}
}

func TestSetCheck(t *testing.T) {
	s := ParseSet(OriginDeclared, []string{"state:write:count", "state:read:count"})
	if !s.Check("state:write:count") {
		t.Error("expected write:count to be granted")
	}
	if s.Check("state:write:secret") {
		t.Error("did not expect write:secret to be granted")
	}
}

func TestInferConservative(t *testing.T) {
	s := InferConservative()
	if s.Origin != OriginInferred {
		t.Error("expected OriginInferred")
	}
	for _, req := range []string{"state:read:anything", "state:write:anything", "events:emit:anything", "view:update:anything", "ext:anything"} {
		if !s.Check(req) {
			t.Errorf("inferred set should grant %q", req)
		}
	}
}
