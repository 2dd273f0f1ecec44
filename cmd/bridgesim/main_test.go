package main

import "testing"

func TestParseLoad(t *testing.T) {
	ch, load, err := parseLoad("3=C:1e-9")
	if err != nil {
		t.Fatalf("parseLoad() error: %v", err)
	}
	if ch != 3 || load.Type != "C" || load.Value != 1e-9 {
		t.Errorf("parseLoad() = %d, %+v", ch, load)
	}

	for _, bad := range []string{"3", "3=R", "x=R:1", "3=Q:1", "300=R:1", "3=R:abc"} {
		if _, _, err := parseLoad(bad); err == nil {
			t.Errorf("parseLoad(%q) succeeded", bad)
		}
	}
}
