package normalize

import "testing"

func TestAuthID(t *testing.T) {
	valid := []struct{ id, norm string }{
		{"", ""},
		{"ÑAndÚ", "ñandú"},
		{"Pingüino", "pingüino"},
		{"alice", "alice"},
	}
	for _, c := range valid {
		got, err := AuthID(c.id)
		if got != c.norm {
			t.Errorf("AuthID(%q) = %q, expected %q", c.id, got, c.norm)
		}
		if err != nil {
			t.Errorf("AuthID(%q) error: %v", c.id, err)
		}
	}

	invalid := []string{"á é", "a\te", "x\xa0y"}
	for _, id := range invalid {
		got, err := AuthID(id)
		if err == nil {
			t.Errorf("expected AuthID(%+q) to fail, but did not", id)
		}
		if got != id {
			t.Errorf("%+q failed norm, but returned %+q", id, got)
		}
	}
}
