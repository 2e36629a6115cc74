package meetings

import (
	"regexp"
	"testing"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

func TestCreateThenHas(t *testing.T) {
	reg := NewRegistry()

	meeting, err := reg.Create()
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !codePattern.MatchString(meeting.ID) {
		t.Fatalf("meeting id %q does not match %s", meeting.ID, codePattern)
	}
	if !reg.Has(meeting.ID) {
		t.Fatalf("Has(%q)=false immediately after Create", meeting.ID)
	}
	if reg.Has("NOSUCH") {
		t.Fatalf("Has reported an unknown code")
	}
}

func TestCreateCodesAreUnique(t *testing.T) {
	reg := NewRegistry()
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		meeting, err := reg.Create()
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, dup := seen[meeting.ID]; dup {
			t.Fatalf("duplicate meeting id %q", meeting.ID)
		}
		seen[meeting.ID] = struct{}{}
	}
	if reg.Len() != 200 {
		t.Fatalf("Len=%d, want 200", reg.Len())
	}
}
