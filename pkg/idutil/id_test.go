package idutil

import "testing"

func TestGenerateIDFormat(t *testing.T) {
	id := GenerateID()
	if len(id) != FullIDLength {
		t.Fatalf("GenerateID length = %d, want %d", len(id), FullIDLength)
	}
	for _, c := range id {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Fatalf("GenerateID returned non-hex character %q in %s", c, id)
		}
	}
}

func TestGenerateIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateID()
		if seen[id] {
			t.Fatalf("GenerateID repeated %s", id)
		}
		seen[id] = true
	}
}

func TestShortID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0123456789abcdef0123456789abcdef", "0123456789ab"},
		{"abc", "abc"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ShortID(tt.in); got != tt.want {
			t.Errorf("ShortID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
