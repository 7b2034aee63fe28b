package version

import "testing"

func TestString(t *testing.T) {
	if got := String(); got != "dev (unknown)" {
		t.Errorf("String() = %q, want %q", got, "dev (unknown)")
	}
	if got := UserAgent("dashsync"); got != "dashsync/dev" {
		t.Errorf("UserAgent() = %q, want %q", got, "dashsync/dev")
	}
}
