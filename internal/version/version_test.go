package version

import "testing"

func TestString(t *testing.T) {
	Version, GitSHA, BuildTime = "1.2.0", "abc123", "2026-04-01"
	defer func() { Version, GitSHA, BuildTime = "dev", "unknown", "unknown" }()

	if got, want := String("skylink-ground"), "skylink-ground 1.2.0 (abc123, built 2026-04-01)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
