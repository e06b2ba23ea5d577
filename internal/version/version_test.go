package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	v, c, d := Info()
	if v == "" || c == "" || d == "" {
		t.Fatalf("build info must not be empty: version=%q commit=%q date=%q", v, c, d)
	}
	if v != GetVersion() || c != GetCommit() || d != GetDate() {
		t.Fatal("getters must agree with Info")
	}
}

func TestString(t *testing.T) {
	s := String()
	for _, part := range []string{"version=" + version, "commit=" + commit, "date=" + date, "go=" + runtime.Version()} {
		if !strings.Contains(s, part) {
			t.Errorf("expected %q in %q", part, s)
		}
	}
}

func TestFields(t *testing.T) {
	fields := Fields()
	if fields["version"] != version {
		t.Errorf("unexpected version field: %v", fields["version"])
	}
	if fields["go_version"] != runtime.Version() {
		t.Errorf("unexpected go_version field: %v", fields["go_version"])
	}
}
