package fs

import (
	"path/filepath"
	"testing"
)

func TestGetAbs(t *testing.T) {
	t.Run("absolute path passthrough", func(t *testing.T) {
		abs := "/tmp"
		got, err := GetAbs(abs)
		if err != nil {
			t.Fatalf("GetAbs(%q) returned error: %v", abs, err)
		}
		if got != abs {
			t.Errorf("GetAbs(%q) = %q, want %q", abs, got, abs)
		}
	})

	t.Run("relative path conversion", func(t *testing.T) {
		got, err := GetAbs(".")
		if err != nil {
			t.Fatalf("GetAbs(.) returned error: %v", err)
		}
		if !filepath.IsAbs(got) {
			t.Errorf("GetAbs(.) = %q, want absolute path", got)
		}
	})

	t.Run("absolute path is cleaned", func(t *testing.T) {
		got, err := GetAbs("/work/../work/example/")
		if err != nil {
			t.Fatalf("GetAbs returned error: %v", err)
		}
		if got != "/work/example" {
			t.Errorf("GetAbs = %q, want %q", got, "/work/example")
		}
	})
}
