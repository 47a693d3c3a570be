// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package corpus

import (
	"os"
	"path/filepath"
	"testing"
)

// writeFile creates a file (and parent directories) under root.
func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func relPaths(entries []FileEntry) []string {
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	return paths
}

func TestList_FindsPythonFilesSorted(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "zeta.py", "")
	writeFile(t, root, "alpha.py", "")
	writeFile(t, root, "proj/model.py", "")
	writeFile(t, root, "readme.md", "")

	entries, err := List(root, nil)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	want := []string{"alpha.py", "proj/model.py", "zeta.py"}
	got := relPaths(entries)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestList_SkipsToolingDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.py", "")
	writeFile(t, root, "__pycache__/cached.py", "")
	writeFile(t, root, ".venv/lib/thing.py", "")
	writeFile(t, root, ".hidden/secret.py", "")

	entries, err := List(root, nil)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if got := relPaths(entries); len(got) != 1 || got[0] != "keep.py" {
		t.Errorf("expected only keep.py, got %v", got)
	}
}

func TestList_AppliesExcludePatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "")
	writeFile(t, root, "vendor/v.py", "")
	writeFile(t, root, "tests/test_a.py", "")

	entries, err := List(root, []string{"vendor/", "tests/test_*.py"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if got := relPaths(entries); len(got) != 1 || got[0] != "a.py" {
		t.Errorf("expected only a.py, got %v", got)
	}
}

func TestList_MissingRootFails(t *testing.T) {
	if _, err := List(filepath.Join(t.TempDir(), "nope"), nil); err == nil {
		t.Error("expected error for missing corpus root")
	}
}

func TestReadExcludeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exclude.txt")
	content := "# generated files\nvendor/\n\n  tests/  \n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write exclude file: %v", err)
	}

	patterns, err := ReadExcludeFile(path)
	if err != nil {
		t.Fatalf("ReadExcludeFile failed: %v", err)
	}
	if len(patterns) != 2 || patterns[0] != "vendor/" || patterns[1] != "tests/" {
		t.Errorf("expected [vendor/ tests/], got %v", patterns)
	}
}

func TestReadExcludeFile_MissingIsEmpty(t *testing.T) {
	patterns, err := ReadExcludeFile(filepath.Join(t.TempDir(), "absent.txt"))
	if err != nil {
		t.Fatalf("missing exclude file must not error: %v", err)
	}
	if len(patterns) != 0 {
		t.Errorf("expected no patterns, got %v", patterns)
	}
}
