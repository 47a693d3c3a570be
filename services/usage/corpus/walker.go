// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package corpus enumerates the Python files of a client-code corpus in a
// stable order, honoring an exclusion list.
package corpus

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// FileEntry is one candidate source file.
type FileEntry struct {
	// Path is relative to the corpus root, with forward slashes. It is
	// the stable identity of the file across runs and machines: the
	// checkpoint store and all recorded locations are keyed on it.
	Path string

	// AbsPath is the absolute filesystem path used for reading.
	AbsPath string
}

// Directories that never contain client code worth analyzing.
var skipDirs = map[string]struct{}{
	"__pycache__":   {},
	"node_modules":  {},
	".git":          {},
	".hg":           {},
	".svn":          {},
	"venv":          {},
	".venv":         {},
	".tox":          {},
	".mypy_cache":   {},
	".ruff_cache":   {},
	".pytest_cache": {},
}

// List walks root and returns every .py file not matched by the exclusion
// patterns, sorted lexicographically by relative path.
//
// Description:
//
//	The ordering is deterministic so runs over the same corpus are
//	reproducible. Exclusion patterns use gitignore semantics (plain
//	paths or globs) and are matched against the root-relative path.
//	A missing or unreadable root is a configuration error and fails the
//	whole call; individual unreadable entries inside the tree are
//	reported via the walk error and skipped.
func List(root string, excludePatterns []string) ([]FileEntry, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("corpus root %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus root %q is not a directory", root)
	}

	var matcher *ignore.GitIgnore
	if len(excludePatterns) > 0 {
		matcher = ignore.CompileIgnoreLines(excludePatterns...)
	}

	var entries []FileEntry
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Unreadable entry: report and continue.
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks are skipped: they can escape the corpus root or
		// introduce duplicate identities for the same content.
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		if filepath.Ext(name) != ".py" {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if matcher != nil && matcher.MatchesPath(rel) {
			return nil
		}

		entries = append(entries, FileEntry{Path: rel, AbsPath: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk corpus root %q: %w", root, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}

// ReadExcludeFile reads a newline-separated exclusion list. Blank lines
// and "#" comments are dropped. A missing file yields an empty list: an
// exclusion list is optional input.
func ReadExcludeFile(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read exclude file %q: %w", path, err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read exclude file %q: %w", path, err)
	}
	return patterns, nil
}
