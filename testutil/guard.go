// Package testutil holds import guards used by package tests to keep the
// layering of sitcomledger intact.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// Predicate reports whether an import path is forbidden.
type Predicate func(importPath string) bool

// StdlibOnly forbids every import that is not part of the standard library.
// Standard library paths never carry a dot in their first element.
func StdlibOnly(path string) bool {
	first, _, _ := strings.Cut(path, "/")
	return strings.Contains(first, ".")
}

// Internal forbids imports of any internal/ package.
func Internal(path string) bool {
	return strings.Contains(path, "/internal/")
}

// Under forbids imports below the given module-relative directory, e.g. "internal/infra".
func Under(dir string) Predicate {
	dir = "/" + strings.Trim(dir, "/")
	return func(path string) bool {
		return strings.Contains(path+"/", dir+"/")
	}
}

// Any combines predicates.
func Any(preds ...Predicate) Predicate {
	return func(path string) bool {
		for _, p := range preds {
			if p(path) {
				return true
			}
		}
		return false
	}
}

// AssertNoDirectImports parses the non-test files in dir and fails when an
// import matches forbidden.
func AssertNoDirectImports(t testing.TB, dir string, forbidden Predicate, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	if len(viols) > 0 {
		t.Fatalf("forbidden imports (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

// AssertNoTransitiveDependency runs `go list -deps pattern` and fails when a
// dependency matches forbidden.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden Predicate, reason string) {
	t.Helper()
	out, err := goListDeps(pattern)
	if err != nil {
		t.Fatalf("go list -deps %s: %v\n%s", pattern, err, out)
	}
	var viols []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" && forbidden(line) {
			viols = append(viols, line)
		}
	}
	if len(viols) > 0 {
		t.Fatalf("forbidden dependencies (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

var goListDeps = func(pattern string) ([]byte, error) {
	return exec.Command("go", "list", "-deps", pattern).CombinedOutput()
}

func directImportViolations(dir string, forbidden Predicate) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			path, err := strconv.Unquote(imp.Path.Value)
			if err != nil {
				return nil, err
			}
			if forbidden(path) {
				viols = append(viols, path+" (in "+name+")")
			}
		}
	}
	return viols, nil
}
