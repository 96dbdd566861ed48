// Package testutil holds import guards used by architecture tests to keep the
// domain model, the graph engine and the storage backends layered.
package testutil

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// Predicate reports whether an import path is forbidden.
type Predicate func(importPath string) bool

// AnyOf forbids a path matched by any of preds.
func AnyOf(preds ...Predicate) Predicate {
	return func(path string) bool {
		for _, p := range preds {
			if p(path) {
				return true
			}
		}
		return false
	}
}

// Violation is one forbidden import. File is empty for transitive findings.
type Violation struct {
	File   string
	Import string
}

func (v Violation) String() string {
	if v.File == "" {
		return v.Import
	}
	return fmt.Sprintf("%s (in %s)", v.Import, v.File)
}

// storageSDKs are the third-party modules only infra packages may reach.
var storageSDKs = []string{
	"github.com/jackc/pgx",
	"modernc.org/sqlite",
	"github.com/aws/aws-sdk-go-v2",
}

// InternalImportForbidden matches module-internal packages. Standard library
// internals ("internal/abi") do not match.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/")
}

// InfraImportForbidden matches the storage and blob backend packages.
func InfraImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/infra/") || strings.HasSuffix(path, "/internal/infra")
}

// StorageSDKForbidden matches database drivers and cloud SDKs.
func StorageSDKForbidden(path string) bool {
	for _, sdk := range storageSDKs {
		if path == sdk || strings.HasPrefix(path, sdk+"/") {
			return true
		}
	}
	return false
}

// AssertNoDirectImports fails t when a non-test file directly in dir imports
// a forbidden path. Subdirectories and build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden Predicate, reason string) {
	t.Helper()
	viols, err := ScanImports(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	report(t, "forbidden direct imports", reason, viols)
}

// AssertNoTransitiveDependency fails t when `go list -deps pattern` names a
// forbidden package.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden Predicate, reason string) {
	t.Helper()
	out, err := goListDeps(pattern)
	if err != nil {
		t.Fatalf("go list failed: %v\n%s", err, out)
	}
	report(t, "forbidden transitive dependencies", reason, filterDeps(out, forbidden))
}

// ScanImports parses the import blocks of the non-test Go files in dir.
func ScanImports(dir string, forbidden Predicate) ([]Violation, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []Violation
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
			path := strings.Trim(imp.Path.Value, `"`)
			if forbidden(path) {
				viols = append(viols, Violation{File: name, Import: path})
			}
		}
	}
	return viols, nil
}

var goListDeps = func(pattern string) ([]byte, error) {
	return exec.Command("go", "list", "-deps", pattern).CombinedOutput()
}

func filterDeps(out []byte, forbidden Predicate) []Violation {
	var viols []Violation
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" && forbidden(line) {
			viols = append(viols, Violation{Import: line})
		}
	}
	return viols
}

type fatalf interface {
	Fatalf(format string, args ...any)
}

func report(t fatalf, what, reason string, viols []Violation) {
	if len(viols) == 0 {
		return
	}
	lines := make([]string, len(viols))
	for i, v := range viols {
		lines[i] = v.String()
	}
	t.Fatalf("%s (%s):\n%s", what, reason, strings.Join(lines, "\n"))
}
