package internal

import (
	"bytes"
	"go/format"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// moduleRoot returns the directory holding go.mod.
func moduleRoot(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	for dir := wd; ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		if filepath.Dir(dir) == dir {
			t.Fatalf("go.mod not found above %s", wd)
		}
	}
}

// sourceFiles lists the module's Go files, skipping hidden directories
// and directories the go tool ignores.
func sourceFiles(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	for _, top := range []string{"internal", "cmd"} {
		err := filepath.WalkDir(filepath.Join(root, top), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			name := d.Name()
			if d.IsDir() {
				if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "testdata" || name == "vendor" {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasSuffix(name, ".go") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("walking %s: %v", top, err)
		}
	}
	return files
}

func TestSourceIsGofmted(t *testing.T) {
	root := moduleRoot(t)

	var unformatted []string
	for _, path := range sourceFiles(t, root) {
		src, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile failed: %v", err)
		}
		formatted, err := format.Source(src)
		if err != nil {
			t.Errorf("%s does not parse: %v", path, err)
			continue
		}
		if !bytes.Equal(src, formatted) {
			rel, _ := filepath.Rel(root, path)
			unformatted = append(unformatted, rel)
		}
	}

	if len(unformatted) > 0 {
		t.Errorf("files need gofmt -w:\n  %s", strings.Join(unformatted, "\n  "))
	}
}

func TestGolangciLint(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping lint in short mode")
	}
	if _, err := exec.LookPath("golangci-lint"); err != nil {
		t.Skip("golangci-lint not in PATH")
	}

	cmd := exec.Command("golangci-lint", "run", "./...")
	cmd.Dir = moduleRoot(t)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Errorf("golangci-lint reported problems:\n%s", out)
	}
}
