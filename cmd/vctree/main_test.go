package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docopt/docopt-go"
	"github.com/go-playground/assert/v2"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func parseArgs(t *testing.T, args ...string) docopt.Opts {
	t.Helper()
	opts, err := docopt.ParseArgs(usage, args, Version)
	if err != nil {
		t.Fatalf("ParseArgs failed: %v", err)
	}
	return opts
}

func TestDiffThenPatch(t *testing.T) {
	dir := t.TempDir()
	oldHTML := `<html><head></head><body><p>a</p></body></html>`
	newHTML := `<html><head></head><body><p>a</p><p>b</p></body></html>`
	oldPath := writeFile(t, dir, "old.html", oldHTML)
	newPath := writeFile(t, dir, "new.html", newHTML)

	var delta bytes.Buffer
	err := diff(parseArgs(t, "diff", oldPath, newPath, "--author=ci"), &delta)
	assert.Equal(t, err, nil)
	assert.Equal(t, strings.Contains(delta.String(), `"author": "ci"`), true)
	deltaPath := writeFile(t, dir, "delta.json", delta.String())

	var out, report bytes.Buffer
	err = patch(parseArgs(t, "patch", oldPath, deltaPath, "--watch=p"), &out, &report)
	assert.Equal(t, err, nil)
	assert.Equal(t, out.String(), newHTML+"\n")
	assert.Equal(t, strings.Contains(report.String(), "1 -> 2"), true)
}

func TestPatchRejectsBadDelta(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.html", `<p>a</p>`)
	bad := writeFile(t, dir, "delta.json", `{`)

	var out, report bytes.Buffer
	err := patch(parseArgs(t, "patch", base, bad), &out, &report)
	assert.NotEqual(t, err, nil)
	assert.Equal(t, out.Len(), 0)

	err = diff(parseArgs(t, "diff", base, filepath.Join(dir, "missing.html")), &out)
	assert.NotEqual(t, err, nil)
}
