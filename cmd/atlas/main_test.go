package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const configTmpl = `
dialect: sqlite
dsn: %s
log:
  level: info
tables:
  - name: authors
    primary_key: author_id
    auto_increment: true
    columns:
      - {name: author_id, type: int}
      - {name: name, type: string}
  - name: threads
    primary_key: thread_id
    auto_increment: true
    columns:
      - {name: thread_id, type: int}
      - {name: author_id, type: int, nullable: true}
      - {name: subject, type: string}
%s`

func writeConfig(t *testing.T, dir, extra string) string {
	t.Helper()
	path := filepath.Join(dir, "atlas.yaml")
	data := fmt.Sprintf(configTmpl, filepath.Join(dir, "forum.db"), extra)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func exec(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestMigrateAndValidate(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "")

	code, out, _ := exec("migrate", "-config", path, "-dry-run")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "CREATE TABLE")
	assert.Contains(t, out, "authors")

	code, _, logs := exec("migrate", "-config", path)
	require.Equal(t, 0, code, logs)
	assert.Contains(t, logs, "tables created")

	code, out, _ = exec("migrate", "-config", path, "-dry-run")
	require.Equal(t, 0, code)
	assert.Empty(t, out)

	code, out, _ = exec("validate", "-config", path)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "No issues found")

	broken := writeConfig(t, dir, `
  - name: comments
    primary_key: comment_id
    columns:
      - {name: comment_id, type: int}
`)
	code, out, _ = exec("validate", "-config", broken)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "comments: table does not exist")
}

func TestSkeleton(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "")
	code, _, logs := exec("migrate", "-config", path)
	require.Equal(t, 0, code, logs)

	target := filepath.Join(dir, "forum")
	code, _, logs = exec("skeleton", "-config", path, "-package", "forum", "-target", target)
	require.Equal(t, 0, code, logs)
	for _, name := range []string{"authors.go", "threads.go", "mappers.go"} {
		assert.FileExists(t, filepath.Join(target, name))
	}

	code, _, logs = exec("skeleton", "-config", path)
	assert.Equal(t, 2, code)
	assert.Contains(t, logs, "-package is required")
}

func TestUsage(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
		want string
	}{
		{name: "no command", args: nil, code: 2, want: "usage: atlas"},
		{name: "unknown", args: []string{"drop"}, code: 2, want: `unknown command "drop"`},
		{name: "bad flag", args: []string{"migrate", "-verbose"}, code: 1, want: "flag provided but not defined"},
		{name: "missing config", args: []string{"validate", "-config", "missing.yaml"}, code: 1, want: "missing.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, logs := exec(tt.args...)
			assert.Equal(t, tt.code, code)
			assert.Contains(t, logs, tt.want)
		})
	}

	code, out, _ := exec("help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "skeleton")
}
