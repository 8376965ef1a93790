package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTriggers = `categories:
  - name: design
    patterns:
      - name: designer
        pattern: дизайнер
        weight: 0.9
`

const testExport = `{
  "name": "Design jobs",
  "type": "public_supergroup",
  "id": 777,
  "messages": [
    {"id": 1, "type": "message", "date": "2026-01-10T10:05:00", "from": "Anna", "from_id": "user1", "text": "Нужен дизайнер для логотипа"},
    {"id": 2, "type": "message", "date": "2026-01-10T10:06:00", "from_id": "user2", "text": "Всем привет"}
  ]
}`

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	triggersPath := filepath.Join(dir, "triggers.yaml")
	require.NoError(t, os.WriteFile(triggersPath, []byte(testTriggers), 0o644))

	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("REGEX_THRESHOLD", "0.5")
	t.Setenv("TRIGGERS_FILE", triggersPath)
	t.Setenv("LLM_PROVIDER", "none")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("EXPORT_DIR", filepath.Join(dir, "exports"))
	t.Setenv("TIMEZONE", "UTC")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root, s := newRootCmd()
	defer s.close()

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	root, _ := newRootCmd()
	names := map[string]bool{}
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"migrate", "stats", "orders", "export", "feedback", "reprocess", "chats", "import", "health"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestHealthCmd(t *testing.T) {
	setupEnv(t)
	out, err := execute(t, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "Health: healthy")
	assert.Contains(t, out, "mode rest_only")
	assert.Contains(t, out, "disabled, regex only")
}

func TestHealthCmd_UnwritableExportDir(t *testing.T) {
	dir := setupEnv(t)
	file := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	t.Setenv("EXPORT_DIR", file)

	out, err := execute(t, "health")
	assert.ErrorContains(t, err, "unhealthy")
	assert.Contains(t, out, "❌ exports")
}

func TestImportCmd(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "result.json")
	require.NoError(t, os.WriteFile(path, []byte(testExport), 0o644))

	out, err := execute(t, "import", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Chat: Design jobs (-100777, group)")
	assert.Contains(t, out, "Total: 2, matched: 1, no match: 1, ignored: 0, duplicate: 0, failed: 0")
}

func TestImportCmd_DryRun(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "result.json")
	require.NoError(t, os.WriteFile(path, []byte(testExport), 0o644))

	out, err := execute(t, "import", "--file", path, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Text messages: 2")
}

func TestImportCmd_RequiresFile(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "import")
	assert.Error(t, err)
}

func TestStatsCmd_Empty(t *testing.T) {
	setupEnv(t)
	out, err := execute(t, "stats", "--period", "week")
	require.NoError(t, err)
	assert.Contains(t, out, "No messages in this period")

	_, err = execute(t, "stats", "--period", "decade")
	assert.Error(t, err)
}

func TestFeedbackCmd(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "feedback", "abc", "accept")
	assert.ErrorContains(t, err, "positive number")

	_, err = execute(t, "feedback", "1", "maybe")
	assert.ErrorContains(t, err, "accept or reject")

	_, err = execute(t, "feedback", "#42", "reject", "--reason", "spam")
	assert.ErrorContains(t, err, "order #42 not found")
}

func TestOrdersAndExport_Empty(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "orders")
	require.NoError(t, err)
	assert.Contains(t, out, "No orders found")

	out, err = execute(t, "export", "--period", "today")
	require.NoError(t, err)
	assert.Contains(t, out, "No orders to export")

	_, err = execute(t, "export", "--method", "telepathy")
	assert.Error(t, err)
}

func TestChatsCmd(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "chats", "list", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "No chats found")

	_, err = execute(t, "chats", "deactivate", "--", "-100999")
	assert.ErrorContains(t, err, "not found")
}

func TestMigrateCmd_NeedsDirectConnection(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "migrate")
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestStatsRange(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	from, to, err := statsRange("week", "", "", now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 9, from.Day())
	assert.Equal(t, 15, to.Day())

	from, to, err = statsRange("today", "2026-03-01", "2026-03-05", now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), to)

	from, to, err = statsRange("", "2026-03-10", "", now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 10, from.Day())
	assert.Equal(t, now, to)

	_, _, err = statsRange("", "03/10", "", now, time.UTC)
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b", preview("a\nb"))
	long := preview(string(bytes.Repeat([]byte("x"), 100)))
	assert.Len(t, []rune(long), previewRunes)
}
