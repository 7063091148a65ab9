package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recon/internal/ir"
)

func write(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestParseRecordYAML(t *testing.T) {
	rec, err := ParseRecord([]byte(`
id: msg-1
received_at: 2026-01-10T08:00:00Z
subject: Seminar next week
from: dept@example.edu
body: |
  Room 7, 9:30.
signals: [HAS_MEETING]
`))
	require.NoError(t, err)
	assert.Equal(t, "msg-1", rec.ID)
	assert.True(t, rec.ReceivedAt.Equal(time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Room 7, 9:30.\n", rec.Body)
	assert.True(t, rec.HasSignal(ir.SignalHasMeeting))
}

func TestParseRecordJSON(t *testing.T) {
	rec, err := ParseRecord([]byte(`{"id": "msg-2", "subject": "Invoice", "signals": ["HAS_DEADLINE"]}`))
	require.NoError(t, err)
	assert.Equal(t, "Invoice", rec.Subject)
	assert.True(t, rec.HasSignal(ir.SignalHasDeadline))
}

func TestParseRecordRejects(t *testing.T) {
	_, err := ParseRecord([]byte("id: x\nsignals: [URGENT]\n"))
	assert.ErrorContains(t, err, "unknown signal")

	_, err = ParseRecord([]byte("id: x\nsubjct: typo\n"))
	assert.Error(t, err, "unknown fields are rejected")
}

func TestInboxOrderAndDone(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "002.yaml", "subject: second\n")
	write(t, dir, "001.json", `{"subject": "first"}`)
	write(t, dir, "notes.txt", "ignored")
	write(t, dir, ".hidden.yaml", "subject: hidden\n")

	b := NewInbox(dir)
	it, err := b.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", it.Record.Subject)
	assert.Equal(t, "001", it.Record.ID, "id defaults to the file name")

	require.NoError(t, b.Done(it))
	assert.FileExists(t, filepath.Join(dir, DoneDir, "001.json"))

	it, err = b.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", it.Record.Subject)
	require.NoError(t, b.Done(it))

	_, err = b.Next(context.Background())
	assert.True(t, errors.Is(err, ErrEmpty))
}

func TestInboxQuarantinesBadFiles(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "001.yaml", "subject: [unclosed\n")
	write(t, dir, "002.yaml", "subject: good\n")

	b := NewInbox(dir)
	it, err := b.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "good", it.Record.Subject)
	assert.FileExists(t, filepath.Join(dir, FailedDir, "001.yaml"))
}

func TestInboxCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")
	_, err := NewInbox(dir).Next(context.Background())
	assert.ErrorIs(t, err, ErrEmpty)
	assert.DirExists(t, dir)
}
