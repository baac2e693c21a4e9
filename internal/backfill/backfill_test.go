package backfill

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/felo/inbox-library/internal/db"
	"github.com/felo/inbox-library/internal/parser"
	"github.com/felo/inbox-library/internal/router"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRouter struct {
	mu       sync.Mutex
	subjects []string
	outcome  func(msg *parser.InboundMessage) router.Outcome
}

func (f *fakeRouter) Route(_ context.Context, msg *parser.InboundMessage) router.Outcome {
	f.mu.Lock()
	f.subjects = append(f.subjects, msg.Subject)
	f.mu.Unlock()
	if f.outcome != nil {
		return f.outcome(msg)
	}
	return router.Outcome{Path: router.PathGeneric, State: router.StateDone, Published: true}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func writeEML(t *testing.T, dir, name, subject string) {
	t.Helper()
	raw := fmt.Sprintf("From: Sender <sender@example.com>\r\n"+
		"To: reader@inbox.example.com\r\n"+
		"Subject: %s\r\n"+
		"Content-Type: text/plain; charset=utf-8\r\n\r\n"+
		"hello\r\n", subject)
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(raw), 0644))
}

func TestRun_RoutesEveryFileOnce(t *testing.T) {
	database := db.SetupTestDB(t)
	defer db.CleanupTestDB(t, database)

	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		writeEML(t, dir, fmt.Sprintf("inbox/%d.eml", i), fmt.Sprintf("message %d", i))
	}

	r := &fakeRouter{}
	b := New(database, r, dir, quietLogger()).WithConcurrency(3)

	var calls int
	result, err := b.Run(context.Background(), func(current, total int, path string) {
		calls++
		assert.Equal(t, 5, total)
	})
	require.NoError(t, err)

	assert.Equal(t, 5, result.TotalFound)
	assert.Equal(t, 5, result.Routed)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 5, calls)
	assert.Len(t, r.subjects, 5)

	value, err := database.GetSetting("backfill:inbox/0.eml")
	require.NoError(t, err)
	assert.Equal(t, string(router.PathGeneric), value)

	// second run skips everything
	result, err = b.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Skipped)
	assert.Len(t, r.subjects, 5)
}

func TestRun_QueuedAndFailed(t *testing.T) {
	database := db.SetupTestDB(t)
	defer db.CleanupTestDB(t, database)

	dir := t.TempDir()
	writeEML(t, dir, "queued.eml", "queued")
	writeEML(t, dir, "lost.eml", "lost")

	r := &fakeRouter{outcome: func(msg *parser.InboundMessage) router.Outcome {
		if msg.Subject == "queued" {
			return router.Outcome{Path: router.PathNewsletter, State: router.StateQueued, Published: true, Err: errors.New("save failed")}
		}
		return router.Outcome{Path: router.PathNewsletter, State: router.StateQueued, Err: errors.New("publish failed")}
	}}

	result, err := New(database, r, dir, quietLogger()).WithConcurrency(1).Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Queued)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []string{"lost.eml"}, result.FailedFiles)

	value, err := database.GetSetting("backfill:lost.eml")
	require.NoError(t, err)
	assert.Empty(t, value, "unpublished failures are retried on the next run")
}

func TestRun_MissingDirectory(t *testing.T) {
	database := db.SetupTestDB(t)
	defer db.CleanupTestDB(t, database)

	_, err := New(database, &fakeRouter{}, filepath.Join(t.TempDir(), "missing"), quietLogger()).Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestWithConcurrency_Floor(t *testing.T) {
	b := New(nil, &fakeRouter{}, t.TempDir(), quietLogger()).WithConcurrency(0)
	assert.Equal(t, 1, b.concurrency)
}
