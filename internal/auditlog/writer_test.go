package auditlog

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbot/internal/model"
)

func TestWriterAppendsDaily(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "audit")
	w := NewWriter(dir)
	day := time.Date(2026, 10, 19, 23, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return day }

	ctx := context.Background()
	require.NoError(t, w.Write(ctx, model.ReplyOutcome{WebhookEventID: "a", Status: model.StatusReplied, Items: 3}))
	require.NoError(t, w.Write(ctx, model.ReplyOutcome{WebhookEventID: "b", Status: model.StatusFailed, Error: "boom"}))

	path := filepath.Join(dir, "replies_2026-10-19.jsonl")
	assert.Equal(t, path, w.Path(day))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var got []model.ReplyOutcome
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var out model.ReplyOutcome
		require.NoError(t, json.Unmarshal(sc.Bytes(), &out))
		got = append(got, out)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].WebhookEventID)
	assert.Equal(t, "boom", got[1].Error)
}
