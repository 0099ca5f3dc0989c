package cmd

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/qrharvest/internal/journal"
)

func TestHistoryWithoutJournal(t *testing.T) {
	stdout, _, err := runCLI(t, "history", "--output-dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, stdout, "No journal at")
}

func TestHistoryAfterJournaledCapture(t *testing.T) {
	out := filepath.Join(t.TempDir(), "codes")
	img := qrFrame(t, t.TempDir(), "a.png", "JOURNALED")

	for range 2 {
		_, _, err := runCLI(t, "image", img, "--output-dir", out, "--no-lock", "--journal")
		require.NoError(t, err)
	}

	stdout, _, err := runCLI(t, "history", "--output-dir", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "JOURNALED")
	assert.Contains(t, stdout, "NEW")
	assert.Contains(t, stdout, "DUPLICATE")
	assert.Contains(t, stdout, "1 saved, 1 duplicates in total")

	stdout, _, err = runCLI(t, "history", "--output-dir", out, "--decision", "new", "--format", "json")
	require.NoError(t, err)
	var payload struct {
		Entries    []journal.Entry `json:"entries"`
		New        int             `json:"new"`
		Duplicates int             `json:"duplicates"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &payload))
	require.Len(t, payload.Entries, 1)
	assert.Equal(t, "NEW", payload.Entries[0].Decision)
	assert.Equal(t, 1, payload.New)
	assert.Equal(t, 1, payload.Duplicates)
}

func TestHistoryRejectsUnknownDecision(t *testing.T) {
	out := filepath.Join(t.TempDir(), "codes")
	img := qrFrame(t, t.TempDir(), "a.png", "X")
	_, _, err := runCLI(t, "image", img, "--output-dir", out, "--no-lock", "--journal")
	require.NoError(t, err)

	_, _, err = runCLI(t, "history", "--output-dir", out, "--decision", "maybe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid decision")
}
