package cmd

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/qrharvest/internal/dedup"
	"github.com/MeKo-Tech/qrharvest/internal/pipeline"
	"github.com/MeKo-Tech/qrharvest/internal/store"
	"github.com/MeKo-Tech/qrharvest/internal/testutil"
)

func TestImageCommand(t *testing.T) {
	assert.True(t, strings.HasPrefix(imageCmd.Use, "image"))
	assert.NotEmpty(t, imageCmd.Short)
	assert.NotEmpty(t, imageCmd.Long)
}

func TestImageCommandRequiresFile(t *testing.T) {
	_, _, err := runCLI(t, "image")
	assert.Error(t, err)
}

func TestImageCommandNewThenDuplicate(t *testing.T) {
	out := filepath.Join(t.TempDir(), "codes")
	img := qrFrame(t, t.TempDir(), "ticket.png", "https://example.com/ticket/1")

	stdout, stderr, err := runCLI(t, "image", img, "--output-dir", out, "--no-lock")
	require.NoError(t, err)
	assert.Contains(t, stdout, "#1 NEW https://example.com/ticket/1 ->")
	assert.Contains(t, stderr, "Saved: 1")

	crops := testutil.ListFiles(t, out, store.CropPrefix+"*")
	assert.Len(t, crops, 1)
	meta, err := store.ReadMetadata(filepath.Join(out, store.MetadataFile))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/ticket/1"}, meta.Contents)

	// A second run only knows the code from the output location.
	stdout, stderr, err = runCLI(t, "image", img, "--output-dir", out, "--no-lock")
	require.NoError(t, err)
	assert.Contains(t, stdout, "DUPLICATE https://example.com/ticket/1 ("+dedup.ReasonIndex+")")
	assert.Contains(t, stderr, "Duplicates: 1")

	assert.Equal(t, crops, testutil.VisibleFiles(t, out))
}

func TestImageCommandJSONAndOverlay(t *testing.T) {
	out := filepath.Join(t.TempDir(), "codes")
	overlays := filepath.Join(t.TempDir(), "overlays")
	frames := t.TempDir()
	first := qrFrame(t, frames, "one.png", "ALPHA")
	second := qrFrame(t, frames, "two.png", "BRAVO")

	stdout, _, err := runCLI(t, "image", first, second,
		"--output-dir", out, "--no-lock", "--format", "json", "--overlay-dir", overlays)
	require.NoError(t, err)

	var results []pipeline.FrameResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &results))
	require.Len(t, results, 2)
	for i, want := range []string{"ALPHA", "BRAVO"} {
		require.Len(t, results[i].Events, 1)
		assert.Equal(t, want, results[i].Events[0].Content)
		assert.Equal(t, dedup.New, results[i].Events[0].Decision)
	}

	assert.Equal(t, []string{"one_overlay.png", "two_overlay.png"}, testutil.ListFiles(t, overlays, "*"))
}

func TestImageCommandWithNonExistentFile(t *testing.T) {
	out := t.TempDir()
	_, _, err := runCLI(t, "image", "/non/existent/file.jpg", "--output-dir", out, "--no-lock")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 file(s) failed")
}
