package formats

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwu-libraries/sfm-go/pkg/models"
)

func sampleItems() []models.IterItem {
	return []models.IterItem{
		{ID: "1", Type: "post", Date: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), URL: "http://example.com/1", Item: map[string]interface{}{"id": "1", "text": "hello"}},
		{ID: "2", Type: "post", Date: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), URL: "http://example.com/2", Item: map[string]interface{}{"id": "2", "text": "world"}},
	}
}

func TestCSVWriter(t *testing.T) {
	dir := t.TempDir()
	w, source, ok := ByName("csv")
	require.True(t, ok)

	path := filepath.Join(dir, "out.csv")
	require.NoError(t, w.WriteSegment(path, sampleItems(), source))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id,type,date,url", lines[0])
}

func TestTSVWriter_UsesTabSeparator(t *testing.T) {
	dir := t.TempDir()
	w, source, ok := ByName("tsv")
	require.True(t, ok)

	path := filepath.Join(dir, "out.tsv")
	require.NoError(t, w.WriteSegment(path, sampleItems(), source))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\t")
}

func TestDehydrateWriter_OneIDPerLine(t *testing.T) {
	dir := t.TempDir()
	w, source, ok := ByName("dehydrate")
	require.True(t, ok)

	path := filepath.Join(dir, "out.txt")
	require.NoError(t, w.WriteSegment(path, sampleItems(), source))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n", string(data))
}

func TestFullJSONWriter_WritesRawItemPerLine(t *testing.T) {
	dir := t.TempDir()
	w, source, ok := ByName("json_full")
	require.True(t, ok)

	path := filepath.Join(dir, "out.json")
	require.NoError(t, w.WriteSegment(path, sampleItems(), source))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "\"text\":\"hello\"")
}

func TestByName_UnknownFormat(t *testing.T) {
	_, _, ok := ByName("pdf")
	assert.False(t, ok)
}
