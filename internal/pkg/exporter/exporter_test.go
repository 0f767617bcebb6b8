package exporter

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwu-libraries/sfm-go/internal/pkg/catalog"
	"github.com/gwu-libraries/sfm-go/pkg/models"
)

type recordingPublisher struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingPublisher) Publish(routingKey string, _ interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, routingKey)
	return nil
}

// writeSampleWARC writes a single "response" record containing two
// newline-delimited JSON items, matching the on-disk shape warciter.Iterate
// expects.
func writeSampleWARC(t *testing.T, dir string) string {
	t.Helper()
	body := `{"id":"1","type":"tweet"}` + "\n" + `{"id":"2","type":"tweet"}` + "\n"
	header := "WARC/1.0\r\n" +
		"WARC-Type: response\r\n" +
		"WARC-Target-URI: http://example.com/a\r\n" +
		"WARC-Record-ID: <urn:uuid:1>\r\n" +
		"WARC-Date: 2026-03-15T14:30:00Z\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n" +
		"\r\n" + body + "\r\n\r\n"

	path := filepath.Join(dir, "sample.warc")
	require.NoError(t, os.WriteFile(path, []byte(header), 0644))
	return path
}

func TestExport_ResolvesIteratesAndWritesSegmentedOutput(t *testing.T) {
	warcDir := t.TempDir()
	warcPath := writeSampleWARC(t, warcDir)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"results":[{"id":"w1","path":%q}]}`, warcPath)
	}))
	defer srv.Close()

	cat := catalog.New(srv.URL)
	pub := &recordingPublisher{}

	outDir := t.TempDir()
	exportPath := filepath.Join(outDir, "export-1")

	req := &models.ExportRequest{
		ID:         "export-1",
		Format:     "dehydrate",
		Path:       exportPath,
		Collection: models.Collection{ID: "collection-1"},
		RoutingKey: "export.start.dehydrate.collection",
	}

	err := Export(req, cat, pub)
	require.NoError(t, err)

	entries, err := os.ReadDir(exportPath)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(exportPath, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n", string(data))

	// The temp staging dir must not survive a successful export.
	_, statErr := os.Stat(exportPath + ".tmp")
	assert.True(t, os.IsNotExist(statErr))

	require.Len(t, pub.calls, 1)
	assert.Equal(t, "export.status.dehydrate.collection", pub.calls[0])
}

// writeNumberedWARC writes a single response record whose sole item's id is
// n, used to check that concurrent per-WARC iteration still concatenates
// items back in the catalog's resolved order.
func writeNumberedWARC(t *testing.T, dir string, n int) string {
	t.Helper()
	body := fmt.Sprintf(`{"id":"%d","type":"tweet"}`, n) + "\n"
	header := "WARC/1.0\r\n" +
		"WARC-Type: response\r\n" +
		"WARC-Target-URI: http://example.com/a\r\n" +
		"WARC-Record-ID: <urn:uuid:" + strconv.Itoa(n) + ">\r\n" +
		"WARC-Date: 2026-03-15T14:30:00Z\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n" +
		"\r\n" + body + "\r\n\r\n"

	path := filepath.Join(dir, fmt.Sprintf("sample-%d.warc", n))
	require.NoError(t, os.WriteFile(path, []byte(header), 0644))
	return path
}

func TestExport_ConcurrentWARCsPreserveResolvedOrder(t *testing.T) {
	warcDir := t.TempDir()
	const n = 8
	paths := make([]string, n)
	for i := 0; i < n; i++ {
		paths[i] = writeNumberedWARC(t, warcDir, i+1)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var results []string
		for _, p := range paths {
			results = append(results, fmt.Sprintf(`{"id":%q,"path":%q}`, p, p))
		}
		fmt.Fprintf(w, `{"results":[%s]}`, strings.Join(results, ","))
	}))
	defer srv.Close()

	cat := catalog.New(srv.URL)
	pub := &recordingPublisher{}
	exportPath := filepath.Join(t.TempDir(), "export-3")

	req := &models.ExportRequest{
		ID:         "export-3",
		Format:     "dehydrate",
		Path:       exportPath,
		Collection: models.Collection{ID: "collection-1"},
	}

	require.NoError(t, Export(req, cat, pub))

	entries, err := os.ReadDir(exportPath)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(exportPath, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n3\n4\n5\n6\n7\n8\n", string(data))
}

func TestExport_UnknownFormatPublishesFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[]}`)
	}))
	defer srv.Close()

	cat := catalog.New(srv.URL)
	pub := &recordingPublisher{}

	req := &models.ExportRequest{
		ID:         "export-2",
		Format:     "pdf",
		Path:       filepath.Join(t.TempDir(), "export-2"),
		RoutingKey: "export.start.pdf.collection",
	}

	err := Export(req, cat, pub)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown export format"))
	require.Len(t, pub.calls, 1)
	assert.Equal(t, "export.status.pdf.collection", pub.calls[0])
}
