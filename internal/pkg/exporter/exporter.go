// Package exporter implements the export consumer: given an ExportRequest,
// resolve the relevant WARCs through the catalog, stream items out of them,
// and write a segmented tabular/line-oriented output - the Go port of
// sfmutils/exporter.py's BaseExporter.
package exporter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/remeh/sizedwaitgroup"

	"github.com/gwu-libraries/sfm-go/internal/pkg/catalog"
	"github.com/gwu-libraries/sfm-go/internal/pkg/config"
	"github.com/gwu-libraries/sfm-go/internal/pkg/exporter/formats"
	"github.com/gwu-libraries/sfm-go/internal/pkg/log"
	"github.com/gwu-libraries/sfm-go/internal/pkg/stats"
	"github.com/gwu-libraries/sfm-go/internal/pkg/warciter"
	"github.com/gwu-libraries/sfm-go/pkg/models"
)

// publisher is the subset of *bus.Publisher Export needs, narrowed so tests
// can assert on published export-status messages without a broker.
type publisher interface {
	Publish(routingKey string, body interface{}) error
}

// Export resolves req's WARCs via cat, iterates every one of them, and
// writes the chosen format's segmented output to req.Path. It mirrors
// BaseExporter.on_message end to end, including the atomic
// temp-dir-then-rename-into-place move _file_fix performs.
func Export(req *models.ExportRequest, cat *catalog.Client, pub publisher) error {
	logger := log.NewFieldedLogger(&log.Fields{"component": "exporter", "export_id": req.ID})

	result := &models.Result{}
	now := time.Now().UTC()
	result.Started = &now

	seedUIDs := make([]string, 0, len(req.Seeds))
	for _, s := range req.Seeds {
		seedUIDs = append(seedUIDs, s.UID)
	}

	warcs, err := cat.WARCs(req.Collection.ID, seedUIDs)
	if err != nil {
		result.Error("CATALOG_ERROR", err.Error(), nil)
		sendExportStatus(pub, req, result, false)
		return fmt.Errorf("resolving warcs: %w", err)
	}

	writer, source, ok := formats.ByName(req.Format)
	if !ok {
		result.Error("UNKNOWN_FORMAT", fmt.Sprintf("unknown export format %q", req.Format), nil)
		sendExportStatus(pub, req, result, false)
		return fmt.Errorf("unknown export format %q", req.Format)
	}

	tempDir := req.Path + ".tmp"
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		result.Error("IO_ERROR", err.Error(), nil)
		sendExportStatus(pub, req, result, false)
		return fmt.Errorf("creating temp export dir: %w", err)
	}

	// WARCs are iterated concurrently, bounded by the configured
	// WorkersCount. Each WARC's items
	// land in their own slot so the final ordering matches the resolved
	// warcs list regardless of which goroutine finishes first.
	concurrency := config.Get().WorkersCount
	if concurrency < 1 {
		concurrency = 1
	}
	if req.Dedupe {
		// The dedupe store lives at one on-disk path for the whole export, so
		// cross-WARC dedupe only works if WARCs open it one at a time.
		concurrency = 1
	}
	swg := sizedwaitgroup.New(concurrency)
	itemsByWARC := make([][]models.IterItem, len(warcs))
	var resultMu sync.Mutex

	for i, desc := range warcs {
		swg.Add()
		go func(i int, path string) {
			defer swg.Done()

			ch := make(chan models.IterItem)
			errCh := make(chan error, 1)
			go func() {
				errCh <- warciter.Iterate(path, warciter.Options{
					Dedupe:        req.Dedupe,
					DedupeDir:     filepath.Join(tempDir, "dedupe"),
					ItemDateStart: req.ItemDateStart,
					ItemDateEnd:   req.ItemDateEnd,
				}, ch)
			}()

			var collected []models.IterItem
			for item := range ch {
				collected = append(collected, item)
				stats.ItemExportedIncr()
			}
			itemsByWARC[i] = collected

			if err := <-errCh; err != nil {
				logger.Error("failed to iterate warc", "path", path, "err", err.Error())
				resultMu.Lock()
				result.Warning("WARC_READ_ERROR", err.Error(), map[string]interface{}{"path": path})
				resultMu.Unlock()
			}
		}(i, desc.Path)
	}
	swg.Wait()

	var items []models.IterItem
	for _, warcItems := range itemsByWARC {
		items = append(items, warcItems...)
	}

	if _, err := writeSegmented(tempDir, req.ID, req.SegmentSize, items, writer, source); err != nil {
		result.Error("WRITE_ERROR", err.Error(), nil)
		sendExportStatus(pub, req, result, false)
		return fmt.Errorf("writing export output: %w", err)
	}

	if err := os.RemoveAll(req.Path); err != nil && !os.IsNotExist(err) {
		result.Error("IO_ERROR", err.Error(), nil)
		sendExportStatus(pub, req, result, false)
		return fmt.Errorf("clearing previous export path: %w", err)
	}
	if err := os.Rename(tempDir, req.Path); err != nil {
		result.Error("IO_ERROR", err.Error(), nil)
		sendExportStatus(pub, req, result, false)
		return fmt.Errorf("moving export into place: %w", err)
	}

	result.Success = true
	sendExportStatus(pub, req, result, true)
	logger.Info("export complete", "items", len(items), "path", req.Path)
	return nil
}

// exportStatusMessage matches _send_response_message's payload: the same
// status shape as a harvest status message, minus warcs/stats/token_updates.
type exportStatusMessage struct {
	ID          string       `json:"id"`
	Status      string       `json:"status"`
	DateStarted *time.Time   `json:"date_started,omitempty"`
	DateEnded   *time.Time   `json:"date_ended,omitempty"`
	Infos       []models.Msg `json:"infos,omitempty"`
	Warnings    []models.Msg `json:"warnings,omitempty"`
	Errors      []models.Msg `json:"errors,omitempty"`
}

func sendExportStatus(pub publisher, req *models.ExportRequest, result *models.Result, success bool) {
	now := time.Now().UTC()
	result.Ended = &now

	status := models.StatusFailure
	if success {
		status = models.StatusSuccess
	}

	msg := exportStatusMessage{
		ID:          req.ID,
		Status:      models.WireStatus(status),
		DateStarted: result.Started,
		DateEnded:   result.Ended,
		Infos:       result.Infos,
		Warnings:    result.Warnings,
		Errors:      result.Errors,
	}

	routingKey := strings.Replace(req.RoutingKey, "start", "status", 1)
	_ = pub.Publish(routingKey, msg)
}
