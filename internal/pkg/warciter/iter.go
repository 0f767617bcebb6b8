package warciter

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/philippgille/gokv/leveldb"
	"github.com/zeebo/xxh3"

	"github.com/gwu-libraries/sfm-go/internal/pkg/log"
	"github.com/gwu-libraries/sfm-go/pkg/models"
)

// Options mirrors the keyword arguments BaseWarcIter.iter() takes:
// an item-type allowlist, an optional dedupe store, and a date range.
type Options struct {
	LimitItemTypes []string
	Dedupe         bool
	DedupeDir      string
	ItemDateStart  *time.Time
	ItemDateEnd    *time.Time
}

// Iterate opens path (a WARC or WARC.gz file) and streams every selected
// item from its `response` records to out, closing out when done.
func Iterate(path string, opts Options, out chan<- models.IterItem) error {
	logger := log.NewFieldedLogger(&log.Fields{"component": "warciter"})
	defer close(out)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening warc file %s: %w", path, err)
	}
	defer f.Close()

	rr, err := newReader(f)
	if err != nil {
		return err
	}

	var dedupeStore *leveldb.Store
	if opts.Dedupe {
		store, err := leveldb.NewStore(leveldb.Options{Path: opts.DedupeDir})
		if err != nil {
			return fmt.Errorf("opening dedupe store: %w", err)
		}
		defer store.Close()
		dedupeStore = &store
	}

	recordCount := 0
	yieldCount := 0

	for {
		rec, err := rr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading record: %w", err)
		}
		recordCount++

		if rec.Type != "response" {
			continue
		}

		items, err := itemsFromRecord(rec)
		if err != nil {
			logger.Warn("failed to parse record payload", "err", err.Error(), "uri", rec.TargetURI)
			continue
		}

		for _, item := range items {
			if !typeAllowed(opts.LimitItemTypes, item.Type) {
				continue
			}
			if opts.ItemDateStart != nil && item.Date.Before(*opts.ItemDateStart) {
				continue
			}
			if opts.ItemDateEnd != nil && item.Date.After(*opts.ItemDateEnd) {
				continue
			}
			if dedupeStore != nil && isDuplicate(dedupeStore, item.ID) {
				continue
			}

			out <- item
			yieldCount++
		}

		debugCounts(logger, recordCount, yieldCount)
	}

	return nil
}

// itemsFromRecord parses a response record's body as a sequence of
// newline-delimited JSON objects, mirroring _item_iter's
// stream.readline()-while-non-empty loop.
func itemsFromRecord(rec *record) ([]models.IterItem, error) {
	var out []models.IterItem

	scanner := bufio.NewScanner(bytes.NewReader(rec.Content))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var payload map[string]interface{}
		if err := json.Unmarshal([]byte(line), &payload); err != nil {
			continue
		}

		id, _ := payload["id"].(string)
		if id == "" {
			id = rec.RecordID
		}

		out = append(out, models.IterItem{
			Type: itemType(payload),
			ID:   id,
			Date: rec.Date,
			URL:  rec.TargetURI,
			Item: payload,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func itemType(payload map[string]interface{}) string {
	if t, ok := payload["type"].(string); ok {
		return t
	}
	return "item"
}

func typeAllowed(allowlist []string, t string) bool {
	if len(allowlist) == 0 {
		return true
	}
	for _, a := range allowlist {
		if a == t {
			return true
		}
	}
	return false
}

func isDuplicate(store *leveldb.Store, id string) bool {
	key := dedupeKey(id)
	var seen bool
	found, err := store.Get(key, &seen)
	if err != nil {
		return false
	}
	if found {
		return true
	}
	_ = store.Set(key, true)
	return false
}

func dedupeKey(id string) string {
	sum := xxh3.HashString(id)
	return fmt.Sprintf("%x", sum)
}

// debugCounts logs progress at two different cadences depending on volume -
// every 1000 records or every 100 yielded items, matching
// BaseWarcIter._debug_counts's two heuristics.
func debugCounts(logger *log.FieldedLogger, recordCount, yieldCount int) {
	if recordCount%1000 == 0 {
		logger.Debug("scanned records", "count", recordCount)
	}
	if yieldCount > 0 && yieldCount%100 == 0 {
		logger.Debug("yielded items", "count", yieldCount)
	}
}
