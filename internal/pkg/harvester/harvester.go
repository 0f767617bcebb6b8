// Package harvester implements the harvest worker's main state machine: the
// direct Go port of sfmutils/harvester.py's BaseHarvester. A platform's
// integration supplies only a Seeder (the analogue of harvest_seeds); this
// package owns resume-on-crash, the recording proxy scope, WARC rollover,
// the background WARC-processing worker, status reporting, pause/stop, and
// retry.
package harvester

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/gwu-libraries/sfm-go/internal/pkg/config"
	"github.com/gwu-libraries/sfm-go/internal/pkg/log"
	"github.com/gwu-libraries/sfm-go/internal/pkg/proxy"
	"github.com/gwu-libraries/sfm-go/internal/pkg/stats"
	"github.com/gwu-libraries/sfm-go/internal/pkg/statestore"
	"github.com/gwu-libraries/sfm-go/pkg/models"
)

// Seeder is implemented by a platform-specific harvester integration. It
// should run until ctx is canceled (streaming platforms) or until one full
// pass over the request's seeds is done (bounded platforms), using client
// for every outbound call so traffic is captured by the recording proxy.
type Seeder interface {
	HarvestSeeds(ctx context.Context, req *models.HarvestRequest, client *http.Client, store statestore.Store, result *models.HarvestResult) error

	// Streaming reports whether this harvest never naturally completes - if
	// true, the runtime re-invokes HarvestSeeds after every stream restart
	// interval and after every recoverable error, instead of treating
	// return-with-no-error as completion.
	Streaming() bool
}

var (
	ErrHarvesterAlreadyRunning = fmt.Errorf("harvester already running for this request")
)

// publisher is the subset of *bus.Publisher the harvester needs, narrowed
// out so tests can exercise the status/warc_created publish ordering
// without a real broker connection.
type publisher interface {
	Publish(routingKey string, body interface{}) error
}

// run holds the state for one in-flight harvest, analogous to a single
// BaseHarvester instance processing one on_message call.
type run struct {
	req      *models.HarvestRequest
	typeName string
	seeder   Seeder
	result   *models.HarvestResult

	fs        afero.Fs
	tempDir   string
	store     *statestore.DelayedSetAdapter
	queue     *warcQueue
	publisher publisher

	proxyScope *proxy.Scope
	client     *http.Client

	ctx        context.Context
	cancel     context.CancelFunc
	pauseCh    chan struct{}
	pausedFlag bool

	triesRemaining int
	wg             sync.WaitGroup

	logger *log.FieldedLogger
}

// Run executes one harvest request to completion (or pause, or failure),
// blocking until it does. It is the Go shape of on_message.
func Run(ctx context.Context, req *models.HarvestRequest, seeder Seeder, pub publisher) error {
	cfg := config.Get()

	logger := log.NewFieldedLogger(&log.Fields{"component": "harvester.run", "harvest_id": req.ID})
	stats.HarvestRunningIncr()
	defer stats.HarvestRunningDecr()

	// tempDir is the ephemeral scratch area for this run (proxy capture
	// output, resume snapshot) - scoped by the service's own WorkingPath, not
	// by the request. req.Path is the persistent directory the request asks
	// final WARCs and state.json to land in.
	tempDir := filepath.Join(cfg.WorkingPath, req.ID)
	fs := afero.NewOsFs()
	if err := fs.MkdirAll(tempDir, 0755); err != nil {
		return fmt.Errorf("creating temp dir: %w", err)
	}
	if err := fs.MkdirAll(req.Path, 0755); err != nil {
		return fmt.Errorf("creating harvest path: %w", err)
	}

	snapshotPath := filepath.Join(tempDir, "last_result.json")
	resuming, err := isResuming(fs, tempDir, snapshotPath)
	if err != nil {
		return fmt.Errorf("checking resume state: %w", err)
	}

	result := models.NewHarvestResult()
	if resuming {
		if snap, err := loadSnapshot(fs, snapshotPath); err == nil {
			result.RestoreSnapshot(snap)
			logger.Info("resuming previous harvest", "warcs_so_far", len(result.Warcs))
		}
	} else {
		now := time.Now().UTC()
		result.Started = &now
	}

	store := statestore.NewDelayedSetAdapter(statestore.NewJSON(fs, filepath.Join(req.Path, "state.json")))

	queue, err := openWARCQueue(filepath.Join(tempDir, "warc-queue"))
	if err != nil {
		return fmt.Errorf("opening warc queue: %w", err)
	}
	defer queue.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	h := &run{
		req:            req,
		typeName:       fmt.Sprintf("%T", seeder),
		seeder:         seeder,
		result:         result,
		fs:             fs,
		tempDir:        tempDir,
		store:          store,
		queue:          queue,
		publisher:      pub,
		ctx:            runCtx,
		cancel:         cancel,
		pauseCh:        make(chan struct{}, 1),
		triesRemaining: cfg.Tries,
		logger:         logger,
	}

	h.installSignalHandlers()

	scope, err := proxy.Start(proxy.Settings{
		TempDir:   tempDir,
		Prefix:    req.ID,
		PortStart: cfg.ProxyPortStart,
		PortEnd:   cfg.ProxyPortEnd,
	})
	if err != nil {
		return fmt.Errorf("starting recording proxy: %w", err)
	}
	h.proxyScope = scope
	h.client = scope.Client()

	h.wg.Add(1)
	go h.processWARCFilesLoop()

	h.wg.Add(1)
	go h.queueWARCFilesLoop()

	if h.seeder.Streaming() && cfg.WarcRolloverSecs > 0 {
		h.wg.Add(1)
		go h.rolloverLoop()
	}

	runErr := h.mainLoop()

	h.finish(runErr)

	h.cancel()
	h.wg.Wait()
	h.proxyScope.Stop(30 * time.Second)

	return runErr
}

func isResuming(fs afero.Fs, tempDir, snapshotPath string) (bool, error) {
	if exists, err := afero.Exists(fs, snapshotPath); err != nil {
		return false, err
	} else if exists {
		return true, nil
	}
	entries, err := afero.ReadDir(fs, tempDir)
	if err != nil {
		return false, nil
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".warc" || filepath.Ext(e.Name()) == ".gz" {
			return true, nil
		}
	}
	return false, nil
}

func loadSnapshot(fs afero.Fs, path string) (models.ResultSnapshot, error) {
	var snap models.ResultSnapshot
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return snap, err
	}
	err = json.Unmarshal(data, &snap)
	return snap, err
}

func (h *run) saveSnapshot() {
	snap := h.result.Snapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		h.logger.Error("failed to marshal snapshot", "err", err.Error())
		return
	}
	path := filepath.Join(h.tempDir, "last_result.json")
	tmp := path + ".tmp"
	if err := afero.WriteFile(h.fs, tmp, data, 0644); err != nil {
		h.logger.Error("failed to write snapshot", "err", err.Error())
		return
	}
	if err := h.fs.Rename(tmp, path); err != nil {
		h.logger.Error("failed to commit snapshot", "err", err.Error())
	}
}

func (h *run) installSignalHandlers() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGUSR1)

	go func() {
		for {
			select {
			case <-h.ctx.Done():
				signal.Stop(sigCh)
				return
			case sig := <-sigCh:
				switch sig {
				case syscall.SIGTERM, syscall.SIGINT:
					h.logger.Info("received stop signal")
					h.cancel()
				case syscall.SIGUSR1:
					h.logger.Info("received pause signal")
					h.pausedFlag = true
					select {
					case h.pauseCh <- struct{}{}:
					default:
					}
				}
			}
		}
	}()
}

// mainLoop is the tries-exhausted retry loop wrapped around the seeder
// callback, matching on_message's nested try/except around warced(...) +
// harvest_seeds(...).
func (h *run) mainLoop() error {
	for {
		if h.ctx.Err() != nil {
			return nil
		}

		h.sendStatus(models.StatusRunning)

		segCtx := h.ctx
		var segCancel context.CancelFunc
		if h.seeder.Streaming() {
			cfg := config.Get()
			if cfg.StreamRestartIntervalSecs > 0 {
				segCtx, segCancel = context.WithTimeout(h.ctx, time.Duration(cfg.StreamRestartIntervalSecs)*time.Second)
			}
		}

		err := h.seeder.HarvestSeeds(segCtx, h.req, h.client, h.store, h.result)
		if segCancel != nil {
			segCancel()
		}

		if h.ctx.Err() != nil {
			return nil
		}

		if err != nil {
			h.triesRemaining--
			h.result.Warning("HARVEST_ERROR", err.Error(), nil)
			h.logger.Warn("harvest attempt failed", "err", err.Error(), "tries_remaining", h.triesRemaining)
			if h.triesRemaining <= 0 {
				h.result.Error("TRIES_EXHAUSTED", "exhausted retries", nil)
				return err
			}
			continue
		}

		if !h.seeder.Streaming() {
			return nil
		}
		// Streaming harvesters loop again after a clean segment return
		// (e.g. the restart-interval deadline), unless stopped/paused.
	}
}

func (h *run) finish(runErr error) {
	h.drainQueue()
	h.store.Flush()

	switch {
	case h.pausedFlag:
		h.sendStatus(models.StatusPaused)
	case runErr != nil:
		h.result.Success = false
		h.sendStatus(models.StatusFailure)
	default:
		h.result.Success = true
		h.sendStatus(models.StatusSuccess)
	}

	now := time.Now().UTC()
	h.result.Ended = &now

	if h.pausedFlag {
		h.saveSnapshot()
	} else {
		_ = h.fs.Remove(filepath.Join(h.tempDir, "last_result.json"))
	}
}

// drainQueue blocks until every enqueued WARC file has been processed, the
// Go analogue of Python's queue.Queue.join() in _finish_processing.
func (h *run) drainQueue() {
	for h.queue.length() > 0 {
		time.Sleep(100 * time.Millisecond)
	}
}

// processWARCFilesLoop is the background worker moving completed WARC files
// into their dated final location, committing state, and notifying the bus
// - in that exact order, matching _process_warc_thread.
func (h *run) processWARCFilesLoop() {
	defer h.wg.Done()

	for {
		path, ok := h.queue.dequeue()
		if !ok {
			select {
			case <-h.ctx.Done():
				return
			case <-time.After(time.Second):
				continue
			}
		}

		if err := h.processOneWARC(path); err != nil {
			h.logger.Error("failed to process warc file", "path", path, "err", err.Error())
		}
	}
}

func (h *run) processOneWARC(path string) error {
	if _, err := h.fs.Stat(path); err != nil {
		// Already processed or removed; skip, matching the file-existence
		// guard in _process_warc_thread.
		return nil
	}

	finalDir := datedPathForWARC("", filepath.Base(path))
	finalPath := filepath.Join(h.req.Path, finalDir)
	if err := h.fs.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		return fmt.Errorf("creating destination dir: %w", err)
	}
	if err := h.fs.Rename(path, finalPath); err != nil {
		return fmt.Errorf("moving warc file: %w", err)
	}

	sum, size, err := sha1AndSize(h.fs, finalPath)
	if err != nil {
		return fmt.Errorf("hashing warc file: %w", err)
	}

	h.result.Warcs = append(h.result.Warcs, finalPath)
	h.result.WarcBytes += size

	desc := models.WARCDescriptor{
		ID:              uuid.New().String(),
		Path:            finalPath,
		SHA1:            sum,
		Bytes:           size,
		DateCreated:     time.Now().UTC(),
		HarvestID:       h.req.ID,
		HarvestType:     h.req.Type,
		CollectionSetID: h.req.CollectionSet.ID,
		CollectionID:    h.req.Collection.ID,
	}

	h.store.Flush()
	h.sendWARCCreated(desc)
	h.sendStatus(models.StatusRunning)

	h.result.TokenUpdates = map[string]string{}
	h.result.Uids = nil

	h.saveSnapshot()
	stats.WARCProcessedIncr()

	return nil
}

func sha1AndSize(fs afero.Fs, path string) (string, int64, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	hasher := sha1.New()
	n, err := io.Copy(hasher, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}

// queueWARCFilesLoop periodically scans the capture directory for WARC
// files that have finished rotating (i.e. are no longer the active write
// target) and enqueues them, re-arming itself every
// QueueWarcFilesIntervalSecs - matching _queue_warc_files's
// self-rearming threading.Timer.
func (h *run) queueWARCFilesLoop() {
	defer h.wg.Done()

	interval := time.Duration(config.Get().QueueWarcFilesIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 300 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.scanAndEnqueue()
		}
	}
}

func (h *run) scanAndEnqueue() {
	entries, err := afero.ReadDir(h.fs, h.tempDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) != ".gz" && filepath.Ext(name) != ".warc" {
			continue
		}
		if filepath.Ext(name) == ".gz" && filepath.Ext(filepath.Base(name[:len(name)-3])) != ".warc" {
			continue
		}
		full := filepath.Join(h.tempDir, name)
		if err := h.queue.enqueue(full); err != nil {
			h.logger.Error("failed to enqueue warc file", "path", full, "err", err.Error())
		}
	}
}

// rolloverLoop restarts the recording proxy's underlying WARC writer on a
// fixed interval so long streaming harvests don't accumulate one unbounded
// WARC file, matching warc_rollover_secs.
func (h *run) rolloverLoop() {
	defer h.wg.Done()

	interval := time.Duration(config.Get().WarcRolloverSecs) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			next, err := h.proxyScope.Restart(fmt.Sprintf("%s-%d", h.req.ID, time.Now().Unix()))
			if err != nil {
				h.logger.Error("failed to roll over proxy", "err", err.Error())
				continue
			}
			h.proxyScope = next
			h.client = next.Client()
		}
	}
}

