package harvester

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gwu-libraries/sfm-go/internal/pkg/config"
	"github.com/gwu-libraries/sfm-go/internal/pkg/log"
	"github.com/gwu-libraries/sfm-go/internal/pkg/statestore"
	"github.com/gwu-libraries/sfm-go/pkg/models"
)

// TestMain guards the package's goroutine-heavy state machine (the
// processing/queueing/rollover loops started by Run) against leaking a
// goroutine past test teardown.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// publishedCall is one recorded Publish invocation, routing key and body
// both, so tests can assert on the actual JSON wire shape rather than just
// the routing key.
type publishedCall struct {
	RoutingKey string
	Body       interface{}
}

// fakePublisher records every publish call in order, body included, so
// tests can assert on the move -> commit -> publish -> clear ordering
// invariant and on the shape of what was published.
type fakePublisher struct {
	mu    sync.Mutex
	calls []publishedCall
}

func (f *fakePublisher) Publish(routingKey string, body interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, publishedCall{RoutingKey: routingKey, Body: body})
	return nil
}

func (f *fakePublisher) routingKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.RoutingKey
	}
	return out
}

// asJSON round-trips body through encoding/json into a map so tests can
// assert on field names and nesting the same way a real consumer parsing
// the bus message would see them.
func asJSON(t *testing.T, body interface{}) map[string]interface{} {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func newTestRun(t *testing.T) (*run, *fakePublisher) {
	t.Helper()
	config.Set(config.Default())
	cfg := config.Get()
	cfg.WorkingPath = t.TempDir()
	harvestPath := filepath.Join(t.TempDir(), "harvest-1-path")

	fs := afero.NewOsFs()
	tempDir := filepath.Join(cfg.WorkingPath, "harvest-1")
	require.NoError(t, fs.MkdirAll(tempDir, 0755))
	require.NoError(t, fs.MkdirAll(harvestPath, 0755))

	queue, err := openWARCQueue(filepath.Join(tempDir, "warc-queue"))
	require.NoError(t, err)
	t.Cleanup(func() { queue.Close() })

	store := statestore.NewDelayedSetAdapter(statestore.NewJSON(fs, filepath.Join(harvestPath, "state.json")))
	pub := &fakePublisher{}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := &run{
		req: &models.HarvestRequest{
			ID:            "harvest-1",
			Type:          "test",
			Path:          harvestPath,
			CollectionSet: models.CollectionSet{ID: "collection-set-1"},
			Collection:    models.Collection{ID: "collection-1"},
			RoutingKey:    "harvest.start.test.unittest",
		},
		typeName:       "TestHarvester",
		result:         models.NewHarvestResult(),
		fs:             fs,
		tempDir:        tempDir,
		store:          store,
		queue:          queue,
		publisher:      pub,
		ctx:            ctx,
		cancel:         cancel,
		pauseCh:        make(chan struct{}, 1),
		triesRemaining: cfg.Tries,
		logger:         log.NewFieldedLogger(&log.Fields{"component": "harvester.test"}),
	}
	return h, pub
}

func TestProcessOneWARC_MoveCommitPublishOrdering(t *testing.T) {
	h, pub := newTestRun(t)

	// "test_1-20151109195229879-00000-….warc.gz" containing "Fake warc" is
	// spec.md's own S1 end-to-end fixture: 9 bytes, sha1
	// 3d63d3c46d5dfac8495621c9c697e2089e5359b2.
	warcName := "test_1-20151109195229879-00000.warc.gz"
	srcPath := filepath.Join(h.tempDir, warcName)
	require.NoError(t, afero.WriteFile(h.fs, srcPath, []byte("Fake warc"), 0644))

	h.result.TokenUpdates = map[string]string{"seed-1": "old-token"}
	h.result.Uids = map[string]string{"old-token": "seed-1"}

	err := h.processOneWARC(srcPath)
	require.NoError(t, err)

	// Source file moved out of the working dir.
	_, statErr := h.fs.Stat(srcPath)
	assert.True(t, os.IsNotExist(statErr))

	wantFinal := filepath.Join(h.req.Path, "2015/11/09/19", warcName)
	info, err := h.fs.Stat(wantFinal)
	require.NoError(t, err)
	assert.Equal(t, int64(len("Fake warc")), info.Size())

	require.Len(t, h.result.Warcs, 1)
	assert.Equal(t, wantFinal, h.result.Warcs[0])
	assert.Equal(t, int64(len("Fake warc")), h.result.WarcBytes)

	// warc_created must be published after the move, and status after that.
	keys := pub.routingKeys()
	require.Len(t, keys, 2)
	assert.Equal(t, "warc_created", keys[0])
	assert.Equal(t, "harvest.status.test.unittest", keys[1])

	created := asJSON(t, pub.calls[0].Body)
	assert.Equal(t, map[string]interface{}{"id": "harvest-1", "type": "test"}, created["harvest"])
	assert.Equal(t, map[string]interface{}{"id": "collection-set-1"}, created["collection_set"])
	assert.Equal(t, map[string]interface{}{"id": "collection-1"}, created["collection"])
	warc := created["warc"].(map[string]interface{})
	assert.Equal(t, "3d63d3c46d5dfac8495621c9c697e2089e5359b2", warc["sha1"])
	assert.EqualValues(t, 9, warc["bytes"])
	assert.Equal(t, wantFinal, warc["path"])

	status := asJSON(t, pub.calls[1].Body)
	assert.Equal(t, "running", status["status"])
	assert.Equal(t, map[string]interface{}{"count": float64(1), "bytes": float64(9)}, status["warcs"])

	// Per-seed progress tokens are cleared only after the hand-off is durable.
	assert.Empty(t, h.result.TokenUpdates)
	assert.Nil(t, h.result.Uids)

	// A resumable snapshot is left behind reflecting the committed state.
	snapPath := filepath.Join(h.tempDir, "last_result.json")
	_, err = h.fs.Stat(snapPath)
	require.NoError(t, err)
}

func TestProcessOneWARC_MissingFileIsNotAnError(t *testing.T) {
	h, pub := newTestRun(t)

	err := h.processOneWARC(filepath.Join(h.tempDir, "does-not-exist.warc.gz"))
	require.NoError(t, err)
	assert.Empty(t, pub.calls)
	assert.Empty(t, h.result.Warcs)
}

func TestFinish_PausedKeepsSnapshotForResume(t *testing.T) {
	h, pub := newTestRun(t)
	h.pausedFlag = true

	h.finish(nil)

	keys := pub.routingKeys()
	require.Len(t, keys, 1)
	assert.Equal(t, "harvest.status.test.unittest", keys[0])
	status := asJSON(t, pub.calls[0].Body)
	assert.Equal(t, "paused", status["status"])

	snapPath := filepath.Join(h.tempDir, "last_result.json")
	_, err := h.fs.Stat(snapPath)
	require.NoError(t, err, "paused harvest must leave a snapshot behind so it can resume")
}

func TestFinish_SuccessRemovesSnapshot(t *testing.T) {
	h, pub := newTestRun(t)

	snapPath := filepath.Join(h.tempDir, "last_result.json")
	require.NoError(t, afero.WriteFile(h.fs, snapPath, []byte(`{}`), 0644))

	h.finish(nil)

	assert.True(t, h.result.Success)
	_, err := h.fs.Stat(snapPath)
	assert.True(t, os.IsNotExist(err), "completed harvest must not leave a stale snapshot")

	status := asJSON(t, pub.calls[0].Body)
	assert.Equal(t, "completed success", status["status"])
}

// fakeSeeder lets mainLoop tests control success/failure per call without a
// real platform integration.
type fakeSeeder struct {
	streaming bool
	attempts  int
	fail      func(attempt int) error
}

func (f *fakeSeeder) Streaming() bool { return f.streaming }

func (f *fakeSeeder) HarvestSeeds(ctx context.Context, req *models.HarvestRequest, client *http.Client, store statestore.Store, result *models.HarvestResult) error {
	f.attempts++
	if f.fail != nil {
		return f.fail(f.attempts)
	}
	return nil
}

func TestMainLoop_RetriesThenExhausts(t *testing.T) {
	h, _ := newTestRun(t)
	h.triesRemaining = 2

	seeder := &fakeSeeder{fail: func(int) error { return errors.New("boom") }}
	h.seeder = seeder
	h.client = &http.Client{}

	err := h.mainLoop()
	require.Error(t, err)
	assert.Equal(t, 2, seeder.attempts)
	require.Len(t, h.result.Errors, 1)
	assert.Equal(t, "TRIES_EXHAUSTED", h.result.Errors[0].Code)
}

func TestMainLoop_NonStreamingReturnsAfterOneCleanPass(t *testing.T) {
	h, _ := newTestRun(t)

	seeder := &fakeSeeder{}
	h.seeder = seeder
	h.client = &http.Client{}

	err := h.mainLoop()
	require.NoError(t, err)
	assert.Equal(t, 1, seeder.attempts)
}

func TestSendStatus_RoutingKeyDerivedFromInboundStartKey(t *testing.T) {
	h, pub := newTestRun(t)
	h.sendStatus(models.StatusRunning)
	keys := pub.routingKeys()
	require.Len(t, keys, 1)
	assert.Equal(t, "harvest.status.test.unittest", keys[0])
}

func TestSendStatus_TerminalStatusesUseNormativeWireStrings(t *testing.T) {
	h, pub := newTestRun(t)
	h.sendStatus(models.StatusSuccess)
	status := asJSON(t, pub.calls[0].Body)
	assert.Equal(t, "completed success", status["status"])
}
