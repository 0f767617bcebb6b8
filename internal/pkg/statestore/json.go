package statestore

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/spf13/afero"
)

// JSON is a Store backed by a single JSON file, reloaded from disk on every
// read so that out-of-process inspection/editing is always reflected -
// matching JsonHarvestStateStore's reload-on-every-call behavior. Writes are
// atomic: marshal to a temp file then rename over the target.
type JSON struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

func NewJSON(fs afero.Fs, path string) *JSON {
	return &JSON{fs: fs, path: path}
}

func (j *JSON) load() (map[string]map[string]interface{}, error) {
	exists, err := afero.Exists(j.fs, j.path)
	if err != nil {
		return nil, fmt.Errorf("checking state file: %w", err)
	}
	if !exists {
		return make(map[string]map[string]interface{}), nil
	}

	data, err := afero.ReadFile(j.fs, j.path)
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	if len(data) == 0 {
		return make(map[string]map[string]interface{}), nil
	}

	var out map[string]map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing state file: %w", err)
	}
	return out, nil
}

func (j *JSON) save(state map[string]map[string]interface{}) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	tmp := j.path + ".tmp"
	if err := afero.WriteFile(j.fs, tmp, data, 0644); err != nil {
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := j.fs.Rename(tmp, j.path); err != nil {
		return fmt.Errorf("renaming temp state file: %w", err)
	}
	return nil
}

func (j *JSON) GetState(resourceType, key string) interface{} {
	j.mu.Lock()
	defer j.mu.Unlock()

	state, err := j.load()
	if err != nil {
		return nil
	}
	bucket, ok := state[resourceType]
	if !ok {
		return nil
	}
	return bucket[key]
}

func (j *JSON) SetState(resourceType, key string, value interface{}) {
	j.mu.Lock()
	defer j.mu.Unlock()

	state, err := j.load()
	if err != nil {
		state = make(map[string]map[string]interface{})
	}

	if value == nil {
		if bucket, ok := state[resourceType]; ok {
			delete(bucket, key)
			if len(bucket) == 0 {
				delete(state, resourceType)
			}
		}
	} else {
		bucket, ok := state[resourceType]
		if !ok {
			bucket = make(map[string]interface{})
			state[resourceType] = bucket
		}
		bucket[key] = value
	}

	_ = j.save(state)
}

func (j *JSON) GetStateList(resourceType string) []KV {
	j.mu.Lock()
	defer j.mu.Unlock()

	state, err := j.load()
	if err != nil {
		return nil
	}
	bucket, ok := state[resourceType]
	if !ok {
		return nil
	}
	out := make([]KV, 0, len(bucket))
	for k, v := range bucket {
		out = append(out, KV{Key: k, Value: v})
	}
	return out
}

// DelayedSetAdapter overlays a backing Store with an in-memory buffer of
// pending writes, flushed only at Flush() — the Go port of
// DelayedSetStateStoreAdapter, used so a harvester's per-request state
// updates don't hit disk until a safe commit point (after a WARC is moved
// and the result snapshot is about to be saved).
type DelayedSetAdapter struct {
	backing Store
	pending *Dict
	mu      sync.Mutex
}

func NewDelayedSetAdapter(backing Store) *DelayedSetAdapter {
	return &DelayedSetAdapter{backing: backing, pending: NewDict()}
}

func (d *DelayedSetAdapter) GetState(resourceType, key string) interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if v := d.pending.GetState(resourceType, key); v != nil {
		return v
	}
	return d.backing.GetState(resourceType, key)
}

// SetState buffers the write in memory; it is not visible to the backing
// store until Flush is called.
func (d *DelayedSetAdapter) SetState(resourceType, key string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending.SetState(resourceType, key, value)
}

func (d *DelayedSetAdapter) GetStateList(resourceType string) []KV {
	d.mu.Lock()
	defer d.mu.Unlock()
	seen := make(map[string]bool)
	out := d.pending.GetStateList(resourceType)
	for _, kv := range out {
		seen[kv.Key] = true
	}
	for _, kv := range d.backing.GetStateList(resourceType) {
		if !seen[kv.Key] {
			out = append(out, kv)
		}
	}
	return out
}

// Flush writes every pending key through to the backing store and clears the
// buffer, mirroring DelayedSetStateStoreAdapter.pass_state().
func (d *DelayedSetAdapter) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for resourceType, bucket := range d.pending.data {
		for key, value := range bucket {
			d.backing.SetState(resourceType, key, value)
		}
	}
	d.pending = NewDict()
}
