package statestore

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDict_SetGet(t *testing.T) {
	d := NewDict()
	d.SetState("pages", "next", "abc123")
	assert.Equal(t, "abc123", d.GetState("pages", "next"))
	assert.Nil(t, d.GetState("pages", "missing"))
	assert.Nil(t, d.GetState("missing_type", "next"))
}

func TestDict_UnsetDeletesEmptyResourceType(t *testing.T) {
	d := NewDict()
	d.SetState("pages", "next", "abc123")
	d.SetState("pages", "next", nil)

	assert.Nil(t, d.GetState("pages", "next"))
	assert.Empty(t, d.GetStateList("pages"))
}

func TestNull_AlwaysNil(t *testing.T) {
	var n Null
	n.SetState("x", "y", "z")
	assert.Nil(t, n.GetState("x", "y"))
}

func TestJSON_PersistsAcrossInstances(t *testing.T) {
	fs := afero.NewMemMapFs()

	s1 := NewJSON(fs, "/work/state.json")
	s1.SetState("pages", "next", "page-2")

	s2 := NewJSON(fs, "/work/state.json")
	assert.Equal(t, "page-2", s2.GetState("pages", "next"))
}

func TestJSON_AtomicWriteLeavesNoTempFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewJSON(fs, "/work/state.json")
	s.SetState("pages", "next", "page-2")

	exists, err := afero.Exists(fs, "/work/state.json.tmp")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDelayedSetAdapter_BuffersUntilFlush(t *testing.T) {
	fs := afero.NewMemMapFs()
	backing := NewJSON(fs, "/work/state.json")
	adapter := NewDelayedSetAdapter(backing)

	adapter.SetState("pages", "next", "page-3")

	assert.Equal(t, "page-3", adapter.GetState("pages", "next"), "overlay should see its own pending write")
	assert.Nil(t, backing.GetState("pages", "next"), "backing store should not see it before Flush")

	adapter.Flush()
	assert.Equal(t, "page-3", backing.GetState("pages", "next"))
}
