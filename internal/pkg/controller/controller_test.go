package controller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwu-libraries/sfm-go/pkg/models"
)

func sleeperSpec(_ *models.HarvestRequest) ProcessSpec {
	return ProcessSpec{Command: "sleep", Args: []string{"30"}}
}

func TestController_StartTracksRunningChild(t *testing.T) {
	c := New(sleeperSpec)
	req := &models.HarvestRequest{ID: "h1"}

	require.NoError(t, c.Start(req))
	assert.Contains(t, c.Running(), "h1")

	require.NoError(t, c.Stop(context.Background(), "h1", time.Second))

	assert.Eventually(t, func() bool {
		return len(c.Running()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestController_StartRejectsDuplicateID(t *testing.T) {
	c := New(sleeperSpec)
	req := &models.HarvestRequest{ID: "h1"}

	require.NoError(t, c.Start(req))
	defer c.Stop(context.Background(), "h1", time.Second)

	err := c.Start(req)
	assert.Error(t, err)
}

func TestController_StopUnknownIDErrors(t *testing.T) {
	c := New(sleeperSpec)
	err := c.Stop(context.Background(), "missing", time.Second)
	assert.Error(t, err)
}

func TestController_PauseAllStopsEveryChild(t *testing.T) {
	c := New(sleeperSpec)
	require.NoError(t, c.Start(&models.HarvestRequest{ID: "h1"}))
	require.NoError(t, c.Start(&models.HarvestRequest{ID: "h2"}))

	c.PauseAll(context.Background(), time.Second)

	assert.Empty(t, c.Running())
}
