// Package testharvester is a reference Seeder implementation wired into
// cmd/harvester's seed command, playing the role sfm-utils's own debug
// harvester test doubles play in its suite. It is not a real platform
// integration - those are out of scope (see SPEC_FULL.md).
package testharvester

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gwu-libraries/sfm-go/internal/pkg/statestore"
	"github.com/gwu-libraries/sfm-go/pkg/models"
)

// Harvester fetches each seed's URL (found in its Extra map under "url")
// once per seed with a GET through client, so the recording proxy writes each
// response into the harvester's WARC output. It is bounded (Streaming() == false):
// one pass over all seeds and it's done.
type Harvester struct{}

func (Harvester) Streaming() bool { return false }

func (Harvester) HarvestSeeds(ctx context.Context, req *models.HarvestRequest, client *http.Client, store statestore.Store, result *models.HarvestResult) error {
	for _, seed := range req.Seeds {
		url, _ := seed.Extra["url"].(string)
		if url == "" {
			result.Warning("MISSING_URL", fmt.Sprintf("seed %s has no url", seed.UID), nil)
			continue
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("building request for seed %s: %w", seed.UID, err)
		}

		resp, err := client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("fetching seed %s: %w", seed.UID, err)
		}
		resp.Body.Close()

		result.IncrHarvestCounter("items", 1)
		if seed.Token != "" {
			if result.Uids == nil {
				result.Uids = make(map[string]string)
			}
			result.Uids[seed.Token] = seed.UID
		}
		store.SetState("seeds", seed.UID, "fetched")
	}

	return nil
}
