package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_RejectsMissingRequiredField(t *testing.T) {
	req := &HarvestRequest{Type: "twitter_search"}
	err := Validate(req)
	assert.Error(t, err)
}

func TestValidate_AcceptsFullyPopulatedRequest(t *testing.T) {
	req := &HarvestRequest{
		ID:            "harvest-1",
		Type:          "twitter_search",
		Path:          "/tmp/harvest-1",
		CollectionSet: CollectionSet{ID: "collection-set-1"},
		Collection:    Collection{ID: "collection-1"},
	}
	assert.NoError(t, Validate(req))
}

func TestValidate_ControlMessageRequiresID(t *testing.T) {
	assert.Error(t, Validate(&ControlMessage{}))
	assert.NoError(t, Validate(&ControlMessage{ID: "harvest-1"}))
}
