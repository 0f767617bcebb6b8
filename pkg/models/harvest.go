package models

import (
	"time"

	"github.com/asaskevich/govalidator"
)

// Seed identifies one unit of work within a harvest (a user, a search term, a
// stream filter...) and carries the per-seed token/stream state a harvester
// needs to resume.
type Seed struct {
	UID   string                 `json:"uid"`
	Token string                 `json:"token,omitempty"`
	Extra map[string]interface{} `json:"-"`
}

// HarvestRequest is the payload of a `harvest.start.<platform>.<source>`
// message: what to harvest and where to write it.
//
// Path is the persistent directory the harvester owns for this request -
// final WARCs and state.json live under it, distinct from the ephemeral
// working directory (temp proxy output, resume snapshot) scoped by the
// service's own WorkingPath config. RoutingKey is the inbound routing key
// the request arrived on (e.g. "harvest.start.twitter.usertimeline"); it is
// not published on the wire, only carried so a status update can be
// addressed back to "harvest.status.<platform>.<source>" by replacing its
// "start" segment.
type HarvestRequest struct {
	ID            string                 `json:"id" valid:"required"`
	Type          string                 `json:"type" valid:"required"`
	Path          string                 `json:"path" valid:"required"`
	CollectionSet CollectionSet          `json:"collection_set"`
	Collection    Collection             `json:"collection"`
	Seeds         []Seed                 `json:"seeds"`
	RoutingKey    string                 `json:"routing_key,omitempty"`
	Credentials   map[string]interface{} `json:"credentials,omitempty"`
	Options       map[string]interface{} `json:"options,omitempty"`
}

// CollectionSet identifies the collection set a harvest's collection
// belongs to, carried alongside Collection on every request and echoed back
// on every warc_created notification.
type CollectionSet struct {
	ID string `json:"id" valid:"required"`
}

type Collection struct {
	ID string `json:"id" valid:"required"`
}

// ControlMessage is the payload of a `harvest.stop...` message addressed to
// an already-running harvest.
type ControlMessage struct {
	ID string `json:"id" valid:"required"`
}

// WARCDescriptor describes one WARC file, both as returned by the catalog's
// /warcs listing and as handed off internally from a harvest's WARC
// processing worker to its status reporter (which folds it into the nested
// warc_created wire shape rather than publishing this struct directly).
type WARCDescriptor struct {
	ID              string    `json:"id"`
	Path            string    `json:"path"`
	SHA1            string    `json:"sha1,omitempty"`
	Bytes           int64     `json:"bytes,omitempty"`
	DateCreated     time.Time `json:"date_created,omitempty"`
	HarvestID       string    `json:"harvest_id,omitempty"`
	HarvestType     string    `json:"harvest_type,omitempty"`
	CollectionSetID string    `json:"collection_set_id,omitempty"`
	CollectionID    string    `json:"collection_id,omitempty"`
}

// ExportRequest is the payload of an `export.start...` message. RoutingKey
// carries the inbound routing key, the same way HarvestRequest.RoutingKey
// does, so a status update can be addressed back to
// "export.status.<format>.<source>".
type ExportRequest struct {
	ID               string     `json:"id" valid:"required"`
	Format           string     `json:"format" valid:"required"`
	SegmentSize      int        `json:"segment_size"`
	Path             string     `json:"path" valid:"required"`
	Collection       Collection `json:"collection"`
	Seeds            []Seed     `json:"seeds,omitempty"`
	RoutingKey       string     `json:"routing_key,omitempty"`
	Dedupe           bool       `json:"dedupe"`
	ItemDateStart    *time.Time `json:"item_date_start,omitempty"`
	ItemDateEnd      *time.Time `json:"item_date_end,omitempty"`
	HarvestDateStart *time.Time `json:"harvest_date_start,omitempty"`
	HarvestDateEnd   *time.Time `json:"harvest_date_end,omitempty"`
}

// IterItem is one item read back out of a WARC response record by the WARC
// iterator, the Go shape of sfm-utils's `IterItem` namedtuple.
type IterItem struct {
	Type string
	ID   string
	Date time.Time
	URL  string
	Item interface{}
}

// CollectionDescriptor is one row of the catalog's collection listing.
type CollectionDescriptor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Validate checks req's `valid:"..."` struct tags, catching a malformed
// harvest/export request as soon as it is decoded off the bus rather than
// partway through a run.
func Validate(req interface{}) error {
	if _, err := govalidator.ValidateStruct(req); err != nil {
		return err
	}
	return nil
}
