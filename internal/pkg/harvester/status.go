package harvester

import (
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/gwu-libraries/sfm-go/internal/pkg/bus"
	"github.com/gwu-libraries/sfm-go/pkg/models"
)

// spaceBeforeCapsRe inserts a space before each interior capital letter, the
// Go equivalent of _send_status_message's regex that turns a CamelCase
// class name into a human-readable "service" field ("TestHarvester" ->
// "Test Harvester").
var spaceBeforeCapsRe = regexp.MustCompile(`([a-z0-9])([A-Z])`)

func serviceName(typeName string) string {
	return spaceBeforeCapsRe.ReplaceAllString(typeName, "$1 $2")
}

// statusRoutingKey derives the outbound status routing key from the
// request's inbound one by replacing its "start" segment with "status",
// e.g. "harvest.start.twitter.usertimeline" -> "harvest.status.twitter.usertimeline".
func statusRoutingKey(inbound string) string {
	return strings.Replace(inbound, "start", "status", 1)
}

// warcsSummary is the wire shape of the "warcs" field on a status message:
// how many WARCs have been handed off so far and their total size.
type warcsSummary struct {
	Count int   `json:"count"`
	Bytes int64 `json:"bytes"`
}

// statusMessage is the shape published on harvest.status.<platform>.<source>,
// matching _send_status_message's JSON payload field-for-field.
type statusMessage struct {
	ID           string                    `json:"id"`
	Status       string                    `json:"status"`
	Service      string                    `json:"service"`
	Host         string                    `json:"host"`
	Instance     int                       `json:"instance"`
	DateStarted  *time.Time                `json:"date_started,omitempty"`
	DateEnded    *time.Time                `json:"date_ended,omitempty"`
	Warcs        warcsSummary              `json:"warcs"`
	Stats        map[string]map[string]int `json:"stats,omitempty"`
	Infos        []models.Msg              `json:"infos,omitempty"`
	Warnings     []models.Msg              `json:"warnings,omitempty"`
	Errors       []models.Msg              `json:"errors,omitempty"`
	TokenUpdates map[string]string         `json:"token_updates,omitempty"`
	Uids         map[string]string         `json:"uids,omitempty"`
}

func (h *run) sendStatus(status string) {
	host, _ := os.Hostname()

	msg := statusMessage{
		ID:          h.req.ID,
		Status:      models.WireStatus(status),
		Service:     serviceName(h.typeName),
		Host:        host,
		Instance:    os.Getpid(),
		DateStarted: h.result.Started,
		Warcs: warcsSummary{
			Count: len(h.result.Warcs),
			Bytes: h.result.WarcBytes,
		},
		Stats:        h.result.Stats.AsMap(),
		Infos:        h.result.Infos,
		Warnings:     h.result.Warnings,
		Errors:       h.result.Errors,
		TokenUpdates: h.result.TokenUpdates,
		Uids:         h.result.Uids,
	}
	if status != models.StatusRunning {
		now := time.Now().UTC()
		msg.DateEnded = &now
	}

	routingKey := statusRoutingKey(h.req.RoutingKey)
	if err := h.publisher.Publish(routingKey, msg); err != nil {
		h.logger.Error("failed to publish status message", "err", err.Error())
	}
}

// warcCreatedMessage matches _send_warc_created_message's nested JSON
// payload: the harvest and collection(-set) it belongs to, plus the WARC
// itself.
type warcCreatedMessage struct {
	Harvest       harvestRef    `json:"harvest"`
	CollectionSet idRef         `json:"collection_set"`
	Collection    idRef         `json:"collection"`
	WARC          warcCreatedRef `json:"warc"`
}

type harvestRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type idRef struct {
	ID string `json:"id"`
}

type warcCreatedRef struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	DateCreated time.Time `json:"date_created"`
	Bytes       int64     `json:"bytes"`
	SHA1        string    `json:"sha1"`
}

func (h *run) sendWARCCreated(desc models.WARCDescriptor) {
	msg := warcCreatedMessage{
		Harvest:       harvestRef{ID: desc.HarvestID, Type: desc.HarvestType},
		CollectionSet: idRef{ID: desc.CollectionSetID},
		Collection:    idRef{ID: desc.CollectionID},
		WARC: warcCreatedRef{
			ID:          desc.ID,
			Path:        desc.Path,
			DateCreated: desc.DateCreated,
			Bytes:       desc.Bytes,
			SHA1:        desc.SHA1,
		},
	}
	if err := h.publisher.Publish(bus.RoutingKeyWARCCreated, msg); err != nil {
		h.logger.Error("failed to publish warc_created message", "err", err.Error())
	}
}
