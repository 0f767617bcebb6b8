package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Status strings used internally to track a run's outcome. These are not
// what goes out on the wire for the two terminal cases - see WireStatus.
const (
	StatusSuccess  = "success"
	StatusFailure  = "failure"
	StatusRunning  = "running"
	StatusPaused   = "paused"
	StatusStopping = "stopping"
)

// WireStatus translates an internal status into the literal string the bus
// contract normatively requires: "running", "stopping" and "paused" pass
// through unchanged, but "success"/"failure" become "completed success"/
// "completed failure".
func WireStatus(status string) string {
	switch status {
	case StatusSuccess:
		return "completed success"
	case StatusFailure:
		return "completed failure"
	default:
		return status
	}
}

// Msg is a single info/warning/error note attached to a Result.
type Msg struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Extras  map[string]interface{} `json:"-"`
}

// NewMsg builds a Msg with optional extra fields folded into its map form.
func NewMsg(code, message string, extras map[string]interface{}) Msg {
	return Msg{Code: code, Message: message, Extras: extras}
}

// ToMap renders the message the way it is published on the bus: code, message
// and any extras flattened into a single map.
func (m Msg) ToMap() map[string]interface{} {
	out := map[string]interface{}{
		"code":    m.Code,
		"message": m.Message,
	}
	for k, v := range m.Extras {
		out[k] = v
	}
	return out
}

// MarshalJSON publishes the ToMap form, so extras appear beside code and
// message.
func (m Msg) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.ToMap())
}

func (m Msg) String() string {
	return fmt.Sprintf("%s: %s", m.Code, m.Message)
}

// Result is the accumulator shared by every long-running consumer: it tracks
// success/failure, timing, and the three message buckets.
type Result struct {
	Success bool       `json:"success"`
	Started *time.Time `json:"started,omitempty"`
	Ended   *time.Time `json:"ended,omitempty"`
	Infos   []Msg      `json:"infos"`
	Warnings []Msg     `json:"warnings"`
	Errors  []Msg      `json:"errors"`
}

func (r *Result) Info(code, message string, extras map[string]interface{}) {
	r.Infos = append(r.Infos, NewMsg(code, message, extras))
}

func (r *Result) Warning(code, message string, extras map[string]interface{}) {
	r.Warnings = append(r.Warnings, NewMsg(code, message, extras))
}

func (r *Result) Error(code, message string, extras map[string]interface{}) {
	r.Errors = append(r.Errors, NewMsg(code, message, extras))
}

func (r *Result) String() string {
	return fmt.Sprintf("success=%v infos=%d warnings=%d errors=%d",
		r.Success, len(r.Infos), len(r.Warnings), len(r.Errors))
}

// DayCounter accumulates named counts bucketed by day, the Go analogue of
// HarvestResult's OrderedDict-of-Counter stats field.
type DayCounter struct {
	days map[string]map[string]int
}

func NewDayCounter() *DayCounter {
	return &DayCounter{days: make(map[string]map[string]int)}
}

func (d *DayCounter) Incr(day time.Time, key string, n int) {
	k := day.UTC().Format("2006-01-02")
	bucket, ok := d.days[k]
	if !ok {
		bucket = make(map[string]int)
		d.days[k] = bucket
	}
	bucket[key] += n
}

// Ordered returns (day, counts) pairs sorted by day, the shape persisted in
// ResultSnapshot.Stats.
func (d *DayCounter) Ordered() []DayStat {
	days := make([]string, 0, len(d.days))
	for k := range d.days {
		days = append(days, k)
	}
	sort.Strings(days)

	out := make([]DayStat, 0, len(days))
	for _, day := range days {
		out = append(out, DayStat{Day: day, Counts: d.days[day]})
	}
	return out
}

type DayStat struct {
	Day    string         `json:"day"`
	Counts map[string]int `json:"counts"`
}

// AsMap renders the same counts as the wire-format stats object,
// {"<YYYY-MM-DD>": {"<item>":<count>}}, rather than the ordered-slice shape
// ResultSnapshot persists on disk.
func (d *DayCounter) AsMap() map[string]map[string]int {
	out := make(map[string]map[string]int, len(d.days))
	for day, counts := range d.days {
		bucket := make(map[string]int, len(counts))
		for k, v := range counts {
			bucket[k] = v
		}
		out[day] = bucket
	}
	return out
}

// HarvestResult is the per-harvest accumulator: infos/warnings/errors from
// Result, plus WARC bookkeeping, per-day stats, and the token/uid scratch
// space a running harvester clears after every successful commit point.
type HarvestResult struct {
	Result

	Warcs          []string          `json:"warcs"`
	WarcBytes      int64             `json:"warc_bytes"`
	Stats          *DayCounter       `json:"-"`
	TokenUpdates   map[string]string `json:"token_updates,omitempty"`
	Uids           map[string]string `json:"uids,omitempty"`
	HarvestCounter map[string]int    `json:"harvest_counter"`
}

func NewHarvestResult() *HarvestResult {
	return &HarvestResult{
		Stats:          NewDayCounter(),
		TokenUpdates:   make(map[string]string),
		Uids:           make(map[string]string),
		HarvestCounter: make(map[string]int),
	}
}

func (hr *HarvestResult) IncrHarvestCounter(key string, n int) {
	hr.HarvestCounter[key] += n
	hr.Stats.Incr(time.Now(), key, n)
}

// ResultSnapshot is the on-disk persisted form of a HarvestResult, used to
// resume a harvest after a crash. Field names match the bus/status-message
// vocabulary so (de)serialization is a straight struct copy.
type ResultSnapshot struct {
	Warcs     []string   `json:"warcs"`
	WarcBytes int64      `json:"warc_bytes"`
	Stats     []DayStat  `json:"stats"`
	Started   *time.Time `json:"started"`
	Infos     []Msg      `json:"infos"`
	Warnings  []Msg      `json:"warnings"`
	Errors    []Msg      `json:"errors"`
}

func (hr *HarvestResult) Snapshot() ResultSnapshot {
	return ResultSnapshot{
		Warcs:     hr.Warcs,
		WarcBytes: hr.WarcBytes,
		Stats:     hr.Stats.Ordered(),
		Started:   hr.Started,
		Infos:     hr.Infos,
		Warnings:  hr.Warnings,
		Errors:    hr.Errors,
	}
}

func (hr *HarvestResult) RestoreSnapshot(s ResultSnapshot) {
	hr.Warcs = s.Warcs
	hr.WarcBytes = s.WarcBytes
	hr.Started = s.Started
	hr.Infos = s.Infos
	hr.Warnings = s.Warnings
	hr.Errors = s.Errors

	hr.Stats = NewDayCounter()
	for _, ds := range s.Stats {
		day, err := time.Parse("2006-01-02", ds.Day)
		if err != nil {
			continue
		}
		for k, v := range ds.Counts {
			hr.Stats.Incr(day, k, v)
		}
	}
}
