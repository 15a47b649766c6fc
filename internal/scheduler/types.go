// Package scheduler defines core types shared across subsystems.
package scheduler

import (
	"math"
	"strconv"
)

// FeedStatus represents the lifecycle state of a feed.
type FeedStatus string

// Feed status values persisted in the feed hash.
const (
	FeedStatusSleep   FeedStatus = "sleep"
	FeedStatusBusy    FeedStatus = "busy"
	FeedStatusIdle    FeedStatus = "idle"
	FeedStatusErrored FeedStatus = "errored"
)

// Entity classifies what a feed crawls: a person/page or a search result stream.
type Entity string

// Entity values persisted in the feed hash.
const (
	EntityAuthor Entity = "author"
	EntityResult Entity = "result"
)

// DensityNA is stored when the covered time range is too short to measure.
const DensityNA = "N/A"

// Networks lists every source the system knows about.
var Networks = []string{
	"twitter",
	"instagram",
	"facebook",
	"googlenews",
	"googleplus",
	"youtube",
}

// SourceRSS is the pseudo-network used for RSS pointers.
const SourceRSS = "rss"

// Account links a network profile to a topic.
type Account struct {
	ID     string `json:"id"`
	Source string `json:"source"`
}

// ProfileRole says how a profile list constrains derivation.
type ProfileRole string

// Profile roles.
const (
	ProfileIncluded   ProfileRole = "included"
	ProfileExcluded   ProfileRole = "excluded"
	ProfileRestricted ProfileRole = "restricted"
)

// Profile groups accounts and RSS pointers under one person/org.
type Profile struct {
	Role     ProfileRole `json:"role"`
	Accounts []Account   `json:"accounts"`
	RSSLinks []string    `json:"rss_links"`
}

// CustomEntry is a manually entered feed pointer.
type CustomEntry struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// KeywordFilter is one entry of an advanced keyword filter block.
type KeywordFilter struct {
	Content string `json:"content"`
	Type    string `json:"type"` // include, exclude
}

// Topic is a user-defined set of search criteria within a project.
type Topic struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	ProjectID int64           `json:"projectId"`
	Words     []string        `json:"words"`
	AndWords  []string        `json:"and_words,omitempty"`
	Filters   []KeywordFilter `json:"filters,omitempty"`
	Accounts  []Account       `json:"accounts"`
	Profiles  []Profile       `json:"profiles,omitempty"`
	Custom    []CustomEntry   `json:"custom,omitempty"`
	Sources   []string        `json:"sources"`
	Languages []string        `json:"languages,omitempty"`
	Countries []string        `json:"countries,omitempty"`
	CreatedAt int64           `json:"createdAt"`
	UpdatedAt int64           `json:"updatedAt"`
}

// SearchItem is one crawlable unit derived from a topic.
type SearchItem struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Entity Entity `json:"entity"`
}

// Feed is the hash stored per (source, id) pair. All values are strings
// because the keyed store only holds string fields.
type Feed struct {
	ID            string     `json:"id"`
	Source        string     `json:"source"`
	Entity        Entity     `json:"entity"`
	Status        FeedStatus `json:"status"`
	Languages     string     `json:"languages,omitempty"`
	Countries     string     `json:"countries,omitempty"`
	TimestampTo   string     `json:"timestamp_to,omitempty"`
	Density       string     `json:"density,omitempty"`
	LastTimeCrawl string     `json:"last_time_crawl,omitempty"`
}

// FeedFromHash builds a Feed from raw hash fields.
func FeedFromHash(h map[string]string) Feed {
	return Feed{
		ID:            h["id"],
		Source:        h["source"],
		Entity:        Entity(h["entity"]),
		Status:        FeedStatus(h["status"]),
		Languages:     h["languages"],
		Countries:     h["countries"],
		TimestampTo:   h["timestamp_to"],
		Density:       h["density"],
		LastTimeCrawl: h["last_time_crawl"],
	}
}

// Hash flattens the feed back into store fields, skipping empty optionals.
func (f Feed) Hash() map[string]string {
	h := map[string]string{
		"id":     f.ID,
		"source": f.Source,
		"entity": string(f.Entity),
		"status": string(f.Status),
	}
	if f.Languages != "" {
		h["languages"] = f.Languages
	}
	if f.Countries != "" {
		h["countries"] = f.Countries
	}
	if f.TimestampTo != "" {
		h["timestamp_to"] = f.TimestampTo
	}
	if f.Density != "" {
		h["density"] = f.Density
	}
	if f.LastTimeCrawl != "" {
		h["last_time_crawl"] = f.LastTimeCrawl
	}
	return h
}

// DensityValue parses the stored density. ok is false for the N/A sentinel
// or a missing value.
func (f Feed) DensityValue() (float64, bool) {
	if f.Density == "" || f.Density == DensityNA {
		return 0, false
	}
	v, err := strconv.ParseFloat(f.Density, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ReportError carries the error section of a feed-update report.
type ReportError struct {
	Name     string `json:"name"`
	Message  string `json:"message"`
	ClientID string `json:"clientId"`
}

// FeedReport is the crawl-outcome callback payload posted by the controller.
type FeedReport struct {
	ID            string       `json:"id"`
	Source        string       `json:"source"`
	Entity        Entity       `json:"entity"`
	TimestampFrom int64        `json:"timestamp_from"`
	TimestampTo   int64        `json:"timestamp_to"`
	NumResults    int          `json:"num_results"`
	Ticks         []int64      `json:"ticks"` // millisecond timestamps
	Error         *ReportError `json:"error,omitempty"`
}

// SearchQuery is the payload sent to the controller search endpoint.
type SearchQuery struct {
	TimestampFrom int64              `json:"timestamp_from"`
	TimestampTo   int64              `json:"timestamp_to"`
	ID            string             `json:"id"`
	Source        string             `json:"source"`
	Entity        Entity             `json:"entity"`
	Languages     []string           `json:"languages"`
	Countries     []string           `json:"countries"`
	TopicHash     map[string][]string `json:"topic_hash"`
}

// ComputeDensity measures results per hour over the covered range, or the
// N/A sentinel when the range spans zero hours.
func ComputeDensity(numResults int, timestampFrom, timestampTo int64) string {
	hours := float64(timestampTo-timestampFrom) / 3600
	if hours == 0 {
		return DensityNA
	}
	return strconv.Itoa(int(math.Round(float64(numResults) / hours)))
}
