// Package derive turns a topic's search criteria into crawlable search items.
package derive

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sweetwork/svc-scheduler/internal/scheduler"
)

var numericID = regexp.MustCompile(`^[0-9]+$`)

// Per-network feed URL patterns for custom entries. The first capture group
// is the canonical account id.
var customPatterns = map[string]*regexp.Regexp{
	"twitter":   regexp.MustCompile(`(?i)twitter\.com/@?([A-Za-z0-9_]+)`),
	"instagram": regexp.MustCompile(`(?i)instagram\.com/([A-Za-z0-9_.]+)`),
	"facebook":  regexp.MustCompile(`(?i)facebook\.com/([A-Za-z0-9.]+)`),
	"youtube":   regexp.MustCompile(`(?i)youtube\.com/channel/([A-Za-z0-9_-]+)`),
}

var searchable = func() map[string]struct{} {
	m := make(map[string]struct{}, len(scheduler.Networks))
	for _, n := range scheduler.Networks {
		m[n] = struct{}{}
	}
	return m
}()

// SearchItems derives the deduplicated search items for a topic. The result
// depends only on the topic's criteria, not on input ordering.
func SearchItems(topic scheduler.Topic, logger *zap.Logger) []scheduler.SearchItem {
	d := &dedup{seen: make(map[string]struct{})}

	for _, a := range topic.Accounts {
		d.add(scheduler.SearchItem{ID: a.ID, Source: a.Source, Entity: scheduler.EntityAuthor})
	}

	restricted := false
	for _, p := range topic.Profiles {
		switch p.Role {
		case scheduler.ProfileIncluded:
			for _, a := range p.Accounts {
				d.add(scheduler.SearchItem{ID: a.ID, Source: a.Source, Entity: scheduler.EntityAuthor})
			}
			for _, link := range p.RSSLinks {
				d.add(scheduler.SearchItem{ID: link, Source: scheduler.SourceRSS, Entity: scheduler.EntityAuthor})
			}
		case scheduler.ProfileRestricted:
			if len(p.Accounts) > 0 || len(p.RSSLinks) > 0 {
				restricted = true
			}
		case scheduler.ProfileExcluded:
			// exclusion is applied downstream by the controller
		}
	}

	for _, entry := range topic.Custom {
		item, ok := customItem(entry)
		if !ok {
			logger.Warn("skipping unrecognized custom entry",
				zap.String("type", entry.Type),
				zap.String("content", entry.Content))
			continue
		}
		d.add(item)
	}

	if !restricted {
		for _, source := range topic.Sources {
			if _, ok := searchable[source]; !ok {
				logger.Error("unsupported search source", zap.String("source", source))
				continue
			}
			for _, word := range keywords(topic) {
				d.add(scheduler.SearchItem{ID: word, Source: source, Entity: scheduler.EntityResult})
			}
		}
	}

	return d.items
}

// ClassifyEntity decides what a derived id crawls: numeric ids and RSS
// pointers are authors, everything else is a result stream.
func ClassifyEntity(id, source string) scheduler.Entity {
	if source == scheduler.SourceRSS || numericID.MatchString(id) {
		return scheduler.EntityAuthor
	}
	return scheduler.EntityResult
}

func customItem(entry scheduler.CustomEntry) (scheduler.SearchItem, bool) {
	if entry.Type == scheduler.SourceRSS {
		return scheduler.SearchItem{
			ID:     entry.Content,
			Source: scheduler.SourceRSS,
			Entity: scheduler.EntityAuthor,
		}, true
	}
	pattern, ok := customPatterns[entry.Type]
	if !ok {
		return scheduler.SearchItem{}, false
	}
	m := pattern.FindStringSubmatch(entry.Content)
	if m == nil {
		return scheduler.SearchItem{}, false
	}
	return scheduler.SearchItem{
		ID:     m[1],
		Source: entry.Type,
		Entity: ClassifyEntity(m[1], entry.Type),
	}, true
}

func keywords(topic scheduler.Topic) []string {
	var out []string
	appendWord := func(w string) {
		w = strings.TrimLeft(w, "#")
		if w != "" {
			out = append(out, w)
		}
	}
	for _, w := range topic.Words {
		appendWord(w)
	}
	for _, w := range topic.AndWords {
		appendWord(w)
	}
	for _, f := range topic.Filters {
		if f.Type != "exclude" {
			appendWord(f.Content)
		}
	}
	return out
}

type dedup struct {
	seen  map[string]struct{}
	items []scheduler.SearchItem
}

func (d *dedup) add(item scheduler.SearchItem) {
	key := item.ID + "\x00" + item.Source
	if _, ok := d.seen[key]; ok {
		return
	}
	d.seen[key] = struct{}{}
	d.items = append(d.items, item)
}
