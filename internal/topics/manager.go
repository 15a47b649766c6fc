package topics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sweetwork/svc-scheduler/internal/feedindex"
	"github.com/sweetwork/svc-scheduler/internal/keys"
	"github.com/sweetwork/svc-scheduler/internal/scheduler"
)

// Validation errors surfaced to callers before any mutation happens.
var (
	ErrMissingTopics = errors.New("missing topics argument")
	ErrMissingID     = errors.New("missing topic id")
	ErrMissingQuery  = errors.New("missing parameters: projectId or topicIds")
)

// TopicView is a topic plus its currently referenced feeds.
type TopicView struct {
	scheduler.Topic
	Feeds []scheduler.Feed `json:"feeds,omitempty"`
}

// Manager owns the topic lifecycle: the Postgres system of record first,
// then the keyed-store projection and the feed index.
type Manager struct {
	sql    *SQLStore
	store  scheduler.KeyedStore
	index  *feedindex.Index
	clock  scheduler.Clock
	logger *zap.Logger
}

// NewManager constructs a Manager.
func NewManager(sql *SQLStore, store scheduler.KeyedStore, index *feedindex.Index, clock scheduler.Clock, logger *zap.Logger) *Manager {
	return &Manager{sql: sql, store: store, index: index, clock: clock, logger: logger}
}

// Validate rejects a topic before any store mutation.
func Validate(topic scheduler.Topic) error {
	if topic.Name == "" {
		return fmt.Errorf("topic is missing name")
	}
	if topic.ProjectID == 0 {
		return fmt.Errorf("topic is missing projectId")
	}
	if len(topic.Sources) == 0 {
		return fmt.Errorf("topic is missing sources")
	}
	known := make(map[string]struct{}, len(scheduler.Networks))
	for _, n := range scheduler.Networks {
		known[n] = struct{}{}
	}
	for _, s := range topic.Sources {
		if _, ok := known[s]; !ok {
			return fmt.Errorf("unknown source %q", s)
		}
	}
	for _, a := range topic.Accounts {
		if a.ID == "" || a.Source == "" {
			return fmt.Errorf("account is missing id or source")
		}
		if _, ok := known[a.Source]; !ok {
			return fmt.Errorf("unknown account source %q", a.Source)
		}
	}
	return nil
}

// Store persists the topics in Postgres and projects each into the keyed
// store. Topics are processed independently; the first failure aborts.
func (m *Manager) Store(ctx context.Context, ts []scheduler.Topic) ([]scheduler.Topic, error) {
	if len(ts) == 0 {
		return nil, ErrMissingTopics
	}
	out := make([]scheduler.Topic, 0, len(ts))
	for _, t := range ts {
		stored, err := m.sql.InsertTopic(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("store topic %q: %w", t.Name, err)
		}
		// the row drops derivation-only criteria; carry them over
		stored.AndWords = t.AndWords
		stored.Filters = t.Filters
		stored.Profiles = t.Profiles
		stored.Custom = t.Custom
		if err := m.project(ctx, stored); err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	return out, nil
}

// Update rewrites the topic row and re-derives its feeds.
func (m *Manager) Update(ctx context.Context, topic scheduler.Topic) (scheduler.Topic, error) {
	if topic.ID == 0 {
		return scheduler.Topic{}, ErrMissingID
	}
	stored, err := m.sql.UpdateTopic(ctx, topic)
	if err != nil {
		return scheduler.Topic{}, err
	}
	stored.AndWords = topic.AndWords
	stored.Filters = topic.Filters
	stored.Profiles = topic.Profiles
	stored.Custom = topic.Custom
	if err := m.project(ctx, stored); err != nil {
		return scheduler.Topic{}, err
	}
	return stored, nil
}

// project writes the topic's keyed-store projection and refreshes the feed
// index from a fresh derivation.
func (m *Manager) project(ctx context.Context, topic scheduler.Topic) error {
	topicID := strconv.FormatInt(topic.ID, 10)
	topicKey := keys.Topic(topicID)
	now := float64(m.clock.Now().Unix())

	err := m.store.SortedSetAdd(ctx, keys.TopicsListByProject(strconv.FormatInt(topic.ProjectID, 10)),
		scheduler.ScoredMember{Score: now, Member: topicKey})
	if err != nil {
		return fmt.Errorf("associate topic with project: %w", err)
	}
	hash := map[string]string{
		"id":        topicID,
		"name":      topic.Name,
		"sources":   strings.Join(topic.Sources, ","),
		"projectId": strconv.FormatInt(topic.ProjectID, 10),
		"languages": strings.Join(topic.Languages, ","),
		"countries": strings.Join(topic.Countries, ","),
	}
	if err := m.store.HashSet(ctx, topicKey, hash); err != nil {
		return fmt.Errorf("write topic hash: %w", err)
	}
	if err := m.index.Update(ctx, topic); err != nil {
		return err
	}
	return nil
}

// Delete tears the topic down: project association, feed relationships, the
// topic hash, and finally the system-of-record row.
func (m *Manager) Delete(ctx context.Context, topicID int64) error {
	if topicID == 0 {
		return ErrMissingID
	}
	id := strconv.FormatInt(topicID, 10)
	topicKey := keys.Topic(id)

	projectID, ok, err := m.store.HashGet(ctx, topicKey, "projectId")
	if err != nil {
		return fmt.Errorf("read topic project: %w", err)
	}
	if ok {
		if err := m.store.SortedSetRemove(ctx, keys.TopicsListByProject(projectID), topicKey); err != nil {
			return fmt.Errorf("remove project association: %w", err)
		}
	}
	if err := m.index.Delete(ctx, scheduler.Topic{ID: topicID}); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, topicKey); err != nil {
		return fmt.Errorf("delete topic hash: %w", err)
	}
	if err := m.sql.DeleteTopic(ctx, topicID); err != nil {
		return err
	}
	return nil
}

// Get lists topics. Explicit topicIDs win over a projectID; at least one of
// the two is required. Stale keyed-store references are skipped silently.
func (m *Manager) Get(ctx context.Context, projectID int64, topicIDs []int64, withoutFeeds bool) ([]TopicView, error) {
	topicKeys, err := m.topicKeys(ctx, projectID, topicIDs)
	if err != nil {
		return nil, err
	}
	out := make([]TopicView, 0, len(topicKeys))
	for _, topicKey := range topicKeys {
		hash, err := m.store.HashGetAll(ctx, topicKey)
		if err != nil {
			return nil, fmt.Errorf("read topic hash %s: %w", topicKey, err)
		}
		if hash == nil {
			continue
		}
		id, err := strconv.ParseInt(hash["id"], 10, 64)
		if err != nil {
			m.logger.Error("topic hash with malformed id", zap.String("topic_key", topicKey))
			continue
		}
		topic, err := m.sql.GetTopic(ctx, id)
		if err != nil {
			return nil, err
		}
		view := TopicView{Topic: topic}
		if !withoutFeeds {
			feeds, err := m.index.Read(ctx, topic)
			if err != nil {
				return nil, err
			}
			view.Feeds = feeds
		}
		out = append(out, view)
	}
	return out, nil
}

func (m *Manager) topicKeys(ctx context.Context, projectID int64, topicIDs []int64) ([]string, error) {
	if len(topicIDs) > 0 {
		out := make([]string, len(topicIDs))
		for i, id := range topicIDs {
			out[i] = keys.Topic(strconv.FormatInt(id, 10))
		}
		return out, nil
	}
	if projectID != 0 {
		members, err := m.store.SortedSetRangeByScore(ctx,
			keys.TopicsListByProject(strconv.FormatInt(projectID, 10)),
			scheduler.RangeOptions{Limit: 1000})
		if err != nil {
			return nil, fmt.Errorf("list project topics: %w", err)
		}
		out := make([]string, len(members))
		for i, m := range members {
			out[i] = m.Member
		}
		return out, nil
	}
	return nil, ErrMissingQuery
}

// Projects lists every project row.
func (m *Manager) Projects(ctx context.Context) ([]Project, error) {
	return m.sql.ListProjects(ctx)
}

// CreateProject stores a new project.
func (m *Manager) CreateProject(ctx context.Context, name string) (Project, error) {
	return m.sql.CreateProject(ctx, name)
}

// Recover rebuilds the whole keyed-store projection from the system of
// record. This is the repair pass for partially applied index writes.
func (m *Manager) Recover(ctx context.Context) ([]scheduler.Topic, error) {
	ts, err := m.sql.ListTopics(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range ts {
		if err := m.project(ctx, t); err != nil {
			return nil, fmt.Errorf("recover topic %d: %w", t.ID, err)
		}
	}
	return ts, nil
}
