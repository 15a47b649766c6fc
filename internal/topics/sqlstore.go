// Package topics manages the topic system of record and its projection into
// the keyed store.
package topics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sweetwork/svc-scheduler/internal/scheduler"
)

// PgxPool is the subset of pgxpool.Pool the store needs; pgxmock satisfies
// it in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// SQLStore persists topic and project rows in Postgres.
type SQLStore struct {
	pool PgxPool
}

// NewSQLStore connects a pool from the DSN.
func NewSQLStore(ctx context.Context, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &SQLStore{pool: pool}, nil
}

// NewSQLStoreWithPool wraps an existing pool (primarily for testing).
func NewSQLStoreWithPool(pool PgxPool) *SQLStore {
	return &SQLStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *SQLStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// topicRow mirrors the relational representation: list fields are
// comma-joined, accounts as source:id pairs.
type topicRow struct {
	id        int64
	name      string
	words     string
	accounts  string
	sources   string
	languages string
	countries string
	projectID int64
	createdAt int64
	updatedAt int64
}

func rowFromTopic(t scheduler.Topic, now int64) topicRow {
	created := t.CreatedAt
	if created == 0 {
		created = now
	}
	updated := t.UpdatedAt
	if updated == 0 {
		updated = now
	}
	accounts := make([]string, len(t.Accounts))
	for i, a := range t.Accounts {
		accounts[i] = a.Source + ":" + a.ID
	}
	return topicRow{
		id:        t.ID,
		name:      t.Name,
		words:     strings.Join(t.Words, ","),
		accounts:  strings.Join(accounts, ","),
		sources:   strings.Join(t.Sources, ","),
		languages: strings.Join(t.Languages, ","),
		countries: strings.Join(t.Countries, ","),
		projectID: t.ProjectID,
		createdAt: created,
		updatedAt: updated,
	}
}

func (r topicRow) topic() scheduler.Topic {
	var accounts []scheduler.Account
	if r.accounts != "" {
		for _, pair := range strings.Split(r.accounts, ",") {
			source, id, ok := strings.Cut(pair, ":")
			if !ok {
				continue
			}
			accounts = append(accounts, scheduler.Account{ID: id, Source: source})
		}
	}
	return scheduler.Topic{
		ID:        r.id,
		Name:      r.name,
		Words:     splitCSV(r.words),
		Accounts:  accounts,
		Sources:   splitCSV(r.sources),
		Languages: splitCSV(r.languages),
		Countries: splitCSV(r.countries),
		ProjectID: r.projectID,
		CreatedAt: r.createdAt,
		UpdatedAt: r.updatedAt,
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

const topicColumns = "id, name, words, accounts, sources, languages, countries, project_id, created_at, updated_at"

func scanTopic(row pgx.Row) (scheduler.Topic, error) {
	var r topicRow
	err := row.Scan(&r.id, &r.name, &r.words, &r.accounts, &r.sources,
		&r.languages, &r.countries, &r.projectID, &r.createdAt, &r.updatedAt)
	if err != nil {
		return scheduler.Topic{}, err
	}
	return r.topic(), nil
}

// InsertTopic stores a new topic row and returns it with its assigned id.
func (s *SQLStore) InsertTopic(ctx context.Context, topic scheduler.Topic) (scheduler.Topic, error) {
	r := rowFromTopic(topic, time.Now().Unix())
	row := s.pool.QueryRow(ctx,
		`INSERT INTO topics (name, words, accounts, sources, languages, countries, project_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+topicColumns,
		r.name, r.words, r.accounts, r.sources, r.languages, r.countries, r.projectID, r.createdAt, r.updatedAt)
	out, err := scanTopic(row)
	if err != nil {
		return scheduler.Topic{}, fmt.Errorf("insert topic: %w", err)
	}
	return out, nil
}

// UpdateTopic rewrites an existing row and returns the stored state.
func (s *SQLStore) UpdateTopic(ctx context.Context, topic scheduler.Topic) (scheduler.Topic, error) {
	if topic.ID == 0 {
		return scheduler.Topic{}, fmt.Errorf("update topic: missing id")
	}
	r := rowFromTopic(topic, time.Now().Unix())
	r.updatedAt = time.Now().Unix()
	row := s.pool.QueryRow(ctx,
		`UPDATE topics
		 SET name = $1, words = $2, accounts = $3, sources = $4, languages = $5, countries = $6, project_id = $7, updated_at = $8
		 WHERE id = $9
		 RETURNING `+topicColumns,
		r.name, r.words, r.accounts, r.sources, r.languages, r.countries, r.projectID, r.updatedAt, r.id)
	out, err := scanTopic(row)
	if err != nil {
		return scheduler.Topic{}, fmt.Errorf("update topic %d: %w", topic.ID, err)
	}
	return out, nil
}

// GetTopic fetches one row by id.
func (s *SQLStore) GetTopic(ctx context.Context, id int64) (scheduler.Topic, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+topicColumns+` FROM topics WHERE id = $1`, id)
	out, err := scanTopic(row)
	if err != nil {
		return scheduler.Topic{}, fmt.Errorf("get topic %d: %w", id, err)
	}
	return out, nil
}

// ListTopics returns every stored topic; used by the recover pass.
func (s *SQLStore) ListTopics(ctx context.Context) ([]scheduler.Topic, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+topicColumns+` FROM topics ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()
	var out []scheduler.Topic
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	return out, nil
}

// DeleteTopic removes one row.
func (s *SQLStore) DeleteTopic(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM topics WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete topic %d: %w", id, err)
	}
	return nil
}

// Project is a row of the projects table.
type Project struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CreateProject stores a project and returns it with its assigned id.
func (s *SQLStore) CreateProject(ctx context.Context, name string) (Project, error) {
	var p Project
	err := s.pool.QueryRow(ctx,
		`INSERT INTO projects (name) VALUES ($1) RETURNING id, name`, name).
		Scan(&p.ID, &p.Name)
	if err != nil {
		return Project{}, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

// ListProjects returns every project row.
func (s *SQLStore) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()
	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return out, nil
}
