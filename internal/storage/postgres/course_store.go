// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alpinisme/formation-sync/internal/course"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool the stores depend on. pgxmock
// satisfies it in tests.
type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// NewPool builds a pgx connection pool from config.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return p, nil
}

// dimension tables, keyed by the field they normalize.
const (
	tableDisciplines = "disciplines"
	tableLocations   = "locations"
	tableLodgings    = "lodgings"
)

type dimCache struct {
	disciplines map[string]int64
	locations   map[string]int64
	lodgings    map[string]int64
}

// CourseStore persists course records and their dependent rows.
//
// The dimension-id cache is rebuilt by PreloadDimensions and is scoped to
// one storage invocation; it is not shared across sync runs.
type CourseStore struct {
	pool pool

	mu   sync.Mutex
	dims dimCache
}

// NewCourseStore constructs a store from an existing pool.
func NewCourseStore(p pool) (*CourseStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &CourseStore{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *CourseStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// PreloadDimensions bulk-resolves the distinct discipline, location and
// lodging names of the batch, creating missing rows with insert-ignore
// semantics, and refreshes the in-memory name→id cache. This replaces one
// lookup-or-create round-trip per record with three per batch.
func (s *CourseStore) PreloadDimensions(ctx context.Context, batch []course.Course) error {
	var disciplines, locations, lodgings []string
	seen := map[string]struct{}{}
	collect := func(table, name string, dst *[]string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		key := table + "\x00" + name
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		*dst = append(*dst, name)
	}
	for _, c := range batch {
		collect(tableDisciplines, c.Discipline, &disciplines)
		collect(tableLocations, c.Location, &locations)
		collect(tableLodgings, c.Lodging, &lodgings)
	}

	dims := dimCache{}
	var err error
	if dims.disciplines, err = s.loadDimension(ctx, tableDisciplines, disciplines); err != nil {
		return err
	}
	if dims.locations, err = s.loadDimension(ctx, tableLocations, locations); err != nil {
		return err
	}
	if dims.lodgings, err = s.loadDimension(ctx, tableLodgings, lodgings); err != nil {
		return err
	}

	s.mu.Lock()
	s.dims = dims
	s.mu.Unlock()
	return nil
}

func (s *CourseStore) loadDimension(ctx context.Context, table string, names []string) (map[string]int64, error) {
	ids := make(map[string]int64, len(names))
	if len(names) == 0 {
		return ids, nil
	}

	selectQuery := fmt.Sprintf(`SELECT id, name FROM %s WHERE name = ANY($1)`, table)
	if err := s.scanDimension(ctx, selectQuery, names, ids); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}

	var missing []string
	for _, name := range names {
		if _, ok := ids[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return ids, nil
	}

	// Insert-ignore keeps creation idempotent under concurrent upserts.
	placeholders := make([]string, len(missing))
	args := make([]any, len(missing))
	for i, name := range missing {
		placeholders[i] = fmt.Sprintf("($%d)", i+1)
		args[i] = name
	}
	insertQuery := fmt.Sprintf(
		`INSERT INTO %s (name) VALUES %s ON CONFLICT (name) DO NOTHING`,
		table, strings.Join(placeholders, ","),
	)
	if _, err := s.pool.Exec(ctx, insertQuery, args...); err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}

	if err := s.scanDimension(ctx, selectQuery, names, ids); err != nil {
		return nil, fmt.Errorf("reselect %s: %w", table, err)
	}
	return ids, nil
}

func (s *CourseStore) scanDimension(ctx context.Context, query string, names []string, into map[string]int64) error {
	rows, err := s.pool.Query(ctx, query, names)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return err
		}
		into[name] = id
	}
	return rows.Err()
}

func (s *CourseStore) dimensionID(table, name string) (*int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var m map[string]int64
	switch table {
	case tableDisciplines:
		m = s.dims.disciplines
	case tableLocations:
		m = s.dims.locations
	case tableLodgings:
		m = s.dims.lodgings
	}
	id, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%s %q not preloaded", table, name)
	}
	return &id, nil
}

const upsertCourseQuery = `
INSERT INTO courses (
	reference, title, discipline_id, location_id, lodging_id,
	capacity, seats_remaining, price, organizer, responsible,
	contact_email, status, first_seen_at, last_seen_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)
ON CONFLICT (reference) DO UPDATE SET
	title = EXCLUDED.title,
	discipline_id = EXCLUDED.discipline_id,
	location_id = EXCLUDED.location_id,
	lodging_id = EXCLUDED.lodging_id,
	capacity = EXCLUDED.capacity,
	seats_remaining = EXCLUDED.seats_remaining,
	price = EXCLUDED.price,
	organizer = EXCLUDED.organizer,
	responsible = EXCLUDED.responsible,
	contact_email = EXCLUDED.contact_email,
	status = EXCLUDED.status,
	last_seen_at = EXCLUDED.last_seen_at
RETURNING id`

// UpsertChunk persists one chunk of records inside a single transaction:
// course upserts keyed by reference (first_seen_at is set once and never
// updated), then a wholesale delete and re-insert of the chunk's dependent
// date and document rows. The chunk either fully commits or fully rolls
// back, so the caller can retry a failed chunk record by record.
func (s *CourseStore) UpsertChunk(ctx context.Context, chunk []course.Course, now time.Time) error {
	if len(chunk) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin chunk tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.upsertWithin(ctx, tx, chunk, now); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunk tx: %w", err)
	}
	return nil
}

// UpsertOne persists a single record in its own transaction. It is the
// fallback path after a whole-chunk failure.
func (s *CourseStore) UpsertOne(ctx context.Context, c course.Course, now time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.upsertWithin(ctx, tx, []course.Course{c}, now); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *CourseStore) upsertWithin(ctx context.Context, tx pgx.Tx, chunk []course.Course, now time.Time) error {
	ids := make([]int64, 0, len(chunk))
	for _, c := range chunk {
		disciplineID, err := s.dimensionID(tableDisciplines, c.Discipline)
		if err != nil {
			return fmt.Errorf("course %s: %w", c.Reference, err)
		}
		locationID, err := s.dimensionID(tableLocations, c.Location)
		if err != nil {
			return fmt.Errorf("course %s: %w", c.Reference, err)
		}
		lodgingID, err := s.dimensionID(tableLodgings, c.Lodging)
		if err != nil {
			return fmt.Errorf("course %s: %w", c.Reference, err)
		}

		var id int64
		err = tx.QueryRow(ctx, upsertCourseQuery,
			c.Reference,
			c.Title,
			disciplineID,
			locationID,
			lodgingID,
			c.Capacity,
			c.SeatsRemaining,
			c.Price,
			c.Organizer,
			c.Responsible,
			nullableString(c.ContactEmail),
			c.Status,
			now,
			now,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("upsert course %s: %w", c.Reference, err)
		}
		ids = append(ids, id)
	}

	// Dependents carry no identity worth diffing; delete and re-insert.
	if _, err := tx.Exec(ctx, `DELETE FROM course_dates WHERE course_id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete course dates: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM course_documents WHERE course_id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete course documents: %w", err)
	}

	if err := insertDates(ctx, tx, ids, chunk); err != nil {
		return err
	}
	if err := insertDocuments(ctx, tx, ids, chunk); err != nil {
		return err
	}
	return nil
}

func insertDates(ctx context.Context, tx pgx.Tx, ids []int64, chunk []course.Course) error {
	var (
		placeholders []string
		args         []any
	)
	for i, c := range chunk {
		for pos, d := range c.Dates {
			base := len(args)
			placeholders = append(placeholders,
				fmt.Sprintf("($%d,$%d,$%d)", base+1, base+2, base+3))
			args = append(args, ids[i], pos, d)
		}
	}
	if len(args) == 0 {
		return nil
	}
	query := `INSERT INTO course_dates (course_id, position, session_date) VALUES ` +
		strings.Join(placeholders, ",")
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert course dates: %w", err)
	}
	return nil
}

func insertDocuments(ctx context.Context, tx pgx.Tx, ids []int64, chunk []course.Course) error {
	var (
		placeholders []string
		args         []any
	)
	for i, c := range chunk {
		for pos, d := range c.Documents {
			base := len(args)
			placeholders = append(placeholders,
				fmt.Sprintf("($%d,$%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4, base+5))
			args = append(args, ids[i], pos, d.Type, d.Label, d.URL)
		}
	}
	if len(args) == 0 {
		return nil
	}
	query := `INSERT INTO course_documents (course_id, position, doc_type, label, url) VALUES ` +
		strings.Join(placeholders, ",")
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert course documents: %w", err)
	}
	return nil
}

const selectCourseColumns = `
SELECT c.id, c.reference, c.title,
	COALESCE(d.name, ''), COALESCE(l.name, ''), COALESCE(h.name, ''),
	c.capacity, c.seats_remaining, c.price,
	c.organizer, c.responsible, COALESCE(c.contact_email, ''),
	c.status, c.first_seen_at, c.last_seen_at
FROM courses c
LEFT JOIN disciplines d ON d.id = c.discipline_id
LEFT JOIN locations l ON l.id = c.location_id
LEFT JOIN lodgings h ON h.id = c.lodging_id`

// GetByReference reconstitutes the full record for one reference,
// including ordered dependent dates and documents.
func (s *CourseStore) GetByReference(ctx context.Context, reference string) (course.Course, error) {
	row := s.pool.QueryRow(ctx, selectCourseColumns+` WHERE c.reference = $1`, reference)
	var (
		id  int64
		rec course.Course
	)
	if err := scanCourse(row, &id, &rec); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, fmt.Errorf("select course %s: %w", reference, err)
	}
	if err := s.loadDependents(ctx, map[int64]*course.Course{id: &rec}); err != nil {
		return course.Course{}, err
	}
	return rec, nil
}

// List returns every course with its dependents, ordered by reference.
func (s *CourseStore) List(ctx context.Context) ([]course.Course, error) {
	return s.listWhere(ctx, `ORDER BY c.reference`)
}

// FirstSeenOn returns the courses whose first_seen_at falls on the given
// calendar day (UTC day boundaries).
func (s *CourseStore) FirstSeenOn(ctx context.Context, day time.Time) ([]course.Course, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return s.listWhere(ctx,
		`WHERE c.first_seen_at >= $1 AND c.first_seen_at < $2 ORDER BY c.reference`,
		start, start.Add(24*time.Hour),
	)
}

func (s *CourseStore) listWhere(ctx context.Context, clause string, args ...any) ([]course.Course, error) {
	rows, err := s.pool.Query(ctx, selectCourseColumns+" "+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("select courses: %w", err)
	}
	defer rows.Close()

	var (
		order []int64
		byID  = map[int64]*course.Course{}
	)
	for rows.Next() {
		var (
			id  int64
			rec course.Course
		)
		if err := scanCourse(rows, &id, &rec); err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		order = append(order, id)
		byID[id] = &rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate courses: %w", err)
	}
	if len(order) == 0 {
		return nil, nil
	}

	if err := s.loadDependents(ctx, byID); err != nil {
		return nil, err
	}

	out := make([]course.Course, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

func (s *CourseStore) loadDependents(ctx context.Context, byID map[int64]*course.Course) error {
	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT course_id, session_date FROM course_dates WHERE course_id = ANY($1) ORDER BY course_id, position`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("select course dates: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id int64
			d  time.Time
		)
		if err := rows.Scan(&id, &d); err != nil {
			return fmt.Errorf("scan course date: %w", err)
		}
		if rec, ok := byID[id]; ok {
			rec.Dates = append(rec.Dates, d)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate course dates: %w", err)
	}
	rows.Close()

	rows, err = s.pool.Query(ctx,
		`SELECT course_id, doc_type, label, url FROM course_documents WHERE course_id = ANY($1) ORDER BY course_id, position`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("select course documents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id  int64
			doc course.Document
		)
		if err := rows.Scan(&id, &doc.Type, &doc.Label, &doc.URL); err != nil {
			return fmt.Errorf("scan course document: %w", err)
		}
		if rec, ok := byID[id]; ok {
			rec.Documents = append(rec.Documents, doc)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate course documents: %w", err)
	}
	return nil
}

// LastSeenAt returns the max last_seen_at across all courses, or the zero
// time when the table is empty.
func (s *CourseStore) LastSeenAt(ctx context.Context) (time.Time, error) {
	var last *time.Time
	if err := s.pool.QueryRow(ctx, `SELECT MAX(last_seen_at) FROM courses`).Scan(&last); err != nil {
		return time.Time{}, fmt.Errorf("select max last_seen_at: %w", err)
	}
	if last == nil {
		return time.Time{}, nil
	}
	return *last, nil
}

func scanCourse(row pgx.Row, id *int64, rec *course.Course) error {
	return row.Scan(
		id,
		&rec.Reference,
		&rec.Title,
		&rec.Discipline,
		&rec.Location,
		&rec.Lodging,
		&rec.Capacity,
		&rec.SeatsRemaining,
		&rec.Price,
		&rec.Organizer,
		&rec.Responsible,
		&rec.ContactEmail,
		&rec.Status,
		&rec.FirstSeenAt,
		&rec.LastSeenAt,
	)
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
