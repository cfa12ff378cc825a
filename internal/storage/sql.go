package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/google/uuid"

	"symptom-interview/internal/interview"
	"symptom-interview/internal/triage"
	apperrors "symptom-interview/pkg/errors"
)

// Dialect selects the SQL flavor of an SQLStore.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

const assessmentsTable = "assessments"

var assessmentColumns = []any{
	"id", "session_id", "patient_name", "age", "sex",
	"evidence", "conditions", "recommendations",
	"triage_level", "triage_description", "created_at",
}

// SQLStore persists assessments in Postgres or SQLite. Nested lists are
// stored as JSON text columns.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	qb      *goqu.Database
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		qb:      goqu.New(string(dialect), db),
	}
}

// Save upserts the assessment by id so a retried save is harmless.
func (s *SQLStore) Save(ctx context.Context, a interview.Assessment) (uuid.UUID, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	evidenceJSON, err := json.Marshal(nonNil(a.Evidence))
	if err != nil {
		return uuid.Nil, apperrors.NewInternalError("failed to encode evidence", err)
	}
	conditionsJSON, err := json.Marshal(nonNil(a.Conditions))
	if err != nil {
		return uuid.Nil, apperrors.NewInternalError("failed to encode conditions", err)
	}
	recommendationsJSON, err := json.Marshal(nonNil(a.Recommendations))
	if err != nil {
		return uuid.Nil, apperrors.NewInternalError("failed to encode recommendations", err)
	}

	var level, description sql.NullString
	if a.Triage != nil {
		level = sql.NullString{String: string(a.Triage.Level), Valid: true}
		description = sql.NullString{String: a.Triage.Description, Valid: true}
	}

	record := goqu.Record{
		"id":                 a.ID.String(),
		"session_id":         a.SessionID.String(),
		"patient_name":       a.Profile.Name,
		"age":                a.Profile.Age,
		"sex":                string(a.Profile.Sex),
		"evidence":           string(evidenceJSON),
		"conditions":         string(conditionsJSON),
		"recommendations":    string(recommendationsJSON),
		"triage_level":       level,
		"triage_description": description,
		"created_at":         s.timeValue(a.CreatedAt),
	}

	query, args, err := s.qb.Insert(assessmentsTable).
		Prepared(true).
		Rows(record).
		OnConflict(goqu.DoUpdate("id", goqu.Record{
			"evidence":           goqu.I("excluded.evidence"),
			"conditions":         goqu.I("excluded.conditions"),
			"recommendations":    goqu.I("excluded.recommendations"),
			"triage_level":       goqu.I("excluded.triage_level"),
			"triage_description": goqu.I("excluded.triage_description"),
		})).
		ToSQL()
	if err != nil {
		return uuid.Nil, apperrors.NewInternalError("failed to build assessment insert query", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return uuid.Nil, apperrors.NewPersistenceError("failed to save assessment", err)
	}
	return a.ID, nil
}

func (s *SQLStore) Get(ctx context.Context, id uuid.UUID) (*interview.Assessment, error) {
	query, args, err := s.qb.From(assessmentsTable).
		Prepared(true).
		Select(assessmentColumns...).
		Where(goqu.Ex{"id": id.String()}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build assessment query", err)
	}

	a, err := scanAssessment(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("assessment not found")
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("failed to load assessment", err)
	}
	return a, nil
}

// List returns all assessments, newest first.
func (s *SQLStore) List(ctx context.Context) ([]interview.Assessment, error) {
	query, args, err := s.qb.From(assessmentsTable).
		Prepared(true).
		Select(assessmentColumns...).
		Order(goqu.I("created_at").Desc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build assessment list query", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewPersistenceError("failed to list assessments", err)
	}
	defer rows.Close()

	result := []interview.Assessment{}
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, apperrors.NewPersistenceError("failed to scan assessment", err)
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("failed to list assessments", err)
	}
	return result, nil
}

func (s *SQLStore) Delete(ctx context.Context, id uuid.UUID) error {
	query, args, err := s.qb.Delete(assessmentsTable).
		Prepared(true).
		Where(goqu.Ex{"id": id.String()}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build assessment delete query", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewPersistenceError("failed to delete assessment", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewPersistenceError("failed to delete assessment", err)
	}
	if n == 0 {
		return apperrors.NewNotFoundError("assessment not found")
	}
	return nil
}

// timeValue stores SQLite timestamps as RFC 3339 text so they sort and parse
// the same way regardless of driver formatting.
func (s *SQLStore) timeValue(t time.Time) any {
	if s.dialect == DialectSQLite {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssessment(row rowScanner) (*interview.Assessment, error) {
	var (
		a                      interview.Assessment
		sex                    string
		evidenceJSON, recsJSON []byte
		conditionsJSON         []byte
		level, description     sql.NullString
		createdAt              timestamp
	)
	err := row.Scan(
		&a.ID,
		&a.SessionID,
		&a.Profile.Name,
		&a.Profile.Age,
		&sex,
		&evidenceJSON,
		&conditionsJSON,
		&recsJSON,
		&level,
		&description,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	a.Profile.Sex = interview.Sex(sex)
	a.CreatedAt = time.Time(createdAt)
	if err := json.Unmarshal(evidenceJSON, &a.Evidence); err != nil {
		return nil, fmt.Errorf("failed to unmarshal evidence: %w", err)
	}
	if err := json.Unmarshal(conditionsJSON, &a.Conditions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
	}
	if err := json.Unmarshal(recsJSON, &a.Recommendations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recommendations: %w", err)
	}
	if level.Valid {
		a.Triage = &interview.TriageResult{
			Level:       triage.Level(level.String),
			Description: description.String,
		}
	}
	return &a, nil
}

// timestamp scans both native time values and RFC 3339 text.
type timestamp time.Time

func (t *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*t = timestamp(v.UTC())
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (t *timestamp) parse(s string) error {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = timestamp(parsed.UTC())
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
