// Package repository provides the SQL-backed detection store.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-health/triage/internal/domain"
)

// SchemaVersion is written on every batch row so the record layout can
// evolve without rewriting history.
const SchemaVersion = 1

// queryableFields maps the public field names accepted by QueryByField
// to their columns.
var queryableFields = map[string]string{
	"disease":          "disease",
	"medicationAdvice": "medication_advice",
	"doctorAdvice":     "doctor_advice",
}

// SQLRepository implements domain.DetectionStore using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.DetectionStore, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", domain.ErrStoreUnavailable, err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// AppendBatch stores records as a single batch inside one transaction.
// Either the batch row and every record row are committed, or nothing is.
func (r *SQLRepository) AppendBatch(ctx context.Context, records []domain.DetectionRecord) (string, error) {
	if len(records) == 0 {
		return "", fmt.Errorf("%w: batch has no records", domain.ErrInvalidInput)
	}

	batchID, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate batch id: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", unavailable("begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, r.rebind(`
		INSERT INTO detection_batches (id, created_at, schema_version)
		VALUES (?, ?, ?)
	`), batchID.String(), time.Now().UTC(), SchemaVersion)
	if err != nil {
		return "", unavailable("insert batch", err)
	}

	insertRecord := r.rebind(`
		INSERT INTO detection_records (
			id, batch_id, position, disease, medication_advice, doctor_advice, symptoms
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)

	for i, rec := range records {
		recordID, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("failed to generate record id: %w", err)
		}

		symptoms, err := encodeSymptoms(rec.Symptoms)
		if err != nil {
			return "", err
		}

		if _, err := tx.ExecContext(ctx, insertRecord,
			recordID.String(), batchID.String(), i,
			rec.Disease, rec.MedicationAdvice, rec.DoctorAdvice, symptoms,
		); err != nil {
			return "", unavailable("insert record", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", unavailable("commit batch", err)
	}

	return batchID.String(), nil
}

// ReadAll returns every batch in insertion order with records in their
// original order. Batch ids are UUIDv7 so ordering by id is ordering by time.
func (r *SQLRepository) ReadAll(ctx context.Context) ([]domain.Batch, error) {
	query := `
		SELECT b.id, b.created_at, d.id, d.disease, d.medication_advice, d.doctor_advice, d.symptoms
		FROM detection_batches b
		JOIN detection_records d ON d.batch_id = b.id
		ORDER BY b.id, d.position
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, unavailable("read batches", err)
	}
	defer rows.Close()

	batches := make([]domain.Batch, 0)
	for rows.Next() {
		var batchID string
		var createdAt time.Time
		var rec domain.DetectionRecord
		var symptoms string

		if err := rows.Scan(
			&batchID, &createdAt,
			&rec.ID, &rec.Disease, &rec.MedicationAdvice, &rec.DoctorAdvice, &symptoms,
		); err != nil {
			return nil, unavailable("scan batch", err)
		}

		if rec.Symptoms, err = decodeSymptoms(symptoms); err != nil {
			return nil, err
		}

		if n := len(batches); n == 0 || batches[n-1].ID != batchID {
			batches = append(batches, domain.Batch{
				ID:        batchID,
				CreatedAt: createdAt,
				Records:   make([]domain.DetectionRecord, 0, 1),
			})
		}
		last := &batches[len(batches)-1]
		last.Records = append(last.Records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, unavailable("read batches", err)
	}

	return batches, nil
}

// QueryByField returns every record whose field equals value, oldest first.
func (r *SQLRepository) QueryByField(ctx context.Context, field, value string) ([]domain.DetectionRecord, error) {
	column, ok := queryableFields[field]
	if !ok {
		return nil, fmt.Errorf("%w: unknown field %q", domain.ErrInvalidInput, field)
	}

	query := `
		SELECT id, disease, medication_advice, doctor_advice, symptoms
		FROM detection_records
		WHERE ` + column + ` = ?
		ORDER BY batch_id, position
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), value)
	if err != nil {
		return nil, unavailable("query records", err)
	}
	defer rows.Close()

	records := make([]domain.DetectionRecord, 0)
	for rows.Next() {
		var rec domain.DetectionRecord
		var symptoms string

		if err := rows.Scan(&rec.ID, &rec.Disease, &rec.MedicationAdvice, &rec.DoctorAdvice, &symptoms); err != nil {
			return nil, unavailable("scan record", err)
		}
		if rec.Symptoms, err = decodeSymptoms(symptoms); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, unavailable("query records", err)
	}

	return records, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, op, err)
}

func encodeSymptoms(symptoms []string) (string, error) {
	if symptoms == nil {
		symptoms = []string{}
	}
	data, err := json.Marshal(symptoms)
	if err != nil {
		return "", fmt.Errorf("failed to encode symptoms: %w", err)
	}
	return string(data), nil
}

func decodeSymptoms(data string) ([]string, error) {
	symptoms := []string{}
	if data == "" {
		return symptoms, nil
	}
	if err := json.Unmarshal([]byte(data), &symptoms); err != nil {
		return nil, fmt.Errorf("%w: corrupt symptoms column: %v", domain.ErrStoreUnavailable, err)
	}
	return symptoms, nil
}
