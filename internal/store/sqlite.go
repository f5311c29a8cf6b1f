package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/feedback-cli/internal/model"
	"github.com/sells-group/feedback-cli/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	sqliteRepo
	db    *sql.DB
	mu    sync.Mutex // serializes InTx writers
	retry resilience.RetryConfig
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection; one connection keeps them applied.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger(DriverSQLite, "tx")
	return &SQLiteStore{sqliteRepo: sqliteRepo{q: db, db: db}, db: db, retry: retry}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema, err := sqliteSchema()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, schema)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InTx runs fn in a transaction. Transactions are serialized in-process,
// which also serializes consistency checks per study. A database locked by
// another process is retried.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.inTx(ctx, fn)
	})
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(Repository) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(sqliteRepo{q: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

// sqlQuerier is satisfied by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqliteRepo runs Repository queries. db is set outside a transaction so
// multi-statement writes can open their own.
type sqliteRepo struct {
	q  sqlQuerier
	db *sql.DB
}

// atomic runs fn in a transaction unless r already is one.
func (r sqliteRepo) atomic(ctx context.Context, fn func(sqliteRepo) error) error {
	if r.db == nil {
		return fn(r)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck
	if err := fn(sqliteRepo{q: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

func (r sqliteRepo) LockStudy(context.Context, string) error { return nil }

func (r sqliteRepo) CreateSnapshot(ctx context.Context, studyID, extractorVersion string) (*model.ExtractionSnapshot, error) {
	snap := &model.ExtractionSnapshot{
		ID:               uuid.New().String(),
		StudyID:          studyID,
		ExtractorVersion: extractorVersion,
		CreatedAt:        time.Now().UTC(),
	}
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO extraction_snapshots (id, study_id, extractor_version, created_at) VALUES (?, ?, ?, ?)`,
		snap.ID, snap.StudyID, snap.ExtractorVersion, snap.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert snapshot for study %s", studyID)
	}
	return snap, nil
}

func (r sqliteRepo) GetSnapshot(ctx context.Context, snapshotID string) (*model.ExtractionSnapshot, error) {
	return scanSQLiteSnapshot(r.q.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM extraction_snapshots WHERE id = ?`, snapshotID),
		"get snapshot "+snapshotID)
}

// LatestSnapshot orders by rowid: snapshots are append-only, so insertion
// order is creation order even when timestamps tie.
func (r sqliteRepo) LatestSnapshot(ctx context.Context, studyID string) (*model.ExtractionSnapshot, error) {
	return scanSQLiteSnapshot(r.q.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM extraction_snapshots WHERE study_id = ? ORDER BY rowid DESC LIMIT 1`, studyID),
		"latest snapshot for study "+studyID)
}

func scanSQLiteSnapshot(row scannable, what string) (*model.ExtractionSnapshot, error) {
	var s model.ExtractionSnapshot
	if err := row.Scan(&s.ID, &s.StudyID, &s.ExtractorVersion, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: "+what)
	}
	return &s, nil
}

func (r sqliteRepo) CreateVariableRecords(ctx context.Context, snapshotID string, records []model.VariableRecord) ([]model.VariableRecord, error) {
	if err := checkUniqueKeys(records); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	out := make([]model.VariableRecord, len(records))
	err := r.atomic(ctx, func(tx sqliteRepo) error {
		for i, rec := range records {
			rec.ID = uuid.New().String()
			rec.SnapshotID = snapshotID
			rec.CreatedAt = now
			if rec.Examples == nil {
				rec.Examples = []model.VariableExample{}
			}
			examples, err := json.Marshal(rec.Examples)
			if err != nil {
				return eris.Wrapf(err, "sqlite: marshal examples for %s", rec.VariableKey)
			}
			if _, err := tx.q.ExecContext(ctx,
				`INSERT INTO variable_records (id, snapshot_id, position, variable_key, variable_name, type, examples, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				rec.ID, snapshotID, i, rec.VariableKey, rec.VariableName, rec.Type, string(examples), now,
			); err != nil {
				return eris.Wrapf(err, "sqlite: insert variable %s", rec.VariableKey)
			}
			out[i] = rec
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r sqliteRepo) GetVariablesBySnapshot(ctx context.Context, snapshotID string) ([]model.VariableRecord, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, snapshot_id, variable_key, variable_name, type, examples, created_at FROM variable_records WHERE snapshot_id = ? ORDER BY position`,
		snapshotID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get variables for snapshot %s", snapshotID)
	}
	defer rows.Close() //nolint:errcheck

	vars := []model.VariableRecord{}
	for rows.Next() {
		var v model.VariableRecord
		var examples string
		if err := rows.Scan(&v.ID, &v.SnapshotID, &v.VariableKey, &v.VariableName, &v.Type, &examples, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan variable")
		}
		if err := json.Unmarshal([]byte(examples), &v.Examples); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal examples for %s", v.VariableKey)
		}
		vars = append(vars, v)
	}
	return vars, eris.Wrap(rows.Err(), "sqlite: iterate variables")
}

// sqliteAudit scans audit columns stored as nullable text and JSON arrays.
type sqliteAudit struct {
	status, snapshotID, version sql.NullString
	at                          sql.NullTime
	missing, extra              string
}

func (a *sqliteAudit) dest() []any {
	return []any{&a.status, &a.missing, &a.extra, &a.snapshotID, &a.at, &a.version}
}

func (a *sqliteAudit) audit() (model.ValidationAudit, error) {
	out := model.ValidationAudit{
		Status:                model.ValidationStatus(a.status.String),
		ValidatedExtractionID: a.snapshotID.String,
		ExtractorVersion:      a.version.String,
	}
	if a.at.Valid {
		at := a.at.Time
		out.ValidatedAt = &at
	}
	if err := decodeKeys(a.missing, &out.MissingKeys); err != nil {
		return out, err
	}
	if err := decodeKeys(a.extra, &out.ExtraKeys); err != nil {
		return out, err
	}
	return out, nil
}

func decodeKeys(s string, dst *[]string) error {
	if s == "" {
		*dst = []string{}
		return nil
	}
	if err := json.Unmarshal([]byte(s), dst); err != nil {
		return eris.Wrap(err, "sqlite: unmarshal keys")
	}
	*dst = nonNil(*dst)
	return nil
}

func encodeKeys(keys []string) (string, error) {
	b, err := json.Marshal(nonNil(keys))
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal keys")
	}
	return string(b), nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func (r sqliteRepo) GetCodebook(ctx context.Context, studyID string) (*model.Codebook, error) {
	var cb model.Codebook
	var a sqliteAudit
	dest := append([]any{&cb.ID, &cb.StudyID}, a.dest()...)
	dest = append(dest, &cb.CreatedAt, &cb.UpdatedAt)

	err := r.q.QueryRowContext(ctx, `SELECT `+codebookColumns+` FROM codebooks WHERE study_id = ?`, studyID).Scan(dest...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get codebook for study %s", studyID)
	}
	if cb.Validation, err = a.audit(); err != nil {
		return nil, err
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT variable_key, description FROM codebook_entries WHERE codebook_id = ? ORDER BY position`, cb.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get codebook entries %s", cb.ID)
	}
	defer rows.Close() //nolint:errcheck

	cb.Entries = []model.CodebookEntry{}
	for rows.Next() {
		var e model.CodebookEntry
		if err := rows.Scan(&e.VariableKey, &e.Description); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan codebook entry")
		}
		cb.Entries = append(cb.Entries, e)
	}
	return &cb, eris.Wrap(rows.Err(), "sqlite: iterate codebook entries")
}

func (r sqliteRepo) SaveCodebook(ctx context.Context, studyID string, entries []model.CodebookEntry) (*model.Codebook, error) {
	var cb *model.Codebook
	err := r.atomic(ctx, func(tx sqliteRepo) error {
		now := time.Now().UTC()
		if _, err := tx.q.ExecContext(ctx,
			`INSERT INTO codebooks (id, study_id, created_at, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (study_id) DO UPDATE SET updated_at = excluded.updated_at`,
			uuid.New().String(), studyID, now, now,
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert codebook for study %s", studyID)
		}

		var id string
		if err := tx.q.QueryRowContext(ctx, `SELECT id FROM codebooks WHERE study_id = ?`, studyID).Scan(&id); err != nil {
			return eris.Wrapf(err, "sqlite: get codebook id for study %s", studyID)
		}
		if _, err := tx.q.ExecContext(ctx, `DELETE FROM codebook_entries WHERE codebook_id = ?`, id); err != nil {
			return eris.Wrapf(err, "sqlite: clear codebook entries %s", id)
		}
		for i, e := range entries {
			if _, err := tx.q.ExecContext(ctx,
				`INSERT INTO codebook_entries (codebook_id, variable_key, description, position) VALUES (?, ?, ?, ?)`,
				id, e.VariableKey, e.Description, i,
			); err != nil {
				return eris.Wrapf(err, "sqlite: insert codebook entry %s", e.VariableKey)
			}
		}

		var err error
		cb, err = tx.GetCodebook(ctx, studyID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cb, nil
}

func (r sqliteRepo) UpdateCodebookValidation(ctx context.Context, codebookID string, audit model.ValidationAudit) error {
	missing, err := encodeKeys(audit.MissingKeys)
	if err != nil {
		return err
	}
	extra, err := encodeKeys(audit.ExtraKeys)
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx,
		`UPDATE codebooks SET validation_status = ?, missing_keys = ?, extra_keys = ?, validated_extraction_id = ?,
		 validated_at = ?, extractor_version = ?, updated_at = ? WHERE id = ?`,
		nullable(string(audit.Status)), missing, extra, nullable(audit.ValidatedExtractionID),
		nullTime(audit.ValidatedAt), nullable(audit.ExtractorVersion), time.Now().UTC(), codebookID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update codebook validation %s", codebookID)
	}
	return checkRowsAffected(res, "codebook", codebookID)
}

func (r sqliteRepo) GetFeedbackTemplate(ctx context.Context, studyID string) (*model.FeedbackTemplate, error) {
	var ft model.FeedbackTemplate
	var a sqliteAudit
	var required string
	var hash sql.NullString
	dest := append([]any{&ft.ID, &ft.StudyID, &ft.Content, &required, &hash}, a.dest()...)
	dest = append(dest, &ft.CreatedAt, &ft.UpdatedAt)

	err := r.q.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM feedback_templates WHERE study_id = ?`, studyID).Scan(dest...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get feedback template for study %s", studyID)
	}
	if ft.Validation, err = a.audit(); err != nil {
		return nil, err
	}
	if err := decodeKeys(required, &ft.RequiredVariableKeys); err != nil {
		return nil, err
	}
	ft.RequiredKeysHash = hash.String
	return &ft, nil
}

func (r sqliteRepo) SaveFeedbackTemplate(ctx context.Context, studyID, content string) (*model.FeedbackTemplate, error) {
	var ft *model.FeedbackTemplate
	err := r.atomic(ctx, func(tx sqliteRepo) error {
		now := time.Now().UTC()
		if _, err := tx.q.ExecContext(ctx,
			`INSERT INTO feedback_templates (id, study_id, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (study_id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
			uuid.New().String(), studyID, content, now, now,
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert feedback template for study %s", studyID)
		}
		var err error
		ft, err = tx.GetFeedbackTemplate(ctx, studyID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ft, nil
}

func (r sqliteRepo) UpdateFeedbackTemplateValidation(ctx context.Context, templateID string, audit model.ValidationAudit, requiredKeys []string, requiredKeysHash string) error {
	missing, err := encodeKeys(audit.MissingKeys)
	if err != nil {
		return err
	}
	extra, err := encodeKeys(audit.ExtraKeys)
	if err != nil {
		return err
	}
	required, err := encodeKeys(requiredKeys)
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx,
		`UPDATE feedback_templates SET validation_status = ?, missing_keys = ?, extra_keys = ?, validated_extraction_id = ?,
		 validated_at = ?, extractor_version = ?, required_variable_keys = ?, required_keys_hash = ?, updated_at = ? WHERE id = ?`,
		nullable(string(audit.Status)), missing, extra, nullable(audit.ValidatedExtractionID),
		nullTime(audit.ValidatedAt), nullable(audit.ExtractorVersion), required, nullable(requiredKeysHash),
		time.Now().UTC(), templateID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update feedback template validation %s", templateID)
	}
	return checkRowsAffected(res, "feedback template", templateID)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}
