package store

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/feedback-cli/internal/db"
	"github.com/sells-group/feedback-cli/internal/model"
	"github.com/sells-group/feedback-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pgRepo
	pool    db.Pool
	closeFn func()
	retry   resilience.RetryConfig
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	ping := resilience.DefaultRetryConfig()
	ping.OnRetry = resilience.RetryLogger(DriverPostgres, "ping")
	if err := resilience.Do(ctx, ping, pool.Ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool, pool.Close), nil
}

func newPostgresStore(pool db.Pool, closeFn func()) *PostgresStore {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger(DriverPostgres, "tx")
	return &PostgresStore{pgRepo: pgRepo{q: pool}, pool: pool, closeFn: closeFn, retry: retry}
}

// Migrate applies the embedded schema. It is idempotent, and matches the
// first golang-migrate version used by the migrate command.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema, err := postgresSchema()
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, schema)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// InTx runs fn in a transaction. Reads of codebooks and templates inside fn
// take row locks, and LockStudy takes a transaction-scoped advisory lock.
// Transactions aborted by serialization failures or deadlocks are rerun.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Repository) error) error {
	return resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.inTx(ctx, fn)
	})
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(Repository) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(pgRepo{q: tx, tx: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit tx")
	}
	return nil
}

// pgRepo runs Repository queries against a pool or a transaction.
type pgRepo struct {
	q  db.Querier
	tx bool
}

func (r pgRepo) forUpdate() string {
	if r.tx {
		return " FOR UPDATE"
	}
	return ""
}

func (r pgRepo) LockStudy(ctx context.Context, studyID string) error {
	if !r.tx {
		return nil
	}
	_, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, studyID)
	return eris.Wrapf(err, "postgres: lock study %s", studyID)
}

const snapshotColumns = `id, study_id, extractor_version, created_at`

func (r pgRepo) CreateSnapshot(ctx context.Context, studyID, extractorVersion string) (*model.ExtractionSnapshot, error) {
	snap := &model.ExtractionSnapshot{
		ID:               uuid.New().String(),
		StudyID:          studyID,
		ExtractorVersion: extractorVersion,
		CreatedAt:        time.Now().UTC(),
	}
	_, err := r.q.Exec(ctx,
		`INSERT INTO extraction_snapshots (id, study_id, extractor_version, created_at) VALUES ($1, $2, $3, $4)`,
		snap.ID, snap.StudyID, snap.ExtractorVersion, snap.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert snapshot for study %s", studyID)
	}
	return snap, nil
}

func (r pgRepo) GetSnapshot(ctx context.Context, snapshotID string) (*model.ExtractionSnapshot, error) {
	return r.scanSnapshot(r.q.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM extraction_snapshots WHERE id = $1`, snapshotID),
		"get snapshot "+snapshotID)
}

func (r pgRepo) LatestSnapshot(ctx context.Context, studyID string) (*model.ExtractionSnapshot, error) {
	return r.scanSnapshot(r.q.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM extraction_snapshots WHERE study_id = $1 ORDER BY created_at DESC LIMIT 1`, studyID),
		"latest snapshot for study "+studyID)
}

func (r pgRepo) scanSnapshot(row pgx.Row, what string) (*model.ExtractionSnapshot, error) {
	var s model.ExtractionSnapshot
	if err := row.Scan(&s.ID, &s.StudyID, &s.ExtractorVersion, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: "+what)
	}
	return &s, nil
}

var variableColumns = []string{"id", "snapshot_id", "position", "variable_key", "variable_name", "type", "examples", "created_at"}

func (r pgRepo) CreateVariableRecords(ctx context.Context, snapshotID string, records []model.VariableRecord) ([]model.VariableRecord, error) {
	if err := checkUniqueKeys(records); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	out := make([]model.VariableRecord, len(records))
	rows := make([][]any, len(records))
	for i, rec := range records {
		rec.ID = uuid.New().String()
		rec.SnapshotID = snapshotID
		rec.CreatedAt = now
		if rec.Examples == nil {
			rec.Examples = []model.VariableExample{}
		}
		examples, err := json.Marshal(rec.Examples)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: marshal examples for %s", rec.VariableKey)
		}
		out[i] = rec
		rows[i] = []any{rec.ID, snapshotID, i, rec.VariableKey, rec.VariableName, rec.Type, examples, now}
	}
	if _, err := db.CopyFrom(ctx, r.q, "variable_records", variableColumns, rows); err != nil {
		return nil, eris.Wrapf(err, "postgres: insert variables for snapshot %s", snapshotID)
	}
	return out, nil
}

func (r pgRepo) GetVariablesBySnapshot(ctx context.Context, snapshotID string) ([]model.VariableRecord, error) {
	rows, err := r.q.Query(ctx,
		`SELECT id, snapshot_id, variable_key, variable_name, type, examples, created_at FROM variable_records WHERE snapshot_id = $1 ORDER BY position`,
		snapshotID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get variables for snapshot %s", snapshotID)
	}
	defer rows.Close()

	vars := []model.VariableRecord{}
	for rows.Next() {
		var v model.VariableRecord
		var examples []byte
		if err := rows.Scan(&v.ID, &v.SnapshotID, &v.VariableKey, &v.VariableName, &v.Type, &examples, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan variable")
		}
		if err := json.Unmarshal(examples, &v.Examples); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal examples for %s", v.VariableKey)
		}
		vars = append(vars, v)
	}
	return vars, eris.Wrap(rows.Err(), "postgres: iterate variables")
}

// pgAudit scans the validation audit columns shared by codebooks and
// templates.
type pgAudit struct {
	status, snapshotID, version *string
	at                          *time.Time
	missing, extra              []string
}

func (a *pgAudit) dest() []any {
	return []any{&a.status, &a.missing, &a.extra, &a.snapshotID, &a.at, &a.version}
}

func (a *pgAudit) audit() model.ValidationAudit {
	out := model.ValidationAudit{
		MissingKeys: nonNil(a.missing),
		ExtraKeys:   nonNil(a.extra),
		ValidatedAt: a.at,
	}
	if a.status != nil {
		out.Status = model.ValidationStatus(*a.status)
	}
	if a.snapshotID != nil {
		out.ValidatedExtractionID = *a.snapshotID
	}
	if a.version != nil {
		out.ExtractorVersion = *a.version
	}
	return out
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const auditColumns = `validation_status, missing_keys, extra_keys, validated_extraction_id, validated_at, extractor_version`

const codebookColumns = `id, study_id, ` + auditColumns + `, created_at, updated_at`

func scanCodebook(row pgx.Row) (*model.Codebook, error) {
	var cb model.Codebook
	var a pgAudit
	dest := append([]any{&cb.ID, &cb.StudyID}, a.dest()...)
	dest = append(dest, &cb.CreatedAt, &cb.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	cb.Validation = a.audit()
	return &cb, nil
}

func (r pgRepo) GetCodebook(ctx context.Context, studyID string) (*model.Codebook, error) {
	cb, err := scanCodebook(r.q.QueryRow(ctx,
		`SELECT `+codebookColumns+` FROM codebooks WHERE study_id = $1`+r.forUpdate(), studyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get codebook for study %s", studyID)
	}

	rows, err := r.q.Query(ctx,
		`SELECT variable_key, description FROM codebook_entries WHERE codebook_id = $1 ORDER BY position`, cb.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get codebook entries %s", cb.ID)
	}
	defer rows.Close()

	cb.Entries = []model.CodebookEntry{}
	for rows.Next() {
		var e model.CodebookEntry
		if err := rows.Scan(&e.VariableKey, &e.Description); err != nil {
			return nil, eris.Wrap(err, "postgres: scan codebook entry")
		}
		cb.Entries = append(cb.Entries, e)
	}
	return cb, eris.Wrap(rows.Err(), "postgres: iterate codebook entries")
}

var entryUpsert = db.UpsertConfig{
	Table:        "codebook_entries",
	Columns:      []string{"codebook_id", "variable_key", "description", "position"},
	ConflictKeys: []string{"codebook_id", "variable_key"},
}

// SaveCodebook creates or replaces the study's codebook entries. The
// validation audit is left untouched.
func (r pgRepo) SaveCodebook(ctx context.Context, studyID string, entries []model.CodebookEntry) (*model.Codebook, error) {
	tx, err := r.q.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: save codebook: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	cb, err := scanCodebook(tx.QueryRow(ctx,
		`INSERT INTO codebooks (id, study_id, created_at, updated_at) VALUES ($1, $2, $3, $3)
		 ON CONFLICT (study_id) DO UPDATE SET updated_at = EXCLUDED.updated_at
		 RETURNING `+codebookColumns,
		uuid.New().String(), studyID, now,
	))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert codebook for study %s", studyID)
	}

	keys := make([]string, len(entries))
	rows := make([][]any, len(entries))
	for i, e := range entries {
		keys[i] = e.VariableKey
		rows[i] = []any{cb.ID, e.VariableKey, e.Description, i}
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM codebook_entries WHERE codebook_id = $1 AND NOT (variable_key = ANY($2))`, cb.ID, keys,
	); err != nil {
		return nil, eris.Wrapf(err, "postgres: prune codebook entries %s", cb.ID)
	}
	if _, err := db.BulkUpsert(ctx, tx, entryUpsert, rows); err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert codebook entries %s", cb.ID)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: save codebook: commit tx")
	}

	cb.Entries = append([]model.CodebookEntry{}, entries...)
	return cb, nil
}

func (r pgRepo) UpdateCodebookValidation(ctx context.Context, codebookID string, audit model.ValidationAudit) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE codebooks SET validation_status = $1, missing_keys = $2, extra_keys = $3, validated_extraction_id = $4,
		 validated_at = $5, extractor_version = $6, updated_at = $7 WHERE id = $8`,
		nullable(string(audit.Status)), nonNil(audit.MissingKeys), nonNil(audit.ExtraKeys),
		nullable(audit.ValidatedExtractionID), audit.ValidatedAt, nullable(audit.ExtractorVersion),
		time.Now().UTC(), codebookID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update codebook validation %s", codebookID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("codebook not found: %s", codebookID)
	}
	return nil
}

const templateColumns = `id, study_id, content, required_variable_keys, required_keys_hash, ` + auditColumns + `, created_at, updated_at`

func scanTemplate(row pgx.Row) (*model.FeedbackTemplate, error) {
	var ft model.FeedbackTemplate
	var a pgAudit
	var hash *string
	dest := append([]any{&ft.ID, &ft.StudyID, &ft.Content, &ft.RequiredVariableKeys, &hash}, a.dest()...)
	dest = append(dest, &ft.CreatedAt, &ft.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	ft.Validation = a.audit()
	ft.RequiredVariableKeys = nonNil(ft.RequiredVariableKeys)
	if hash != nil {
		ft.RequiredKeysHash = *hash
	}
	return &ft, nil
}

func (r pgRepo) GetFeedbackTemplate(ctx context.Context, studyID string) (*model.FeedbackTemplate, error) {
	ft, err := scanTemplate(r.q.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM feedback_templates WHERE study_id = $1`+r.forUpdate(), studyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get feedback template for study %s", studyID)
	}
	return ft, nil
}

// SaveFeedbackTemplate creates or replaces the study's template content. The
// validation audit and cached required keys are left untouched.
func (r pgRepo) SaveFeedbackTemplate(ctx context.Context, studyID, content string) (*model.FeedbackTemplate, error) {
	now := time.Now().UTC()
	ft, err := scanTemplate(r.q.QueryRow(ctx,
		`INSERT INTO feedback_templates (id, study_id, content, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (study_id) DO UPDATE SET content = EXCLUDED.content, updated_at = EXCLUDED.updated_at
		 RETURNING `+templateColumns,
		uuid.New().String(), studyID, content, now,
	))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert feedback template for study %s", studyID)
	}
	return ft, nil
}

func (r pgRepo) UpdateFeedbackTemplateValidation(ctx context.Context, templateID string, audit model.ValidationAudit, requiredKeys []string, requiredKeysHash string) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE feedback_templates SET validation_status = $1, missing_keys = $2, extra_keys = $3, validated_extraction_id = $4,
		 validated_at = $5, extractor_version = $6, required_variable_keys = $7, required_keys_hash = $8, updated_at = $9 WHERE id = $10`,
		nullable(string(audit.Status)), nonNil(audit.MissingKeys), nonNil(audit.ExtraKeys),
		nullable(audit.ValidatedExtractionID), audit.ValidatedAt, nullable(audit.ExtractorVersion),
		nonNil(requiredKeys), nullable(requiredKeysHash), time.Now().UTC(), templateID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update feedback template validation %s", templateID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("feedback template not found: %s", templateID)
	}
	return nil
}
