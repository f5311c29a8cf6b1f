// Package store persists extraction snapshots, variable records, codebooks
// and feedback templates in PostgreSQL or SQLite.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/feedback-cli/internal/model"
)

// Repository is the set of reads and writes the services need. Not-found
// reads return nil and no error.
type Repository interface {
	// Snapshots are append-only; there is no update.
	CreateSnapshot(ctx context.Context, studyID, extractorVersion string) (*model.ExtractionSnapshot, error)
	GetSnapshot(ctx context.Context, snapshotID string) (*model.ExtractionSnapshot, error)
	LatestSnapshot(ctx context.Context, studyID string) (*model.ExtractionSnapshot, error)

	// Variable records are insert-only. IDs and timestamps are assigned here.
	CreateVariableRecords(ctx context.Context, snapshotID string, records []model.VariableRecord) ([]model.VariableRecord, error)
	GetVariablesBySnapshot(ctx context.Context, snapshotID string) ([]model.VariableRecord, error)

	// Codebooks
	GetCodebook(ctx context.Context, studyID string) (*model.Codebook, error)
	SaveCodebook(ctx context.Context, studyID string, entries []model.CodebookEntry) (*model.Codebook, error)
	UpdateCodebookValidation(ctx context.Context, codebookID string, audit model.ValidationAudit) error

	// Feedback templates
	GetFeedbackTemplate(ctx context.Context, studyID string) (*model.FeedbackTemplate, error)
	SaveFeedbackTemplate(ctx context.Context, studyID, content string) (*model.FeedbackTemplate, error)
	UpdateFeedbackTemplateValidation(ctx context.Context, templateID string, audit model.ValidationAudit, requiredKeys []string, requiredKeysHash string) error

	// LockStudy serializes writers for one study until the enclosing
	// transaction ends. Outside InTx it is a no-op.
	LockStudy(ctx context.Context, studyID string) error
}

// Store is a Repository with transactions and lifecycle.
type Store interface {
	Repository

	// InTx runs fn in one transaction, committing when fn returns nil. fn
	// must use the Repository it is given, not the Store.
	InTx(ctx context.Context, fn func(Repository) error) error

	Migrate(ctx context.Context) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Options selects and tunes a backend.
type Options struct {
	Driver      string
	DatabaseURL string
	Pool        *PoolConfig
}

// Open connects to the configured backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverPostgres, "":
		return NewPostgres(ctx, opts.DatabaseURL, opts.Pool)
	case DriverSQLite:
		return NewSQLite(opts.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", opts.Driver)
	}
}

func checkUniqueKeys(records []model.VariableRecord) error {
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if r.VariableKey == "" {
			return eris.New("store: empty variable key")
		}
		if seen[r.VariableKey] {
			return eris.Errorf("store: duplicate variable key %q in snapshot", r.VariableKey)
		}
		seen[r.VariableKey] = true
	}
	return nil
}

func nonNil(keys []string) []string {
	if keys == nil {
		return []string{}
	}
	return keys
}
