package ingest

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/feedback-cli/internal/extract"
	"github.com/sells-group/feedback-cli/internal/model"
	"github.com/sells-group/feedback-cli/internal/store"
)

// Extraction is a stored snapshot with its variables.
type Extraction struct {
	Snapshot  *model.ExtractionSnapshot `json:"snapshot"`
	Variables []model.VariableRecord    `json:"variables"`
}

// Service records extraction snapshots.
type Service struct {
	store       store.Store
	version     string
	maxExamples int
	log         *zap.Logger
}

// NewService returns a Service stamping snapshots with extractorVersion.
func NewService(st store.Store, extractorVersion string, maxExamples int) *Service {
	return &Service{
		store:       st,
		version:     extractorVersion,
		maxExamples: maxExamples,
		log:         zap.L().With(zap.String("component", "ingest")),
	}
}

// Extract infers variables from every successfully parsed component and
// stores them as a new snapshot of the study in one transaction.
func (s *Service) Extract(ctx context.Context, studyID string, results ...model.EnrichedResult) (*Extraction, error) {
	if studyID == "" {
		return nil, eris.New("ingest: study id is required")
	}

	var ex Extraction
	err := s.store.InTx(ctx, func(r store.Repository) error {
		snap, err := r.CreateSnapshot(ctx, studyID, s.version)
		if err != nil {
			return err
		}

		b := extract.NewBuilder(snap.ID, s.maxExamples)
		var records []model.VariableRecord
		for _, res := range results {
			for _, c := range res.ComponentResults {
				if c.ParseError != "" {
					s.log.Debug("skipping unparsed component",
						zap.String("study_id", studyID),
						zap.String("name", c.Name),
						zap.String("error", c.ParseError),
					)
					continue
				}
				records = append(records, b.Add(c.Name, extract.Extract(c.ParsedData))...)
			}
		}

		created, err := r.CreateVariableRecords(ctx, snap.ID, records)
		if err != nil {
			return err
		}
		ex = Extraction{Snapshot: snap, Variables: created}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: extract study %s", studyID)
	}

	s.log.Info("extraction snapshot created",
		zap.String("study_id", studyID),
		zap.String("snapshot_id", ex.Snapshot.ID),
		zap.Int("variables", len(ex.Variables)),
	)
	return &ex, nil
}
