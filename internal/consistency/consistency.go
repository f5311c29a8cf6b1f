// Package consistency checks a study's codebook and feedback template
// against the variables of an extraction snapshot and records the outcome.
package consistency

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/feedback-cli/internal/dsl"
	"github.com/sells-group/feedback-cli/internal/model"
	"github.com/sells-group/feedback-cli/internal/store"
)

// Subject names what a Result was computed for.
type Subject string

const (
	SubjectCodebook Subject = "codebook"
	SubjectTemplate Subject = "template"
)

// Result is the persisted outcome of one check.
type Result struct {
	Subject          Subject                `json:"subject"`
	Status           model.ValidationStatus `json:"status"`
	MissingKeys      []string               `json:"missing_keys"`
	ExtraKeys        []string               `json:"extra_keys"`
	SnapshotID       string                 `json:"snapshot_id"`
	At               time.Time              `json:"at"`
	ExtractorVersion string                 `json:"extractor_version"`
	RequiredKeys     []string               `json:"required_keys,omitempty"`
	// Skipped is set when the stored audit already covered this template
	// content and snapshot, so nothing was rewritten.
	Skipped bool `json:"skipped,omitempty"`
}

// Checker runs consistency checks against a Store.
type Checker struct {
	store   store.Store
	version string
	now     func() time.Time
	log     *zap.Logger
}

// New returns a Checker that stamps results with extractorVersion.
func New(st store.Store, extractorVersion string) *Checker {
	return &Checker{
		store:   st,
		version: extractorVersion,
		now:     func() time.Time { return time.Now().UTC() },
		log:     zap.L().With(zap.String("component", "consistency")),
	}
}

// CheckCodebook compares the study's codebook with the snapshot's variable
// keys. It returns nil when the study has no codebook.
func (c *Checker) CheckCodebook(ctx context.Context, studyID, snapshotID string) (*Result, error) {
	var res *Result
	err := c.store.InTx(ctx, func(r store.Repository) error {
		if err := r.LockStudy(ctx, studyID); err != nil {
			return err
		}
		cb, err := r.GetCodebook(ctx, studyID)
		if err != nil {
			return err
		}
		if cb == nil {
			return nil
		}
		vars, err := c.snapshotVariables(ctx, r, studyID, snapshotID)
		if err != nil {
			return err
		}

		snapKeys := model.VariableKeys(vars)
		cbKeys := cb.Keys()
		res = c.result(SubjectCodebook, snapshotID, difference(snapKeys, cbKeys), difference(cbKeys, snapKeys))

		if err := r.UpdateCodebookValidation(ctx, cb.ID, res.audit()); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "consistency: check codebook for study %s", studyID)
	}
	c.logResult(studyID, res)
	return res, nil
}

// CheckTemplate compares the names the study's template references with the
// snapshot's variable names. It returns nil when the study has no template.
func (c *Checker) CheckTemplate(ctx context.Context, studyID, snapshotID string) (*Result, error) {
	var res *Result
	err := c.store.InTx(ctx, func(r store.Repository) error {
		if err := r.LockStudy(ctx, studyID); err != nil {
			return err
		}
		ft, err := r.GetFeedbackTemplate(ctx, studyID)
		if err != nil {
			return err
		}
		if ft == nil {
			return nil
		}

		required := dsl.RequiredVariableNames(ft.Content)
		hash := dsl.BuildRequiredKeysHash(required)
		if c.covered(ft, snapshotID, hash) {
			res = storedResult(ft)
			return nil
		}

		vars, err := c.snapshotVariables(ctx, r, studyID, snapshotID)
		if err != nil {
			return err
		}
		names := dsl.NamesFromVariables(vars).Sorted()

		res = c.result(SubjectTemplate, snapshotID, difference(required, names), difference(names, required))
		res.RequiredKeys = requiredKeys(required, vars)

		return r.UpdateFeedbackTemplateValidation(ctx, ft.ID, res.audit(), res.RequiredKeys, hash)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "consistency: check template for study %s", studyID)
	}
	c.logResult(studyID, res)
	return res, nil
}

// LatestReport holds both checks run against one snapshot.
type LatestReport struct {
	SnapshotID string  `json:"snapshot_id"`
	Codebook   *Result `json:"codebook"`
	Template   *Result `json:"template"`
}

// CheckLatest runs both checks against the study's most recent snapshot.
func (c *Checker) CheckLatest(ctx context.Context, studyID string) (*LatestReport, error) {
	snap, err := c.store.LatestSnapshot(ctx, studyID)
	if err != nil {
		return nil, eris.Wrapf(err, "consistency: latest snapshot for study %s", studyID)
	}
	if snap == nil {
		return nil, eris.Errorf("consistency: study %s has no extraction snapshot", studyID)
	}
	return c.CheckSnapshot(ctx, studyID, snap.ID)
}

// CheckSnapshot runs both checks against snapshotID.
func (c *Checker) CheckSnapshot(ctx context.Context, studyID, snapshotID string) (*LatestReport, error) {
	report := &LatestReport{SnapshotID: snapshotID}
	var err error
	if report.Codebook, err = c.CheckCodebook(ctx, studyID, snapshotID); err != nil {
		return nil, err
	}
	if report.Template, err = c.CheckTemplate(ctx, studyID, snapshotID); err != nil {
		return nil, err
	}
	return report, nil
}

func (c *Checker) snapshotVariables(ctx context.Context, r store.Repository, studyID, snapshotID string) ([]model.VariableRecord, error) {
	snap, err := r.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, eris.Errorf("snapshot not found: %s", snapshotID)
	}
	if snap.StudyID != studyID {
		return nil, eris.Errorf("snapshot %s belongs to study %s", snapshotID, snap.StudyID)
	}
	return r.GetVariablesBySnapshot(ctx, snapshotID)
}

func (c *Checker) result(subject Subject, snapshotID string, missing, extra []string) *Result {
	status := model.ValidationValid
	if len(missing) > 0 || len(extra) > 0 {
		status = model.ValidationInvalid
	}
	return &Result{
		Subject:          subject,
		Status:           status,
		MissingKeys:      missing,
		ExtraKeys:        extra,
		SnapshotID:       snapshotID,
		At:               c.now(),
		ExtractorVersion: c.version,
	}
}

// covered reports whether the template's stored audit was computed for the
// same dependency set, snapshot and extractor version.
func (c *Checker) covered(ft *model.FeedbackTemplate, snapshotID, hash string) bool {
	v := ft.Validation
	return v.Status != "" &&
		ft.RequiredKeysHash == hash &&
		v.ValidatedExtractionID == snapshotID &&
		v.ExtractorVersion == c.version
}

func storedResult(ft *model.FeedbackTemplate) *Result {
	v := ft.Validation
	res := &Result{
		Subject:          SubjectTemplate,
		Status:           v.Status,
		MissingKeys:      v.MissingKeys,
		ExtraKeys:        v.ExtraKeys,
		SnapshotID:       v.ValidatedExtractionID,
		ExtractorVersion: v.ExtractorVersion,
		RequiredKeys:     ft.RequiredVariableKeys,
		Skipped:          true,
	}
	if v.ValidatedAt != nil {
		res.At = *v.ValidatedAt
	}
	return res
}

func (r *Result) audit() model.ValidationAudit {
	at := r.At
	return model.ValidationAudit{
		Status:                r.Status,
		MissingKeys:           r.MissingKeys,
		ExtraKeys:             r.ExtraKeys,
		ValidatedExtractionID: r.SnapshotID,
		ValidatedAt:           &at,
		ExtractorVersion:      r.ExtractorVersion,
	}
}

func (c *Checker) logResult(studyID string, res *Result) {
	if res == nil {
		return
	}
	c.log.Info("consistency check",
		zap.String("study_id", studyID),
		zap.String("subject", string(res.Subject)),
		zap.String("snapshot_id", res.SnapshotID),
		zap.String("status", string(res.Status)),
		zap.Int("missing", len(res.MissingKeys)),
		zap.Int("extra", len(res.ExtraKeys)),
		zap.Bool("skipped", res.Skipped),
	)
}

// difference returns the sorted, de-duplicated members of a absent from b.
func difference(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, k := range b {
		in[k] = true
	}
	out := []string{}
	for _, k := range a {
		if !in[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return slices.Compact(out)
}

// requiredKeys maps template names to the snapshot keys carrying them. A
// name with no variable in the snapshot is kept as is.
func requiredKeys(names []string, vars []model.VariableRecord) []string {
	byName := make(map[string][]string, len(vars))
	for _, v := range vars {
		byName[v.VariableName] = append(byName[v.VariableName], v.VariableKey)
	}
	out := []string{}
	for _, n := range names {
		if keys, ok := byName[n]; ok {
			out = append(out, keys...)
		} else {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return slices.Compact(out)
}
