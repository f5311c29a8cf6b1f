package server

import (
	"encoding/base64"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/feedback-cli/internal/codebook"
	"github.com/sells-group/feedback-cli/internal/dsl"
	"github.com/sells-group/feedback-cli/internal/ingest"
	"github.com/sells-group/feedback-cli/internal/model"
)

// componentRequest is a component as sent over the wire. Binary payloads
// such as workbooks use content_base64.
type componentRequest struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Content       string `json:"content"`
	ContentBase64 string `json:"content_base64"`
	Charset       string `json:"charset"`
	ContentType   string `json:"content_type"`
	Sheet         string `json:"sheet"`
}

type resultRequest struct {
	ResultID   string             `json:"result_id"`
	Components []componentRequest `json:"components"`
}

func (rr resultRequest) components() ([]ingest.Component, error) {
	out := make([]ingest.Component, len(rr.Components))
	for i, c := range rr.Components {
		if c.Name == "" {
			return nil, eris.Errorf("component %d has no name", i)
		}
		content := []byte(c.Content)
		if c.ContentBase64 != "" {
			b, err := base64.StdEncoding.DecodeString(c.ContentBase64)
			if err != nil {
				return nil, eris.Errorf("component %q: invalid content_base64", c.Name)
			}
			content = b
		}
		out[i] = ingest.Component{
			ID:          c.ID,
			Name:        c.Name,
			Content:     content,
			Charset:     c.Charset,
			ContentType: c.ContentType,
			Sheet:       c.Sheet,
		}
	}
	return out, nil
}

func (s *Server) enrich(r *http.Request, rr resultRequest) (model.EnrichedResult, error) {
	comps, err := rr.components()
	if err != nil {
		return model.EnrichedResult{}, err
	}
	return ingest.Enrich(r.Context(), rr.ResultID, comps, s.concurrency)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createExtraction(w http.ResponseWriter, r *http.Request) {
	studyID := chi.URLParam(r, "studyID")

	var req struct {
		Results []resultRequest `json:"results"`
		resultRequest
	}
	if err := decode(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Components) > 0 {
		req.Results = append(req.Results, req.resultRequest)
	}
	if len(req.Results) == 0 {
		writeError(w, http.StatusBadRequest, "components are required")
		return
	}

	enriched := make([]model.EnrichedResult, 0, len(req.Results))
	for _, rr := range req.Results {
		res, err := s.enrich(r, rr)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		res.StudyID = studyID
		enriched = append(enriched, res)
	}

	ex, err := s.ingest.Extract(r.Context(), studyID, enriched...)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ex)
}

func (s *Server) latestSnapshot(w http.ResponseWriter, r *http.Request) {
	studyID := chi.URLParam(r, "studyID")
	snap, err := s.store.LatestSnapshot(r.Context(), studyID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "no extraction snapshot for study "+studyID)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) snapshotVariables(w http.ResponseWriter, r *http.Request) {
	snapshotID := chi.URLParam(r, "snapshotID")
	snap, err := s.store.GetSnapshot(r.Context(), snapshotID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "snapshot not found: "+snapshotID)
		return
	}
	vars, err := s.store.GetVariablesBySnapshot(r.Context(), snapshotID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshot": snap, "variables": vars})
}

func (s *Server) getTemplate(w http.ResponseWriter, r *http.Request) {
	studyID := chi.URLParam(r, "studyID")
	ft, err := s.store.GetFeedbackTemplate(r.Context(), studyID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if ft == nil {
		writeError(w, http.StatusNotFound, "no feedback template for study "+studyID)
		return
	}
	writeJSON(w, http.StatusOK, ft)
}

func (s *Server) putTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := decode(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ft, err := s.store.SaveFeedbackTemplate(r.Context(), chi.URLParam(r, "studyID"), req.Content)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ft)
}

// validateTemplate gives live DSL feedback. Names come from the request's
// variables, else the given snapshot, else the study's latest snapshot.
func (s *Server) validateTemplate(w http.ResponseWriter, r *http.Request) {
	studyID := chi.URLParam(r, "studyID")

	var req struct {
		Content    string   `json:"content"`
		Variables  []string `json:"variables"`
		SnapshotID string   `json:"snapshot_id"`
	}
	if err := decode(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	names := dsl.NewNameSet(req.Variables...)
	snapshotID := req.SnapshotID
	if req.Variables == nil {
		if snapshotID == "" {
			snap, err := s.store.LatestSnapshot(r.Context(), studyID)
			if err != nil {
				s.internalError(w, r, err)
				return
			}
			if snap != nil {
				snapshotID = snap.ID
			}
		}
		if snapshotID != "" {
			vars, err := s.store.GetVariablesBySnapshot(r.Context(), snapshotID)
			if err != nil {
				s.internalError(w, r, err)
				return
			}
			names = dsl.NamesFromVariables(vars)
		}
	}

	res := dsl.Validate(req.Content, names, s.dslOpts)
	writeJSON(w, http.StatusOK, map[string]any{
		"is_valid":           res.Valid,
		"diagnostics":        res.Diagnostics,
		"required_variables": dsl.RequiredVariableNames(req.Content),
		"snapshot_id":        snapshotID,
	})
}

func (s *Server) getCodebook(w http.ResponseWriter, r *http.Request) {
	studyID := chi.URLParam(r, "studyID")
	cb, err := s.store.GetCodebook(r.Context(), studyID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if cb == nil {
		writeError(w, http.StatusNotFound, "no codebook for study "+studyID)
		return
	}
	writeJSON(w, http.StatusOK, cb)
}

// putCodebook accepts the YAML codebook layout; JSON bodies parse the same
// way.
func (s *Server) putCodebook(w http.ResponseWriter, r *http.Request) {
	entries, err := codebook.LoadYAML(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cb, err := s.store.SaveCodebook(r.Context(), chi.URLParam(r, "studyID"), entries)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cb)
}

func (s *Server) checkConsistency(w http.ResponseWriter, r *http.Request) {
	studyID := chi.URLParam(r, "studyID")

	var req struct {
		SnapshotID string `json:"snapshot_id"`
	}
	if err := decode(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snapshotID := req.SnapshotID
	if snapshotID == "" {
		snap, err := s.store.LatestSnapshot(r.Context(), studyID)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if snap == nil {
			writeError(w, http.StatusNotFound, "no extraction snapshot for study "+studyID)
			return
		}
		snapshotID = snap.ID
	} else {
		snap, err := s.store.GetSnapshot(r.Context(), snapshotID)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if snap == nil || snap.StudyID != studyID {
			writeError(w, http.StatusNotFound, "snapshot not found: "+snapshotID)
			return
		}
	}

	report, err := s.checker.CheckSnapshot(r.Context(), studyID, snapshotID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) renderFeedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Template string          `json:"template"`
		Results  []resultRequest `json:"results"`
	}
	if err := decode(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	enriched := make([]model.EnrichedResult, len(req.Results))
	for i, rr := range req.Results {
		res, err := s.enrich(r, rr)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		enriched[i] = res
	}

	out, err := s.renderer.Batch(r.Context(), req.Template, enriched, s.concurrency)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}
