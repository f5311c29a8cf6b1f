package server

import (
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// internalError logs err and answers 500 without leaking details.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("request failed",
		zap.String("uri", r.URL.RequestURI()),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// decode reads a JSON body into dst. An empty body leaves dst untouched
// when optional is set.
func decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return eris.Wrap(err, "read body")
	}
	if len(body) == 0 {
		if optional {
			return nil
		}
		return eris.New("request body is required")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return eris.New("invalid request body")
	}
	return nil
}
