// Package server exposes extraction, validation, consistency and rendering
// over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/feedback-cli/internal/consistency"
	"github.com/sells-group/feedback-cli/internal/dsl"
	"github.com/sells-group/feedback-cli/internal/ingest"
	"github.com/sells-group/feedback-cli/internal/render"
	"github.com/sells-group/feedback-cli/internal/store"
)

// maxBodyBytes bounds request bodies, which may carry whole component blobs.
const maxBodyBytes = 32 << 20

// Options configures a Server.
type Options struct {
	RateLimit        float64
	RateBurst        int
	CORSOrigins      []string
	ExtractorVersion string
	MaxExamples      int
	Concurrency      int
	DSL              dsl.Options
	Render           render.Options
}

// Server holds the services behind the HTTP API.
type Server struct {
	store       store.Store
	ingest      *ingest.Service
	checker     *consistency.Checker
	renderer    *render.Renderer
	dslOpts     dsl.Options
	concurrency int
	limiter     *rate.Limiter
	origins     []string
	log         *zap.Logger
}

// New wires a Server over st.
func New(st store.Store, opts Options) *Server {
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{
		store:       st,
		ingest:      ingest.NewService(st, opts.ExtractorVersion, opts.MaxExamples),
		checker:     consistency.New(st, opts.ExtractorVersion),
		renderer:    render.New(opts.Render),
		dslOpts:     opts.DSL,
		concurrency: opts.Concurrency,
		limiter:     rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		origins:     origins,
		log:         zap.L().With(zap.String("component", "server")),
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         3600,
	}))

	r.Get("/health", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/studies/{studyID}", func(r chi.Router) {
			r.Post("/extractions", s.createExtraction)
			r.Get("/snapshots/latest", s.latestSnapshot)
			r.Get("/template", s.getTemplate)
			r.Put("/template", s.putTemplate)
			r.With(s.rateLimit).Post("/template/validate", s.validateTemplate)
			r.Get("/codebook", s.getCodebook)
			r.Put("/codebook", s.putCodebook)
			r.Post("/consistency", s.checkConsistency)
		})
		r.Get("/snapshots/{snapshotID}/variables", s.snapshotVariables)
		r.Post("/render", s.renderFeedback)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("uri", r.URL.RequestURI()),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
