// Package api serves the scrape core over HTTP: declared scrapers, single
// application fetches and on-demand gather ticks.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/law-makers/plancrawl/internal/adapter"
	"github.com/law-makers/plancrawl/internal/failure"
	"github.com/law-makers/plancrawl/internal/gather"
	urlutil "github.com/law-makers/plancrawl/internal/utils/url"
	"github.com/law-makers/plancrawl/pkg/models"
)

// Backend is what the API serves.
type Backend interface {
	Scrapers() []*adapter.Config
	Scraper(name string) (*adapter.Config, error)
	Cursor(ctx context.Context, authority string) (*models.Cursor, error)
	Fetch(ctx context.Context, authority string, id models.Identifier) (models.Record, error)
	Gather(ctx context.Context, authority string, sink gather.Sink, opts gather.Options) (*gather.Report, error)
}

// Server routes HTTP requests to a Backend.
type Server struct {
	backend Backend
	now     func() time.Time
	log     zerolog.Logger
}

// New returns a Server for b.
func New(b Backend) *Server {
	return &Server{backend: b, now: time.Now, log: log.With().Str("component", "api").Logger()}
}

// Routes mounts the API on a chi router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.healthz)
	r.Route("/scrapers", func(r chi.Router) {
		r.Get("/", s.listScrapers)
		r.Route("/{authority}", func(r chi.Router) {
			r.Get("/", s.getScraper)
			r.Get("/applications", s.getApplication)
			r.Get("/applications/*", s.getApplication)
			r.Post("/gather", s.postGather)
		})
	})
	return r
}

// Scraper is the public summary of a declaration.
type Scraper struct {
	Authority       string         `json:"authority"`
	Family          string         `json:"family"`
	Kind            string         `json:"kind"`
	BaseURL         string         `json:"base_url"`
	Disabled        bool           `json:"disabled,omitempty"`
	Blackout        string         `json:"blackout,omitempty"`
	CanRun          bool           `json:"can_run"`
	BatchSize       int            `json:"batch_size"`
	CurrentSpan     int            `json:"current_span"`
	MinIDGoal       int            `json:"min_id_goal"`
	DataStartTarget string         `json:"data_start_target,omitempty"`
	Fixtures        int            `json:"fixtures"`
	Cursor          *models.Cursor `json:"cursor,omitempty"`
}

// GatherResponse reports one tick run through the API.
type GatherResponse struct {
	Authority string               `json:"authority"`
	RunID     string               `json:"run_id"`
	Records   int                  `json:"records"`
	Forward   int                  `json:"forward"`
	Backward  int                  `json:"backward"`
	Steps     int                  `json:"steps"`
	Repeats   int                  `json:"repeats,omitempty"`
	Skipped   map[failure.Kind]int `json:"skipped,omitempty"`
	Windows   map[failure.Kind]int `json:"windows,omitempty"`
	Kind      failure.Kind         `json:"kind,omitempty"`
	Error     string               `json:"error,omitempty"`
	Cursor    models.Cursor        `json:"cursor"`
	Elapsed   string               `json:"elapsed"`
	Items     []models.Record      `json:"items,omitempty"`
}

type errorBody struct {
	Error string       `json:"error"`
	Kind  failure.Kind `json:"kind,omitempty"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listScrapers(w http.ResponseWriter, _ *http.Request) {
	cfgs := s.backend.Scrapers()
	out := make([]Scraper, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, s.summary(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getScraper(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.backend.Scraper(chi.URLParam(r, "authority"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := s.summary(cfg)
	c, err := s.backend.Cursor(r.Context(), cfg.Authority)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out.Cursor = c
	writeJSON(w, http.StatusOK, out)
}

// getApplication fetches one application by the uid in the path, or by
// the url query parameter.
func (s *Server) getApplication(w http.ResponseWriter, r *http.Request) {
	authority := chi.URLParam(r, "authority")
	uid, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad uid: " + err.Error()})
		return
	}
	id := models.Identifier{UID: uid, URL: r.URL.Query().Get("url")}
	if id.UID == "" && id.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "uid or url required"})
		return
	}
	if id.URL != "" {
		if err := urlutil.ValidateURL(id.URL); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
	}
	rec, err := s.backend.Fetch(r.Context(), authority, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// postGather runs one tick. Query parameters: goal overrides the
// records-per-tick goal; records=true returns the records with the report.
func (s *Server) postGather(w http.ResponseWriter, r *http.Request) {
	authority := chi.URLParam(r, "authority")
	var opts gather.Options
	if v := r.URL.Query().Get("goal"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "goal must be a positive integer"})
			return
		}
		opts.MinIDGoal = n
	}
	withRecords, _ := strconv.ParseBool(r.URL.Query().Get("records"))

	sink := &gather.Memory{}
	rep, err := s.backend.Gather(r.Context(), authority, sink, opts)
	if rep == nil {
		s.writeError(w, r, err)
		return
	}
	resp := GatherResponse{
		Authority: rep.Authority,
		RunID:     rep.RunID,
		Records:   rep.Records,
		Forward:   rep.Forward,
		Backward:  rep.Backward,
		Steps:     rep.Steps,
		Repeats:   rep.Repeats,
		Skipped:   rep.Skipped,
		Windows:   rep.Windows,
		Kind:      rep.Kind,
		Cursor:    rep.Cursor,
		Elapsed:   rep.Elapsed.Round(time.Millisecond).String(),
	}
	if withRecords {
		resp.Items = sink.Records()
	}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = statusOf(err)
	}
	writeJSON(w, status, resp)
}

func (s *Server) summary(c *adapter.Config) Scraper {
	out := Scraper{
		Authority:       c.Authority,
		Family:          string(c.Family),
		Kind:            string(c.Kind),
		BaseURL:         c.BaseURL,
		Disabled:        c.Disabled,
		CanRun:          c.Blackout == nil || !c.Blackout.Active(s.now()),
		BatchSize:       c.BatchSize,
		CurrentSpan:     c.CurrentSpan,
		MinIDGoal:       c.MinIDGoal,
		DataStartTarget: c.DataStartTarget,
		Fixtures:        len(c.DetailTests) + len(c.BatchTests),
	}
	if c.Blackout != nil {
		out.Blackout = c.Blackout.String()
	}
	return out
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.Warn().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: failure.KindOf(err)})
}

// statusOf maps failures to HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, adapter.ErrUnknownAuthority):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	switch failure.KindOf(err) {
	case failure.KindNoData:
		return http.StatusNotFound
	case failure.KindInvalidFormat:
		return http.StatusUnprocessableEntity
	case failure.KindBlackout:
		return http.StatusServiceUnavailable
	case failure.KindTransport:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("Request served")
	})
}
