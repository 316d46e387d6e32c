package http

import (
	"context"
	"io"
	"io/fs"
	"net/http"
	"os"
	"sync"
	"time"

	"board/internal/cache"
	"board/internal/core"
	applog "board/internal/log"
	"board/internal/middleware/ratelimit"
	"board/internal/middleware/security"
	"board/internal/middleware/trace"
	"board/internal/services"
)

// Banner is the body of GET / when no frontend build is served.
const Banner = "Server is running. Please access the appropriate endpoints."

// JobService is the job API the handlers drive.
type JobService interface {
	Ping(ctx context.Context) error
	ListJobs(ctx context.Context) ([]core.Job, error)
	GetJob(ctx context.Context, id string) (core.Job, error)
	CreateJob(ctx context.Context, j core.Job) (core.Job, error)
	UpdateJob(ctx context.Context, id string, p core.JobPatch) (core.Job, error)
	DeleteJob(ctx context.Context, id string) error

	AddToSchedule(ctx context.Context, jobNumber, date string) (core.Job, error)
	RemoveFromSchedule(ctx context.Context, jobNumber, date string) (core.Job, error)
	ToggleSchedule(ctx context.Context, jobNumber, date string) (services.ScheduleResult, error)
	ScheduleTestFit(ctx context.Context, jobNumber, date string) (services.ScheduleResult, error)

	Day(ctx context.Context, day core.Date) (core.DaySummary, error)
	Month(ctx context.Context, year int, month time.Month) (core.MonthSummary, error)

	StaleCutoff(days int) core.Date
	StaleJobs(ctx context.Context, days int) ([]core.Job, error)
	Cleanup(ctx context.Context, days int) (services.BulkResult, error)
	BulkDelete(ctx context.Context, ids []string) services.BulkResult
	Duplicates(ctx context.Context) ([]core.DuplicateGroup, error)
}

// Importer runs a batch import of one uploaded file.
type Importer interface {
	Import(ctx context.Context, name string, r io.Reader) (services.ImportResult, error)
}

// Options configures NewServer. Zero values select defaults.
type Options struct {
	StaticDir      string
	UploadMaxBytes int64
	RateLimit      int
	Logger         *applog.Logger
	Now            func() time.Time
}

type Server struct {
	http.Server

	jobs      JobService
	importer  Importer
	static    fs.FS
	uploadMax int64
	now       func() time.Time
	logger    *applog.Logger
	started   time.Time

	monthCache *cache.LRUCache[core.MonthSummary]
	caches     *cache.Manager

	// monthGen counts board writes; a month built across a write is not
	// cached.
	monthMu  sync.Mutex
	monthGen uint64

	tracer   *trace.Middleware
	limiter  *ratelimit.Limiter
	detector *security.Detector

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, jobs JobService, importer Importer, opts Options) *Server {
	if opts.UploadMaxBytes <= 0 {
		opts.UploadMaxBytes = 10 << 20
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = applog.Wrap(nil, applog.ComponentHTTP)
	}
	limitCfg := ratelimit.DefaultConfig()
	if opts.RateLimit > 0 {
		limitCfg.RequestsPerMinute = opts.RateLimit
	}

	s := &Server{
		jobs:       jobs,
		importer:   importer,
		uploadMax:  opts.UploadMaxBytes,
		now:        opts.Now,
		logger:     opts.Logger,
		started:    opts.Now(),
		monthCache: cache.NewLRUCache[core.MonthSummary](48, 5*time.Minute),
		caches:     cache.NewManager(),
		tracer:     trace.NewMiddleware(),
		limiter:    ratelimit.NewLimiter(limitCfg),
		detector:   security.NewDetector(),
	}
	if opts.StaticDir != "" {
		s.static = os.DirFS(opts.StaticDir)
	}
	s.caches.Register(s.monthCache)
	s.caches.StartCleanup(10 * time.Minute)

	mux := http.NewServeMux()
	s.routes(mux)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /jobdetails", s.handleListJobs)
	mux.HandleFunc("POST /jobdetails", s.writes(s.handleCreateJob))
	mux.HandleFunc("GET /jobdetails/stale", s.handleStaleJobs)
	mux.HandleFunc("GET /jobdetails/duplicates", s.handleDuplicates)
	mux.HandleFunc("POST /jobdetails/cleanup", s.writes(s.handleCleanup))
	mux.HandleFunc("POST /jobdetails/bulk-delete", s.writes(s.handleBulkDelete))
	mux.HandleFunc("GET /jobdetails/{id}", s.handleGetJob)
	mux.HandleFunc("PUT /jobdetails/{id}", s.writes(s.handleUpdateJob))
	mux.HandleFunc("DELETE /jobdetails/{id}", s.writes(s.handleDeleteJob))

	mux.HandleFunc("PUT /jobdetails/{jobNumber}/add-to-schedule", s.writes(s.handleAddToSchedule))
	mux.HandleFunc("PUT /jobdetails/{jobNumber}/remove-from-schedule", s.writes(s.handleRemoveFromSchedule))
	mux.HandleFunc("PUT /jobdetails/{jobNumber}/toggle-schedule", s.writes(s.handleToggleSchedule))
	mux.HandleFunc("PUT /jobdetails/{jobNumber}/schedule-test-fit", s.writes(s.handleScheduleTestFit))

	mux.HandleFunc("GET /calendar", s.handleMonth)
	mux.HandleFunc("GET /calendar/days/{date}", s.handleDay)

	mux.HandleFunc("POST /upload", s.writes(s.handleUpload))

	mux.Handle("GET /", s.indexHandler())
}

// middleware wraps h so that every response, rejected ones included, is
// traced and logged.
func (s *Server) middleware(h http.Handler) http.Handler {
	onLimit := func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later").Write(w)
	}
	h = s.limiter.Middleware(s.detector.ExtractClientIP, onLimit)(h)
	h = s.detector.Middleware(true)(h)
	h = security.CORS(security.DefaultCORSConfig())(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = applog.Middleware(s.logger, trace.RequestID, s.detector.ExtractClientIP)(h)
	return s.tracer.Middleware(h)
}

// writes marks a handler as mutating the board. Cached calendar months are
// dropped after it runs.
func (s *Server) writes(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		next(w, r)
		s.monthMu.Lock()
		s.monthGen++
		s.monthCache.Clear()
		s.monthMu.Unlock()
	}
}

func (s *Server) monthGeneration() uint64 {
	s.monthMu.Lock()
	defer s.monthMu.Unlock()
	return s.monthGen
}

// cacheMonth stores sum unless the board was written since gen.
func (s *Server) cacheMonth(key string, gen uint64, sum core.MonthSummary) {
	s.monthMu.Lock()
	defer s.monthMu.Unlock()
	if s.monthGen == gen {
		s.monthCache.Set(key, sum)
	}
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
