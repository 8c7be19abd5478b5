package httpadapter

import (
    "context"
    "encoding/json"
    "net/http"
    "sync"
    "time"

    "github.com/cockroachdb/errors"
    "github.com/go-chi/chi/v5"
    "github.com/go-chi/chi/v5/middleware"
    "github.com/oapi-codegen/runtime"
    "go.uber.org/zap"

    "orderbridge/internal/domain"
    "orderbridge/internal/ports"
    "orderbridge/internal/services/imports"
    "orderbridge/internal/workers/importrunner"
)

const (
    defaultWaitTimeout = 30
    maxWaitTimeout     = 600
)

// Server exposes import jobs over HTTP.
type Server struct {
    imports   ports.Imports
    jobs      ports.JobRepository
    processor importrunner.Processor
    log       *zap.SugaredLogger

    // inline runs outlive their request; only Close stops them
    runCtx  context.Context
    stopRun context.CancelFunc
    running sync.WaitGroup
}

func New(imports ports.Imports, jobs ports.JobRepository, processor importrunner.Processor, log *zap.SugaredLogger) *Server {
    runCtx, stop := context.WithCancel(context.Background())
    return &Server{imports: imports, jobs: jobs, processor: processor, log: log, runCtx: runCtx, stopRun: stop}
}

// Close cancels inline runs still in progress and waits for them to record
// their outcome.
func (s *Server) Close() {
    s.stopRun()
    s.running.Wait()
}

// Routes returns a chi.Router with every handler mounted.
func (s *Server) Routes() chi.Router {
    r := chi.NewRouter()
    r.Use(middleware.RequestID, middleware.RealIP, s.requestLog, middleware.Recoverer)
    r.Get("/healthz", s.getHealthz)
    r.Post("/imports", s.postImports)
    r.Get("/imports/{id}", s.getImportsID)
    return r
}

type HealthResponse struct {
    Status string `json:"status"`
}

type ImportRequest struct {
    SourceRecordID string `json:"sourceRecordId"`
}

type ImportAcceptedResponse struct {
    ImportID string `json:"importId"`
}

type ImportResponse struct {
    ID             string               `json:"id"`
    SourceRecordID string               `json:"sourceRecordId"`
    Status         domain.ImportStatus  `json:"status"`
    Progress       float32              `json:"progress"`
    Stage          string               `json:"stage,omitempty"`
    Error          string               `json:"error,omitempty"`
    Report         *domain.ImportReport `json:"report,omitempty"`
    QueuedAt       time.Time            `json:"queuedAt"`
    StartedAt      *time.Time           `json:"startedAt,omitempty"`
    FinishedAt     *time.Time           `json:"finishedAt,omitempty"`
}

type ErrorResponse struct {
    Error string `json:"error"`
}

type postImportsParams struct {
    Wait    *bool
    Timeout *int
}

func (s *Server) getHealthz(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) postImports(w http.ResponseWriter, r *http.Request) {
    var params postImportsParams
    q := r.URL.Query()
    if err := runtime.BindQueryParameter("form", true, false, "wait", q, &params.Wait); err != nil {
        writeError(w, http.StatusBadRequest, errors.Wrap(err, "invalid wait parameter"))
        return
    }
    if err := runtime.BindQueryParameter("form", true, false, "timeout", q, &params.Timeout); err != nil {
        writeError(w, http.StatusBadRequest, errors.Wrap(err, "invalid timeout parameter"))
        return
    }
    var body ImportRequest
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
        writeError(w, http.StatusBadRequest, errors.Wrap(err, "invalid body"))
        return
    }

    ctx := r.Context()
    id, err := s.imports.Enqueue(ctx, body.SourceRecordID)
    if errors.Is(err, imports.ErrInvalidRecordID) {
        writeError(w, http.StatusBadRequest, err)
        return
    }
    if err != nil {
        s.internalError(w, err)
        return
    }

    // Blocking path for scripts and tests
    if params.Wait == nil || !*params.Wait {
        writeJSON(w, http.StatusAccepted, ImportAcceptedResponse{ImportID: id})
        return
    }
    timeout := defaultWaitTimeout
    if params.Timeout != nil && *params.Timeout > 0 {
        timeout = min(*params.Timeout, maxWaitTimeout)
    }
    done := s.runInline(id)
    timer := time.NewTimer(time.Duration(timeout) * time.Second)
    defer timer.Stop()
    var runErr error
    select {
    case runErr = <-done:
    case <-timer.C:
        // the run goes on; the caller polls GET /imports/{id}
        s.log.Infow("import still running after wait timeout", "import_id", id, "timeout_s", timeout)
        writeJSON(w, http.StatusAccepted, ImportAcceptedResponse{ImportID: id})
        return
    case <-ctx.Done():
        return
    }

    imp, err := s.imports.Status(ctx, id)
    if err != nil {
        s.internalError(w, err)
        return
    }
    if imp.Status != domain.ImportCompleted && imp.Status != domain.ImportFailed {
        // claimed by a worker before the inline run could start it
        s.log.Infow("import still running", "import_id", id, "error", runErr)
        writeJSON(w, http.StatusAccepted, ImportAcceptedResponse{ImportID: id})
        return
    }
    writeJSON(w, http.StatusOK, toResponse(imp))
}

// runInline processes the import on the server's run context, so neither the
// wait timeout nor a disconnecting client cuts the pipeline short.
func (s *Server) runInline(id string) <-chan error {
    done := make(chan error, 1)
    s.running.Add(1)
    go func() {
        defer s.running.Done()
        err := importrunner.ProcessInline(s.runCtx, s.jobs, s.processor, id)
        if err != nil {
            s.log.Warnw("inline import failed", "import_id", id, "error", err)
        }
        done <- err
    }()
    return done
}

func (s *Server) getImportsID(w http.ResponseWriter, r *http.Request) {
    var id string
    err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
        runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
    if err != nil {
        writeError(w, http.StatusBadRequest, errors.Wrap(err, "invalid id"))
        return
    }
    imp, err := s.imports.Status(r.Context(), id)
    if errors.Is(err, ports.ErrNotFound) {
        writeError(w, http.StatusNotFound, errors.Newf("import %s not found", id))
        return
    }
    if err != nil {
        s.internalError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, toResponse(imp))
}

func toResponse(imp domain.Import) ImportResponse {
    return ImportResponse{
        ID:             imp.ID,
        SourceRecordID: imp.SourceRecordID,
        Status:         imp.Status,
        Progress:       float32(imp.Progress),
        Stage:          imp.Stage,
        Error:          imp.Error,
        Report:         imp.Report,
        QueuedAt:       imp.QueuedAt,
        StartedAt:      imp.StartedAt,
        FinishedAt:     imp.FinishedAt,
    }
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
    if err == nil {
        err = errors.New("import did not finish")
    }
    s.log.Errorw("request failed", "error", err)
    writeError(w, http.StatusInternalServerError, err)
}

func (s *Server) requestLog(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
        start := time.Now()
        next.ServeHTTP(ww, r)
        s.log.Infow("http request",
            "method", r.Method,
            "path", r.URL.Path,
            "status", ww.Status(),
            "bytes", ww.BytesWritten(),
            "duration", time.Since(start),
            "request_id", middleware.GetReqID(r.Context()))
    })
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
    writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
