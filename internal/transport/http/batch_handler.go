package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apierrors "crunchcli/internal/errors"
	"crunchcli/internal/exporter"
	"crunchcli/internal/middleware"
	"crunchcli/internal/operations"
	"crunchcli/internal/tolerance"
	"crunchcli/internal/validation"
	api "crunchcli/pkg/contracts/api/v1"
	"crunchcli/pkg/contracts/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// BatchQueue is the part of the job queue the batch endpoints use.
type BatchQueue interface {
	Enqueue(req operations.BatchRequest) (*operations.Job, error)
	GetJob(id string) (*operations.Job, error)
	ListJobs(filter operations.JobFilter) ([]*operations.Job, error)
	CancelJob(id string) error
}

// BatchHandler serves /api/v1/batches.
type BatchHandler struct {
	queue        BatchQueue
	validator    *middleware.RequestValidator
	query        *middleware.QueryParamValidator
	paths        *validation.FileValidator
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewBatchHandler creates a new batch handler. Directories and files named
// in a request must lie inside dataRoot unless it is empty.
func NewBatchHandler(queue BatchQueue, errorHandler *apierrors.ErrorHandler, dataRoot string, logger *slog.Logger) *BatchHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchHandler{
		queue:        queue,
		validator:    middleware.NewRequestValidator(logger),
		query:        middleware.NewQueryParamValidator(errorHandler),
		paths:        validation.NewFileValidator(logger).WithRoot(dataRoot),
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "batches")),
	}
}

// Routes returns a chi router for batch endpoints
func (h *BatchHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.CreateBatch)
	r.Get("/", h.ListBatches)
	r.Get("/{id}", h.GetBatch)
	r.Get("/{id}/results", h.GetResults)
	r.Delete("/{id}", h.CancelBatch)
	return r
}

// CreateBatch handles POST /api/v1/batches. The request is validated
// before it is queued, so a bad directory is a 400 rather than a failed batch.
func (h *BatchHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("batch-handler").Start(r.Context(), "batch_handler.create",
		trace.WithAttributes(attribute.String("request_id", middleware.GetRequestID(r.Context()))))
	defer span.End()

	var body api.CreateBatchRequest
	if err := h.validator.Decode(w, r, &body); err != nil {
		span.RecordError(err)
		h.errorHandler.HandleError(w, r, err)
		return
	}

	req := toBatchRequest(body)
	if err := h.resolvePaths(&req); err != nil {
		span.RecordError(err)
		h.errorHandler.HandleError(w, r, err)
		return
	}

	job, err := h.queue.Enqueue(req)
	if err != nil {
		span.RecordError(err)
		h.errorHandler.HandleError(w, r, err)
		return
	}
	span.SetAttributes(attribute.String("batch.id", job.ID))

	h.logger.InfoContext(ctx, "batch queued",
		slog.String("batch_id", job.ID),
		slog.String("input_dir", req.InputDir))

	w.Header().Set("Location", r.URL.Path+"/"+job.ID)
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, toBatchResponse(job))
}

// GetBatch handles GET /api/v1/batches/{id}
func (h *BatchHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	job, err := h.queue.GetJob(chi.URLParam(r, "id"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, toBatchResponse(job))
}

// GetResults handles GET /api/v1/batches/{id}/results. The table is only
// available for completed batches.
func (h *BatchHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := h.queue.GetJob(id)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if job.Status != operations.BatchStatusCompleted || job.Report == nil {
		h.errorHandler.HandleError(w, r, apierrors.NewConflictError("batch has no results").
			WithContext("batch_id", id).
			WithContext("status", string(job.Status)))
		return
	}
	table := exporter.ResultTable{Unit: job.Report.Unit, Rows: job.Report.Rows}
	render.JSON(w, r, table.JSON())
}

// ListBatches handles GET /api/v1/batches?status=&limit=
func (h *BatchHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	var req api.ListBatchesRequest
	var ok bool
	if req.Status, ok = h.query.ValidateEnum(w, r, "status", []string{
		string(operations.BatchStatusPending),
		string(operations.BatchStatusRunning),
		string(operations.BatchStatusCompleted),
		string(operations.BatchStatusFailed),
		string(operations.BatchStatusCancelled),
	}, ""); !ok {
		return
	}
	if req.Limit, ok = h.query.ValidateInt(w, r, "limit", 1, maxListLimit, defaultListLimit); !ok {
		return
	}

	jobs, err := h.queue.ListJobs(operations.JobFilter{
		Status: operations.BatchStatus(req.Status),
		Limit:  req.Limit,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	resp := api.BatchListResponse{Batches: make([]api.BatchResponse, 0, len(jobs)), Count: len(jobs)}
	for _, job := range jobs {
		resp.Batches = append(resp.Batches, toBatchResponse(job))
	}
	render.JSON(w, r, resp)
}

// CancelBatch handles DELETE /api/v1/batches/{id}
func (h *BatchHandler) CancelBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.queue.CancelJob(id); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "batch cancel requested", slog.String("batch_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// resolvePaths confines every path of req to the data root.
func (h *BatchHandler) resolvePaths(req *operations.BatchRequest) error {
	for _, p := range []*string{&req.InputDir, &req.OutputDir, &req.TolerancePath} {
		resolved, err := h.paths.Resolve(*p)
		if err != nil {
			return err
		}
		*p = resolved
	}
	return nil
}

func toBatchRequest(body api.CreateBatchRequest) operations.BatchRequest {
	req := operations.BatchRequest{
		InputDir:      body.InputDir,
		OutputDir:     body.OutputDir,
		Format:        body.Format,
		TolerancePath: body.ToleranceFile,
		Unit:          body.Unit,
		SkipExport:    body.SkipExport,
	}
	if len(body.Select) > 0 {
		req.Selections = make(domain.Selections, len(body.Select))
		for name, label := range body.Select {
			req.Selections[name] = label
		}
	}
	if doc := body.Tolerance; doc != nil {
		req.Tolerance = &tolerance.Document{
			Unit:           domain.Unit(doc.Unit),
			Configurations: make([]tolerance.Entry, 0, len(doc.Configurations)),
		}
		for _, e := range doc.Configurations {
			req.Tolerance.Configurations = append(req.Tolerance.Configurations, tolerance.Entry{
				TestValue:    e.TestValue,
				RangeSetting: e.RangeSetting,
				IOType:       domain.IOType(e.IOType),
				RangeInput:   e.RangeInput,
				Reference:    e.Reference,
				Tolerance:    e.Tolerance,
			})
		}
	}
	return req
}

func toBatchResponse(job *operations.Job) api.BatchResponse {
	resp := api.BatchResponse{
		ID:          job.ID,
		Status:      string(job.Status),
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		Error:       job.Error,
	}
	if snap := job.Snapshot; snap != nil {
		resp.Progress = snap.Progress
		resp.CurrentStep = snap.CurrentStep
		resp.Steps = make([]api.StepResponse, 0, len(snap.Steps))
		for _, st := range snap.Steps {
			resp.Steps = append(resp.Steps, api.StepResponse{
				ID:       st.ID,
				Name:     st.Name,
				Status:   st.Status,
				Progress: st.Progress,
				Message:  st.Message,
				Error:    st.Error,
			})
		}
	}
	if rep := job.Report; rep != nil {
		resp.Summary = &api.BatchSummary{
			Unit:       string(rep.Unit),
			OutputPath: rep.OutputPath,
			Rows:       rep.RowCount,
			Processed:  rep.Processed,
			Skipped:    rep.Skipped,
			Failed:     rep.Failed,
			Ambiguous:  rep.Ambiguous,
			DurationMS: rep.Duration().Milliseconds(),
		}
		if t := rep.Tolerance; t != nil {
			resp.Summary.Tolerance = &api.ToleranceSummary{
				Source:       t.Source,
				Matched:      t.Matched,
				Unmatched:    t.Unmatched,
				MeanPass:     t.MeanPass,
				TwoSigmaPass: t.TwoSigmaPass,
			}
		}
	}
	return resp
}
