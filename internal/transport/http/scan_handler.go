package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"crunchcli/internal/config"
	"crunchcli/internal/dataprocessing"
	apierrors "crunchcli/internal/errors"
	"crunchcli/internal/files"
	"crunchcli/internal/validation"
	api "crunchcli/pkg/contracts/api/v1"
	"crunchcli/pkg/contracts/domain"
)

// ScanHandler lists the measurement files of a directory together with the
// measurement types found in each text file. It reads file heads only.
type ScanHandler struct {
	discovery    *files.Discovery
	validator    *validation.FileValidator
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewScanHandler creates a new scan handler. The scanned directory must lie
// inside dataRoot unless it is empty.
func NewScanHandler(errorHandler *apierrors.ErrorHandler, dataRoot string, logger *slog.Logger) *ScanHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScanHandler{
		discovery:    files.NewDiscovery("", config.ResultFileBase),
		validator:    validation.NewFileValidator(logger).WithRoot(dataRoot),
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "scan")),
	}
}

// Scan handles GET /api/v1/scan?dir=
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	req := api.ScanRequest{Dir: r.URL.Query().Get("dir")}
	if req.Dir == "" {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("dir", "dir is required"))
		return
	}
	dir, err := h.validator.Resolve(req.Dir)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if err := h.validator.ValidateInputDirectory(dir); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	found, err := h.discovery.FindMeasurementFiles(dir)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.NewStorageError("failed to list directory", err).
			WithContext("directory", dir))
		return
	}

	var textFiles []string
	for _, f := range found {
		if ioType, ok := dataprocessing.IOTypeFor(f.Path); ok && ioType == domain.IOTypeInput {
			textFiles = append(textFiles, f.Path)
		}
	}
	catalog, failed := dataprocessing.BuildCatalog(textFiles)
	for path, scanErr := range failed {
		h.logger.DebugContext(r.Context(), "scan failed",
			slog.String("file", path),
			slog.String("error", scanErr.Error()))
	}

	resp := api.ScanResponse{Dir: req.Dir, Files: make([]api.FileResponse, 0, len(found))}
	for _, f := range found {
		ioType, _ := dataprocessing.IOTypeFor(f.Path)
		file := api.FileResponse{Name: f.Name, IOType: string(ioType), Size: f.Size}
		if labels, ok := catalog[f.Path]; ok {
			file.Labels = labels.Sorted()
			file.Ambiguous = labels.Ambiguous()
		}
		resp.Files = append(resp.Files, file)
	}
	render.JSON(w, r, resp)
}
