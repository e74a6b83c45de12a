package extract

import (
	"log/slog"
	"net/http"

	"github.com/medx/lab-extractor/internal/config"
	"github.com/medx/lab-extractor/internal/ingest"
	"github.com/medx/lab-extractor/internal/reports"
	"github.com/medx/lab-extractor/pkg/handlers"
)

// IdentityHeader carries the opaque client-generated identifier.
const IdentityHeader = "X-User-Id"

// Handler provides the extraction HTTP endpoint.
type Handler struct {
	pipeline      *Pipeline
	logger        *slog.Logger
	maxUploadSize int64
	tempDir       string
}

// NewHandler creates an extraction handler.
func NewHandler(pipeline *Pipeline, uploads *config.UploadsConfig, logger *slog.Logger) *Handler {
	return &Handler{
		pipeline:      pipeline,
		logger:        logger.With("handler", "extract"),
		maxUploadSize: uploads.MaxUploadSizeBytes(),
		tempDir:       uploads.TempDir,
	}
}

// Extract serves POST /api/extract: one multipart PDF plus optional
// age/gender/conditions fields and the optional identity header. The
// spooled temp file is removed on every exit path.
func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) {
	up, err := ingest.Receive(r, h.maxUploadSize, h.tempDir, h.logger)
	if err != nil {
		handlers.RespondError(w, h.logger, ingest.MapHTTPStatus(err), err)
		return
	}
	defer func() {
		if err := up.Discard(); err != nil {
			h.logger.Warn("upload cleanup failed", "path", up.Path(), "error", err)
		}
	}()

	userID := r.Header.Get(IdentityHeader)
	meta := reports.Metadata{
		Age:        formValue(r, "age"),
		Gender:     formValue(r, "gender"),
		Conditions: formValue(r, "conditions"),
		FileName:   up.Filename,
		FileSize:   up.Size,
	}

	result, err := h.pipeline.Run(r.Context(), up, userID, meta)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondData(w, http.StatusOK, result)
}

func formValue(r *http.Request, field string) *string {
	if v := r.FormValue(field); v != "" {
		return &v
	}
	return nil
}
