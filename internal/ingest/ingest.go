// Package ingest handles upload intake for extraction requests.
// Each accepted file is spooled to a scoped temporary file that the caller
// removes via Discard on every exit path.
package ingest

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// AcceptedContentType is the single content type the service accepts.
const AcceptedContentType = "application/pdf"

// FileField is the multipart form field carrying the uploaded document.
const FileField = "file"

// Payload is the transport form of an uploaded document: its content type
// and base64-encoded bytes, ready for inclusion in a capability request.
type Payload struct {
	ContentType string
	Data        string
}

// Upload is one accepted file spooled to a temporary file.
// The Upload owns the temp file; callers must defer Discard.
type Upload struct {
	Filename    string
	Size        int64
	ContentType string
	PageCount   *int

	path string
}

// Receive extracts the single file field from the multipart request and
// spools it to a temporary file under dir (the system temp directory when
// dir is empty). The declared content type is not validated here; that is
// the pipeline's first state. A PDF that pdfcpu cannot read is rejected
// as invalid before it reaches the pipeline.
func Receive(r *http.Request, maxSize int64, dir string, logger *slog.Logger) (*Upload, error) {
	if err := r.ParseMultipartForm(maxSize); err != nil {
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, ErrNoFile
		}
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, ErrFileTooLarge
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	file, header, err := r.FormFile(FileField)
	if err != nil {
		return nil, ErrNoFile
	}
	defer file.Close()

	if header.Size > maxSize {
		return nil, ErrFileTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if int64(len(data)) > maxSize {
		return nil, ErrFileTooLarge
	}
	if len(data) == 0 {
		return nil, ErrNoFile
	}

	tmp, err := os.CreateTemp(dir, "report-*.upload")
	if err != nil {
		return nil, fmt.Errorf("spool upload: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("spool upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("spool upload: %w", err)
	}

	up := &Upload{
		Filename:    header.Filename,
		Size:        int64(len(data)),
		ContentType: detectContentType(header.Header.Get("Content-Type"), data),
		path:        tmp.Name(),
	}

	if up.ContentType == AcceptedContentType {
		pc, err := extractPDFPageCount(data)
		if err != nil {
			os.Remove(up.path)
			logger.Warn("unreadable pdf rejected", "filename", up.Filename, "error", err)
			return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
		}
		up.PageCount = pc
		logger.Info("upload accepted", "filename", up.Filename, "size", up.Size, "pages", *pc)
	}

	return up, nil
}

// Validate rejects any upload whose content type is not the single
// accepted document type.
func (u *Upload) Validate() error {
	if u.ContentType != AcceptedContentType {
		return ErrUnsupportedMedia
	}
	return nil
}

// Payload reads the spooled file and returns the base64-encoded transport
// form tagged with its content type.
func (u *Upload) Payload() (Payload, error) {
	data, err := os.ReadFile(u.path)
	if err != nil {
		return Payload{}, fmt.Errorf("read spooled upload: %w", err)
	}
	return Payload{
		ContentType: u.ContentType,
		Data:        base64.StdEncoding.EncodeToString(data),
	}, nil
}

// Path returns the location of the spooled temp file.
func (u *Upload) Path() string {
	return u.path
}

// Discard removes the spooled temp file. It is idempotent; a file already
// gone is not an error.
func (u *Upload) Discard() error {
	if err := os.Remove(u.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove spooled upload: %w", err)
	}
	return nil
}

func detectContentType(header string, data []byte) string {
	if header != "" && header != "application/octet-stream" {
		return header
	}
	return http.DetectContentType(data)
}

func extractPDFPageCount(data []byte) (*int, error) {
	count, err := api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return nil, err
	}
	return &count, nil
}
