package extract_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medx/lab-extractor/internal/extract"
	"github.com/medx/lab-extractor/internal/ingest"
	"github.com/medx/lab-extractor/internal/reports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newUpload(t *testing.T, filename, contentType string, data []byte) *ingest.Upload {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/extract", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	up, err := ingest.Receive(req, 1<<20, t.TempDir(), discardLogger())
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	t.Cleanup(func() { up.Discard() })

	return up
}

func pdfUpload(t *testing.T) *ingest.Upload {
	t.Helper()
	return newUpload(t, "report.pdf", "application/pdf", minimalPDF())
}

// minimalPDF builds a one-page PDF with a correct xref table; intake
// rejects anything the page-count probe cannot read.
func minimalPDF() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	objects := []string{
		"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n",
		"2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n",
		"3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>\nendobj\n",
	}

	offsets := make([]int, 0, len(objects))
	for _, obj := range objects {
		offsets = append(offsets, buf.Len())
		buf.WriteString(obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	return buf.Bytes()
}

type step struct {
	result *extract.Result
	err    error
}

type fakeCapability struct {
	mu       sync.Mutex
	steps    []step
	calls    []string
	relevant bool
	relErr   error
}

func (f *fakeCapability) Extract(ctx context.Context, model string, doc ingest.Payload) (*extract.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := len(f.calls)
	f.calls = append(f.calls, model)
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	s := f.steps[i]
	return s.result, s.err
}

func (f *fakeCapability) CheckRelevance(ctx context.Context, model string, doc ingest.Payload) (bool, error) {
	return f.relevant, f.relErr
}

func (f *fakeCapability) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeStore struct {
	mu      sync.Mutex
	fail    bool
	appends int
	users   []string
}

func (f *fakeStore) Append(ctx context.Context, userID string, results any, meta reports.Metadata) (*reports.StoredReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.appends++
	f.users = append(f.users, userID)
	if f.fail {
		return nil, errors.New("storage offline")
	}
	return &reports.StoredReport{ID: uuid.New(), CreatedAt: time.Now()}, nil
}

func (f *fakeStore) History(ctx context.Context, userID string) ([]reports.StoredReport, error) {
	return nil, reports.ErrNoHistory
}

func mustSchema(t *testing.T, version int) *extract.Schema {
	t.Helper()
	schema, err := extract.SchemaVersion(version)
	if err != nil {
		t.Fatalf("SchemaVersion(%d) error = %v", version, err)
	}
	return schema
}

func newPipeline(t *testing.T, capability extract.Capability, store reports.System, opts extract.Options) *extract.Pipeline {
	t.Helper()
	if opts.Models == nil {
		opts.Models = []string{"model-a"}
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.Sleep == nil {
		opts.Sleep = func(context.Context, time.Duration) {}
	}
	return extract.NewPipeline(capability, store, mustSchema(t, 1), discardLogger(), opts)
}

func okResult(items ...extract.LineItem) *extract.Result {
	return &extract.Result{Results: items}
}

func TestRun_NormalizesMissingFields(t *testing.T) {
	capability := &fakeCapability{steps: []step{
		{result: okResult(
			extract.LineItem{Heading: "HEMATOLOGY", TestName: "Hemoglobin", Result: "13.5"},
			extract.LineItem{TestName: "WBC", Result: "7.2", Unit: "10^3/uL"},
		)},
	}}

	p := newPipeline(t, capability, nil, extract.Options{})

	result, err := p.Run(context.Background(), pdfUpload(t), "", reports.Metadata{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for i, item := range result.Results {
		for name, v := range map[string]string{
			"heading":   item.Heading,
			"test_name": item.TestName,
			"result":    item.Result,
			"unit":      item.Unit,
		} {
			if v == "" {
				t.Errorf("item %d: %s is empty, want %q", i, name, extract.NotAvailable)
			}
		}
	}

	if result.Results[0].Unit != extract.NotAvailable {
		t.Errorf("Unit = %q, want %q", result.Results[0].Unit, extract.NotAvailable)
	}
	if result.Results[1].Heading != extract.NotAvailable {
		t.Errorf("Heading = %q, want %q", result.Results[1].Heading, extract.NotAvailable)
	}
}

func TestRun_EmptyResultsRejected(t *testing.T) {
	capability := &fakeCapability{steps: []step{{result: okResult()}}}

	p := newPipeline(t, capability, nil, extract.Options{})

	_, err := p.Run(context.Background(), pdfUpload(t), "", reports.Metadata{})
	if !errors.Is(err, extract.ErrNotLabReport) {
		t.Fatalf("Run() error = %v, want ErrNotLabReport", err)
	}

	if status := extract.MapHTTPStatus(err); status != http.StatusUnsupportedMediaType {
		t.Errorf("MapHTTPStatus() = %d, want %d", status, http.StatusUnsupportedMediaType)
	}
}

func TestRun_NonPDFShortCircuits(t *testing.T) {
	capability := &fakeCapability{steps: []step{{result: okResult()}}}

	p := newPipeline(t, capability, nil, extract.Options{})

	up := newUpload(t, "notes.txt", "text/plain", []byte("not a pdf"))
	_, err := p.Run(context.Background(), up, "", reports.Metadata{})

	if !errors.Is(err, ingest.ErrUnsupportedMedia) {
		t.Fatalf("Run() error = %v, want ErrUnsupportedMedia", err)
	}
	if status := extract.MapHTTPStatus(err); status != http.StatusUnsupportedMediaType {
		t.Errorf("MapHTTPStatus() = %d, want %d", status, http.StatusUnsupportedMediaType)
	}
	if n := capability.callCount(); n != 0 {
		t.Errorf("capability called %d times, want 0", n)
	}
}

func TestRun_RetriesTransientWithLinearBackoff(t *testing.T) {
	capability := &fakeCapability{steps: []step{
		{err: extract.ErrUnavailable},
		{err: extract.ErrUnavailable},
		{result: okResult(extract.LineItem{Heading: "H", TestName: "T", Result: "1", Unit: "U"})},
	}}

	base := 10 * time.Millisecond
	var delays []time.Duration

	p := newPipeline(t, capability, nil, extract.Options{
		Models:      []string{"model-a"},
		MaxAttempts: 3,
		BaseDelay:   base,
		Sleep: func(_ context.Context, d time.Duration) {
			delays = append(delays, d)
		},
	})

	result, err := p.Run(context.Background(), pdfUpload(t), "", reports.Metadata{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Results) != 1 {
		t.Fatalf("got %d line items, want 1", len(result.Results))
	}

	if n := capability.callCount(); n != 3 {
		t.Errorf("capability called %d times, want 3", n)
	}

	want := []time.Duration{1 * base, 2 * base}
	if len(delays) != len(want) {
		t.Fatalf("recorded %d delays, want %d", len(delays), len(want))
	}
	for i := range want {
		if delays[i] < want[i] {
			t.Errorf("delay %d = %v, want >= %v", i, delays[i], want[i])
		}
	}
}

func TestRun_QuotaEscalatesWithoutRetry(t *testing.T) {
	capability := &fakeCapability{steps: []step{
		{err: extract.ErrQuotaExceeded},
		{result: okResult(extract.LineItem{Heading: "H", TestName: "T", Result: "1", Unit: "U"})},
	}}

	p := newPipeline(t, capability, nil, extract.Options{
		Models:      []string{"model-a", "model-b"},
		MaxAttempts: 3,
	})

	result, err := p.Run(context.Background(), pdfUpload(t), "", reports.Metadata{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Results) != 1 {
		t.Fatalf("got %d line items, want 1", len(result.Results))
	}

	capability.mu.Lock()
	calls := append([]string(nil), capability.calls...)
	capability.mu.Unlock()

	want := []string{"model-a", "model-b"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestRun_PersistenceFailureStillSucceeds(t *testing.T) {
	capability := &fakeCapability{steps: []step{
		{result: okResult(extract.LineItem{Heading: "H", TestName: "T", Result: "1", Unit: "U"})},
	}}
	store := &fakeStore{fail: true}

	p := newPipeline(t, capability, store, extract.Options{})

	result, err := p.Run(context.Background(), pdfUpload(t), "user-123", reports.Metadata{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Results) != 1 {
		t.Fatalf("got %d line items, want 1", len(result.Results))
	}
	if store.appends != 1 {
		t.Errorf("store.Append called %d times, want 1", store.appends)
	}
}

func TestRun_NoIdentitySkipsPersistence(t *testing.T) {
	capability := &fakeCapability{steps: []step{
		{result: okResult(extract.LineItem{Heading: "H", TestName: "T", Result: "1", Unit: "U"})},
	}}
	store := &fakeStore{}

	p := newPipeline(t, capability, store, extract.Options{})

	if _, err := p.Run(context.Background(), pdfUpload(t), "", reports.Metadata{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if store.appends != 0 {
		t.Errorf("store.Append called %d times, want 0", store.appends)
	}
}

func TestRun_ExhaustionReturnsServerError(t *testing.T) {
	capability := &fakeCapability{steps: []step{
		{err: errors.New("gemini status 400: bad request")},
	}}

	p := newPipeline(t, capability, nil, extract.Options{
		Models:      []string{"model-a", "model-b"},
		MaxAttempts: 3,
	})

	_, err := p.Run(context.Background(), pdfUpload(t), "", reports.Metadata{})
	if !errors.Is(err, extract.ErrExhausted) {
		t.Fatalf("Run() error = %v, want ErrExhausted", err)
	}

	if status := extract.MapHTTPStatus(err); status != http.StatusInternalServerError {
		t.Errorf("MapHTTPStatus() = %d, want %d", status, http.StatusInternalServerError)
	}

	// Non-transient errors escalate without retrying.
	if n := capability.callCount(); n != 2 {
		t.Errorf("capability called %d times, want 2", n)
	}
}

func TestRun_RelevanceCheckRejects(t *testing.T) {
	capability := &fakeCapability{
		steps:    []step{{result: okResult(extract.LineItem{Heading: "H", TestName: "T", Result: "1", Unit: "U"})}},
		relevant: false,
	}

	p := newPipeline(t, capability, nil, extract.Options{RelevanceCheck: true})

	_, err := p.Run(context.Background(), pdfUpload(t), "", reports.Metadata{})
	if !errors.Is(err, extract.ErrNotLabReport) {
		t.Fatalf("Run() error = %v, want ErrNotLabReport", err)
	}
	if n := capability.callCount(); n != 0 {
		t.Errorf("Extract called %d times, want 0", n)
	}
}

func TestRun_RelevanceCheckPermissiveOnFailure(t *testing.T) {
	capability := &fakeCapability{
		steps:    []step{{result: okResult(extract.LineItem{Heading: "H", TestName: "T", Result: "1", Unit: "U"})}},
		relevant: false,
		relErr:   extract.ErrUnavailable,
	}

	p := newPipeline(t, capability, nil, extract.Options{RelevanceCheck: true})

	result, err := p.Run(context.Background(), pdfUpload(t), "", reports.Metadata{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Results) != 1 {
		t.Fatalf("got %d line items, want 1", len(result.Results))
	}
}
