package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/ASK1E/SASTRA/internal/model"
	"github.com/ASK1E/SASTRA/internal/orchestrator"
	"github.com/ASK1E/SASTRA/internal/runner"
	"github.com/ASK1E/SASTRA/internal/security"
)

//go:generate mockgen -destination=../mocks/mock_scanner.go -package=mocks github.com/ASK1E/SASTRA/internal/api Scanner

// Scanner is the orchestrator as seen by the HTTP layer.
type Scanner interface {
	Scan(ctx context.Context, req model.UploadRequest) (model.ScanResult, error)
	Available(ctx context.Context) error
}

// multipartOverhead is allowed on top of the upload limit for form boundaries
// and headers.
const multipartOverhead = 64 * 1024

// Limits bounds how much work the handler admits at once.
type Limits struct {
	MaxConcurrent int64
	// QueueTimeout is how long a request may wait for a free scan slot
	// before it is turned away as busy.
	QueueTimeout time.Duration
}

type Handler struct {
	log          *slog.Logger
	scanner      Scanner
	policy       security.Policy
	slots        *semaphore.Weighted
	queueTimeout time.Duration
}

func NewHandler(log *slog.Logger, scanner Scanner, policy security.Policy, limits Limits) *Handler {
	return &Handler{
		log:          log,
		scanner:      scanner,
		policy:       policy,
		slots:        semaphore.NewWeighted(limits.MaxConcurrent),
		queueTimeout: limits.QueueTimeout,
	}
}

type scanResponse struct {
	Status   string                 `json:"status"`
	ScanID   string                 `json:"scan_id"`
	Filename string                 `json:"filename,omitempty"`
	Findings []model.Finding        `json:"findings"`
	Summary  map[model.Severity]int `json:"summary"`
	Warnings []string               `json:"warnings,omitempty"`
}

type errorResponse struct {
	Status string `json:"status"`
	ScanID string `json:"scan_id,omitempty"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

func (h *Handler) RunScan(w http.ResponseWriter, r *http.Request) {
	scanID := uuid.NewString()
	ctx := orchestrator.WithScanID(r.Context(), scanID)

	maxBytes := h.policy.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	filename, content, err := h.readUpload(r, maxBytes)
	if err != nil {
		var tooLarge *http.MaxBytesError
		var rejection *security.RejectionError
		switch {
		case errors.As(err, &rejection):
			h.fail(w, r, http.StatusBadRequest, scanID, string(rejection.Reason), rejection.Error())
		case errors.As(err, &tooLarge):
			h.fail(w, r, http.StatusRequestEntityTooLarge, scanID, string(security.TooLarge), "upload exceeds size limit")
		case errors.Is(err, errNoFile):
			h.fail(w, r, http.StatusBadRequest, scanID, "no_file", "no file part in request")
		default:
			h.fail(w, r, http.StatusBadRequest, scanID, "read_error", "could not read upload")
		}
		return
	}

	if err := h.acquire(ctx); err != nil {
		if ctx.Err() != nil {
			h.fail(w, r, http.StatusServiceUnavailable, scanID, "cancelled", "request cancelled while waiting for a scan slot")
			return
		}
		h.log.Warn("no scan slot available", "scan_id", scanID, "waited", h.queueTimeout)
		h.fail(w, r, http.StatusServiceUnavailable, scanID, "busy", "all scan slots are busy, retry later")
		return
	}
	defer h.slots.Release(1)

	res, err := h.scanner.Scan(ctx, model.UploadRequest{
		Filename: filename,
		Content:  content,
		Size:     int64(len(content)),
	})
	if err != nil {
		h.scanError(w, r, scanID, err)
		return
	}

	switch res.Kind {
	case model.ResultSuccess:
		render.Status(r, http.StatusOK)
		render.JSON(w, r, scanResponse{
			Status:   "success",
			ScanID:   scanID,
			Filename: orchestrator.DisplayName(filename),
			Findings: res.Findings,
			Summary:  res.Summary(),
			Warnings: res.Warnings,
		})
	default:
		h.fail(w, r, http.StatusBadGateway, scanID, string(res.Kind), res.Diagnostic)
	}
}

var errNoFile = errors.New("no file part")

// readUpload streams the multipart body up to the "file" part. The part's
// name is checked against the policy before any of its content is read, so a
// disallowed upload is refused as such whatever its size.
func (h *Handler) readUpload(r *http.Request, maxBytes int64) (string, []byte, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return "", nil, errNoFile
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return "", nil, errNoFile
		}
		if err != nil {
			return "", nil, err
		}
		if part.FormName() != "file" || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		filename := part.FileName()
		if err := h.policy.ValidateName(filename); err != nil {
			_ = part.Close()
			return "", nil, err
		}
		content, err := io.ReadAll(io.LimitReader(part, maxBytes+1))
		_ = part.Close()
		if err != nil {
			return "", nil, err
		}
		return filename, content, nil
	}
}

// acquire waits for a scan slot, at most queueTimeout when one is set.
func (h *Handler) acquire(ctx context.Context) error {
	if h.queueTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.queueTimeout)
		defer cancel()
	}
	return h.slots.Acquire(ctx, 1)
}

func (h *Handler) scanError(w http.ResponseWriter, r *http.Request, scanID string, err error) {
	var rejection *security.RejectionError
	switch {
	case errors.As(err, &rejection):
		status := http.StatusBadRequest
		if rejection.Reason == security.TooLarge {
			status = http.StatusRequestEntityTooLarge
		}
		h.fail(w, r, status, scanID, string(rejection.Reason), rejection.Error())
	case errors.Is(err, runner.ErrTimedOut):
		h.fail(w, r, http.StatusGatewayTimeout, scanID, "timed_out", "scan timed out")
	case errors.Is(err, runner.ErrSpawnFailed), errors.Is(err, orchestrator.ErrScannerUnavailable):
		h.fail(w, r, http.StatusServiceUnavailable, scanID, "unavailable", "scanner is unavailable")
	case errors.Is(err, context.Canceled):
		h.fail(w, r, http.StatusServiceUnavailable, scanID, "cancelled", "request cancelled")
	default:
		h.log.Error("scan failed", "scan_id", scanID, "err", err)
		h.fail(w, r, http.StatusInternalServerError, scanID, "internal", "internal error")
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, scanID, kind, msg string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Status: "error", ScanID: scanID, Kind: kind, Error: msg})
}
