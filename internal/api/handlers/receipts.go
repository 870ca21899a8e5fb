// Package handlers implements the HTTP surface over the ingestion
// pipeline and the insight aggregator. It only (de)serializes; the core
// operates on in-memory records.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finbase/receipt-insights/internal/api/middleware"
	"github.com/finbase/receipt-insights/internal/docsource"
	"github.com/finbase/receipt-insights/internal/jobs"
	"github.com/finbase/receipt-insights/internal/pipeline"
	"github.com/finbase/receipt-insights/internal/storage"
)

// maxUploadBytes bounds document uploads (20 MB).
const maxUploadBytes = 20 << 20

// ReceiptsHandler handles document upload, ingestion and receipt listing.
type ReceiptsHandler struct {
	pipe      *pipeline.Pipeline
	store     storage.ReceiptStore
	publisher jobs.Publisher
	uploader  docsource.Uploader
	log       zerolog.Logger
}

// NewReceiptsHandler creates a receipts handler.
func NewReceiptsHandler(pipe *pipeline.Pipeline, store storage.ReceiptStore, publisher jobs.Publisher, uploader docsource.Uploader, log zerolog.Logger) *ReceiptsHandler {
	return &ReceiptsHandler{pipe: pipe, store: store, publisher: publisher, uploader: uploader, log: log}
}

type ingestRequest struct {
	SourceRef string `json:"source_ref"`
	MIMEType  string `json:"mime_type,omitempty"`
}

// Ingest handles POST /api/receipts/ingest.
//
// By default the document is enqueued for background ingestion and a job
// ID is returned. With ?wait=true the pipeline runs synchronously and the
// terminal outcome is returned directly.
func (h *ReceiptsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SourceRef == "" {
		middleware.WriteError(w, http.StatusBadRequest, "source_ref is required")
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		h.ingestSync(w, r, req)
		return
	}

	job := &jobs.IngestReceiptJob{
		SourceRef: req.SourceRef,
		MIMEType:  req.MIMEType,
	}
	if err := h.publisher.PublishIngestReceipt(r.Context(), job); err != nil {
		h.log.Error().Err(err).Str("source_ref", req.SourceRef).Msg("Failed to enqueue ingestion")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue ingestion")
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":     job.JobID,
		"source_ref": job.SourceRef,
	})
}

func (h *ReceiptsHandler) ingestSync(w http.ResponseWriter, r *http.Request, req ingestRequest) {
	ctx := r.Context()

	doc, err := docsource.ForRef(req.SourceRef).Fetch(ctx, req.SourceRef)
	if err != nil {
		h.log.Error().Err(err).Str("source_ref", req.SourceRef).Msg("Failed to fetch document")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to fetch document")
		return
	}
	if req.MIMEType != "" {
		doc.MIMEType = req.MIMEType
	}

	res, err := h.pipe.Ingest(ctx, doc)
	if err != nil {
		h.log.Error().Err(err).Str("source_ref", req.SourceRef).Msg("Ingestion failed")
		middleware.WriteError(w, http.StatusBadGateway, "Ingestion failed, retry later")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, res)
}

// Upload handles POST /api/receipts/upload. The multipart "file" part is
// stored through the configured uploader and an ingestion job is enqueued
// for the resulting source reference.
func (h *ReceiptsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Multipart 'file' part is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}
	if len(data) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Uploaded file is empty")
		return
	}

	name := uuid.NewString() + strings.ToLower(filepath.Ext(header.Filename))
	sourceRef, err := h.uploader.Upload(r.Context(), name, data)
	if err != nil {
		h.log.Error().Err(err).Str("filename", header.Filename).Msg("Failed to store upload")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}

	job := &jobs.IngestReceiptJob{
		SourceRef: sourceRef,
		MIMEType:  header.Header.Get("Content-Type"),
	}
	if err := h.publisher.PublishIngestReceipt(r.Context(), job); err != nil {
		h.log.Error().Err(err).Str("source_ref", sourceRef).Msg("Failed to enqueue ingestion")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue ingestion")
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":     job.JobID,
		"source_ref": sourceRef,
	})
}

// List handles GET /api/receipts.
func (h *ReceiptsHandler) List(w http.ResponseWriter, r *http.Request) {
	rcpts, err := h.store.List(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list receipts")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list receipts")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"receipts": rcpts,
		"count":    len(rcpts),
	})
}
