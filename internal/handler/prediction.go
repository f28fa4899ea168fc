package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/flowchat/internal/middleware"
	"github.com/capitalize-ai/flowchat/internal/prediction"
	"github.com/capitalize-ai/flowchat/pkg/logger"
	"github.com/capitalize-ai/flowchat/pkg/metrics"
)

// DocumentUploader relays documents to a document store.
type DocumentUploader interface {
	UpsertDocuments(ctx context.Context, req *prediction.UpsertRequest) (json.RawMessage, error)
}

// DocumentConfig names the document store uploads go to.
type DocumentConfig struct {
	StoreID   string
	DocID     string
	ChunkSize int
}

// PredictionHandler proxies prediction requests and document uploads.
type PredictionHandler struct {
	client   prediction.Client
	uploader DocumentUploader
	docs     DocumentConfig
	logger   *logger.Logger
}

// NewPredictionHandler creates a new prediction handler. uploader may be nil
// when the provider has no document store.
func NewPredictionHandler(client prediction.Client, uploader DocumentUploader, docs DocumentConfig, log *logger.Logger) *PredictionHandler {
	if docs.ChunkSize == 0 {
		docs.ChunkSize = 1000
	}
	return &PredictionHandler{
		client:   client,
		uploader: uploader,
		docs:     docs,
		logger:   log,
	}
}

// Predict handles POST /api/prediction. The upstream JSON is relayed as is.
func (h *PredictionHandler) Predict(w http.ResponseWriter, r *http.Request) {
	var req prediction.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start := time.Now()
	resp, err := h.client.Predict(r.Context(), &req)
	if err != nil {
		metrics.RecordPrediction(h.client.Name(), "error", time.Since(start).Seconds())
		h.logger.Error("prediction failed",
			zap.String("provider", h.client.Name()),
			zap.String("chat_id", req.ChatID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.RecordPrediction(h.client.Name(), "success", time.Since(start).Seconds())

	if len(resp.Raw) > 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(resp.Raw)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// UploadResult reports one relayed file.
type UploadResult struct {
	Filename string          `json:"filename"`
	Response json.RawMessage `json:"response"`
}

// Upload handles POST /api/documents/upload. Each file in the multipart
// "files" field is upserted separately.
func (h *PredictionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.uploader == nil {
		writeError(w, http.StatusNotImplemented, "document uploads are not configured")
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "files are required")
		return
	}

	uploadedBy := r.FormValue("uploadedBy")
	if uploadedBy == "" {
		uploadedBy = string(middleware.GetRole(r.Context()))
	}

	results := make([]UploadResult, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read "+fh.Filename)
			return
		}

		raw, err := h.uploader.UpsertDocuments(r.Context(), &prediction.UpsertRequest{
			StoreID:         h.docs.StoreID,
			DocID:           h.docs.DocID,
			LoaderName:      "File Loader",
			ChunkSize:       h.docs.ChunkSize,
			Metadata:        map[string]any{"uploadedBy": uploadedBy, "filename": fh.Filename},
			ReplaceExisting: true,
			Files:           []prediction.Document{{Filename: fh.Filename, Content: f}},
		})
		f.Close()
		if err != nil {
			metrics.DocumentUploadsTotal.WithLabelValues("error").Inc()
			h.logger.Error("document upload failed", zap.String("filename", fh.Filename), zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		metrics.DocumentUploadsTotal.WithLabelValues("success").Inc()
		results = append(results, UploadResult{Filename: fh.Filename, Response: raw})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"files":   results,
	})
}
