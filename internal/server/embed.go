package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/MrWong99/humvec/internal/observe"
	"github.com/MrWong99/humvec/internal/pipeline"
)

// uploadField is the multipart form field carrying the audio file.
const uploadField = "audio"

// embedResponse is the JSON body returned on a successful embed.
type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Dim       int       `json:"dim"`
}

// errorResponse is the JSON body returned for any failed embed. Detail is a
// human-readable explanation; internal faults get a generic message so
// encoder internals do not leak to callers.
type errorResponse struct {
	Detail string `json:"detail"`
}

// handleEmbed accepts a multipart upload in the "audio" field, runs the
// embed pipeline, and writes the embedding vector. Client faults map to 400,
// inference faults to 500; neither is retried.
func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	file, _, err := r.FormFile(uploadField)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Detail: fmt.Sprintf("missing or unreadable upload field %q", uploadField),
		})
		return
	}
	defer file.Close()

	upload, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Detail: "failed to read upload: " + err.Error(),
		})
		return
	}

	vec, err := s.pipeline.Embed(ctx, upload)
	if err != nil {
		var ce *pipeline.ClientError
		if errors.As(err, &ce) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Detail: ce.Detail})
			return
		}
		observe.Logger(ctx).Error("embed pipeline failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "internal error during inference"})
		return
	}

	writeJSON(w, http.StatusOK, embedResponse{Embedding: vec, Dim: len(vec)})
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"detail":"encoding error"}`, http.StatusInternalServerError)
	}
}
