package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"ingestpipe/internal/auth"
	"ingestpipe/internal/domain"
	"ingestpipe/internal/query"
)

const maxUploadMemory = 32 << 20 // 32MiB held in memory before spilling multipart parts to disk

func (s *Server) handleAdmitBatch(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant_id")

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	manifestRaw := r.FormValue("manifest")
	if manifestRaw == "" {
		respondError(w, http.StatusBadRequest, errors.New("missing manifest form field"))
		return
	}
	var manifest domain.BatchManifest
	if err := json.Unmarshal([]byte(manifestRaw), &manifest); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	fileHeaders := r.MultipartForm.File["files"]
	contents := make([][]byte, len(fileHeaders))
	for i, fh := range fileHeaders {
		f, err := fh.Open()
		if err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		contents[i], err = io.ReadAll(f)
		f.Close()
		if err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
	}

	result, err := s.gateway.AdmitBatch(r.Context(), tenantID, manifest, contents)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusAccepted, result)
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("batch_id")
	receipts, err := s.gateway.Receipts.ListByBatch(r.Context(), batchID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if len(receipts) == 0 {
		respondError(w, http.StatusNotFound, errors.New("batch not found"))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"batch_id": batchID, "receipts": receipts})
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receiptID := r.PathValue("receipt_id")
	receipt, ok, err := s.gateway.Receipts.Get(r.Context(), receiptID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, errors.New("receipt not found"))
		return
	}
	respondJSON(w, http.StatusOK, receipt)
}

// queryRequest is the JSON POST /collections/{name}/query body (§6). A
// query file is not part of this struct: it arrives as the multipart
// query_file part instead.
type queryRequest struct {
	Vector []float32 `json:"vector,omitempty"`
	TopK   int       `json:"top_k,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	coll, err := query.ParseCollection(name)
	if err != nil {
		respondError(w, http.StatusNotFound, err)
		return
	}
	if !s.authCfg.BypassEnabled {
		claims, ok := auth.FromContext(r.Context())
		if !ok || claims.TenantID != coll.TenantID {
			respondError(w, http.StatusForbidden, errors.New("token tenant does not own this collection"))
			return
		}
	}

	contentType := r.Header.Get("Content-Type")
	topK := 10
	var vector []float32
	var file *query.File

	if len(contentType) >= len("multipart/form-data") && contentType[:len("multipart/form-data")] == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		fh, header, err := r.FormFile("query_file")
		if err != nil {
			respondError(w, http.StatusBadRequest, errors.New("multipart query requires a query_file part"))
			return
		}
		content, err := io.ReadAll(fh)
		fh.Close()
		if err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		file = &query.File{Filename: header.Filename, Content: content}
	} else {
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		vector = req.Vector
		if req.TopK > 0 {
			topK = req.TopK
		}
	}

	hits, err := s.query.Query(r.Context(), name, vector, file, topK)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

func statusFromError(err error) int {
	var derr *domain.Error
	if errors.As(err, &derr) {
		switch derr.Code {
		case domain.ErrManifestInvalid, domain.ErrManifestFileCountMismatch, domain.ErrDuplicateFileID, domain.ErrDimensionMismatch:
			return http.StatusBadRequest
		case domain.ErrResourceNotFound:
			return http.StatusNotFound
		case domain.ErrRateLimitExceeded:
			return http.StatusTooManyRequests
		case domain.ErrAuthenticationRequired, domain.ErrTokenExpired:
			return http.StatusUnauthorized
		case domain.ErrInsufficientPermissions:
			return http.StatusForbidden
		}
	}
	return http.StatusInternalServerError
}
