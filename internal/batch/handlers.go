package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/merchant-validator/internal/report"
	"github.com/zombor/merchant-validator/internal/sheet"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// validateResponse is the body of a successful upload
type validateResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Batch       *Run   `json:"batch"`
	DownloadURL string `json:"download_url"`
	report.Document
}

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes a JSON error body with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// uploadStatus maps a ProcessUpload error to a response code
func uploadStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidUpload),
		errors.Is(err, ErrUnreadableDataset),
		errors.Is(err, sheet.ErrSchema):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// handleValidate validates an uploaded dataset or single image
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	if err := r.ParseMultipartForm(s.maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			errorMsg = fmt.Sprintf("File is too large. Maximum size is %s.", sizeLabel(s.maxUploadSize))
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeFromExt(header.Filename)
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	run, doc, err := s.service.ProcessUpload(r.Context(), header.Filename, data, contentType)
	if err != nil {
		code := uploadStatus(err)
		msg := err.Error()
		if errors.Is(err, ErrInvalidUpload) {
			msg = "Invalid file type. Please upload an Excel or CSV file or an image."
		} else if code == http.StatusInternalServerError {
			msg = "Internal server error"
		}
		jsonError(w, msg, code)
		return
	}

	writeJSON(w, http.StatusCreated, validateResponse{
		Success:     true,
		Message:     fmt.Sprintf("Validated %d records", run.Total),
		Batch:       run,
		DownloadURL: fmt.Sprintf("/api/batches/%s/download", run.ID),
		Document:    *doc,
	})
}

// sizeLabel renders a byte count for error messages
func sizeLabel(n int64) string {
	if n >= 1<<20 && n%(1<<20) == 0 {
		return fmt.Sprintf("%dMB", n>>20)
	}
	return fmt.Sprintf("%d bytes", n)
}

// contentTypeFromExt guesses a content type when the form part has none
func contentTypeFromExt(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".xlsx":
		return xlsxContentType
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

// handleListBatches returns all runs
func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	runs, err := s.service.ListRuns()
	if err != nil {
		slog.Error("Error listing runs", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, runs)
}

// handleGetBatch returns a run together with its stored report
func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.service.GetRun(id)
	if err != nil {
		corsError(w, "Batch not found", http.StatusNotFound)
		return
	}

	doc, err := s.service.GetReport(id)
	if err != nil {
		slog.Error("Error loading report", "id", id, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Batch *Run `json:"batch"`
		report.Document
	}{run, *doc})
}

// handleDownload returns the xlsx report for a run
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, name, err := s.service.GetResultFile(id)
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			corsError(w, "Batch not found", http.StatusNotFound)
			return
		}
		slog.Error("Error reading result file", "id", id, "error", err)
		corsError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Write(data)
}

// handleGetImage returns the uploaded image of a single image run
func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, contentType, err := s.service.GetImageFile(id)
	if err != nil {
		corsError(w, "Image not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteBatch deletes a run and its files
func (s *Server) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.service.DeleteRun(id); err != nil {
		if errors.Is(err, ErrRunNotFound) {
			corsError(w, "Batch not found", http.StatusNotFound)
			return
		}
		slog.Error("Error deleting run", "id", id, "error", err)
		corsError(w, "Error deleting batch", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
