package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/receipt-ledger/internal/ledger"
	"github.com/zombor/receipt-ledger/internal/scanning"
)

// maxUploadSize bounds multipart uploads; phone photos run large
const maxUploadSize = int64(50 << 20)

// replyResponse is the JSON body for every pipeline reply
type replyResponse struct {
	Outcome Outcome               `json:"outcome"`
	Message string                `json:"message"`
	Record  *ledger.SearchResult  `json:"record,omitempty"`
	Results []ledger.SearchResult `json:"results,omitempty"`
	Total   int                   `json:"total"`
}

func newReplyResponse(reply Reply) replyResponse {
	resp := replyResponse{
		Outcome: reply.Outcome,
		Message: reply.Text,
		Results: reply.Results,
		Total:   len(reply.Results),
	}
	if reply.Record != nil {
		row := reply.Record.Result("")
		resp.Record = &row
	}
	return resp
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUploadReceipt reads a receipt image and records it
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File is too large. Maximum size is 50MB. Please compress or resize your image.")
			return
		}
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, http.StatusBadRequest, "No file was selected. Please choose a file to upload.")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = contentTypeFromExt(header.Filename)
	}

	image, mimeType, err := scanning.Normalize(data, contentType)
	if err != nil {
		slog.Error("Error converting upload", "filename", header.Filename, "content_type", contentType, "error", err)
		writeError(w, http.StatusUnsupportedMediaType, "Unsupported file type. Please upload a JPEG, PNG, HEIC or PDF receipt.")
		return
	}

	reply := s.service.Handle(r.Context(), Inbound{
		Image:       image,
		ContentType: mimeType,
		Filename:    header.Filename,
		Text:        r.FormValue("caption"),
	})

	writeJSON(w, receiptStatus(reply.Outcome), newReplyResponse(reply))
}

// handleQuery answers a free-text question about the ledger
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	reply := s.service.Handle(r.Context(), Inbound{Text: req.Text})
	status := http.StatusOK
	if reply.Outcome == OutcomeUnavailable {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, newReplyResponse(reply))
}

func receiptStatus(o Outcome) int {
	switch o {
	case OutcomeSaved:
		return http.StatusCreated
	case OutcomeNotSaved:
		return http.StatusAccepted
	case OutcomeExtractionFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusOK
	}
}

func contentTypeFromExt(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
