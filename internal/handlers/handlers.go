package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Brownie44l1/plastic-classifier/internal/classifier"
	"github.com/Brownie44l1/plastic-classifier/internal/model"
	"github.com/Brownie44l1/plastic-classifier/internal/preprocess"
	"github.com/Brownie44l1/plastic-classifier/internal/scanner"
	"github.com/Brownie44l1/plastic-classifier/internal/session"
)

type Handler struct {
	scanner        *scanner.Scanner
	sessions       *session.Manager
	logger         *zap.Logger
	maxUploadBytes int64
}

func NewHandler(s *scanner.Scanner, sessions *session.Manager, logger *zap.Logger, maxUploadBytes int64) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		scanner:        s,
		sessions:       sessions,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

// Routes registers every endpoint on a new mux wrapped with CORS.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /labels", h.Labels)
	mux.HandleFunc("POST /predict", h.Predict)
	mux.HandleFunc("POST /predict/image", h.PredictFromImage)

	mux.HandleFunc("POST /sessions", h.CreateSession)
	mux.HandleFunc("GET /sessions/{id}", h.GetSession)
	mux.HandleFunc("DELETE /sessions/{id}", h.DeleteSession)
	mux.HandleFunc("POST /sessions/{id}/scan", h.StartScan)
	mux.HandleFunc("POST /sessions/{id}/home", h.GoHome)
	mux.HandleFunc("POST /sessions/{id}/classify", h.ClassifyInSession)

	mux.Handle("GET /metrics", promhttp.Handler())

	return enableCORS(mux)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := h.scanner.ModelStatus()
	code, health := http.StatusOK, "healthy"
	if status == model.StatusUnavailable || status == model.StatusClosed {
		code, health = http.StatusServiceUnavailable, "degraded"
	}
	writeJSON(w, code, map[string]any{
		"status":    health,
		"model":     status,
		"threshold": h.scanner.Threshold(),
	})
}

func (h *Handler) Labels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"labels":  h.scanner.Labels(),
		"catalog": h.scanner.Catalog().Entries(),
	})
}

// Predict classifies a tensor that the client already normalized.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	var req model.PredictionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if len(req.Image) != model.TensorLen {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Expected %d values, got %d", model.TensorLen, len(req.Image)))
		return
	}

	out, err := h.scanner.ScanTensor(r.Context(), model.NewTensor(req.Image))
	if err != nil {
		h.writeScanError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.scanner.Describe(out))
}

func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	out, err := h.scanner.Scan(r.Context(), data)
	if err != nil {
		h.writeScanError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.scanner.Describe(out))
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Create()
	h.logger.Debug("session created", zap.String("session_id", s.ID))
	writeJSON(w, http.StatusCreated, s.Snapshot())
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.sessionView(s))
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	h.sessions.Delete(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// StartScan enters the scan screen from either home or a previous result.
func (h *Handler) StartScan(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	var err error
	if s.State() == session.StateResult {
		err = s.ScanAgain()
	} else {
		err = s.StartScan()
	}
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.sessionView(s))
}

func (h *Handler) GoHome(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	if err := s.Back(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.sessionView(s))
}

// ClassifyInSession runs a scan for a session on the scan screen. The session
// only moves to the result screen when the scan succeeded.
func (h *Handler) ClassifyInSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	if s.State() != session.StateScan {
		writeError(w, http.StatusConflict, fmt.Sprintf("session is on %s, start a scan first", s.State()))
		return
	}

	data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	out, err := h.scanner.Scan(r.Context(), data)
	if err != nil {
		h.writeScanError(w, err)
		return
	}

	if err := s.Complete(out); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.sessionView(s))
}

type sessionView struct {
	session.Snapshot
	Result *scanner.Result `json:"result,omitempty"`
}

func (h *Handler) sessionView(s *session.Session) sessionView {
	view := sessionView{Snapshot: s.Snapshot()}
	if view.State == session.StateResult && view.Last != nil {
		res := h.scanner.Describe(*view.Last)
		view.Result = &res
	}
	return view
}

func (h *Handler) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return s, true
}

// readUpload pulls the "image" field out of a multipart form.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse form")
		return nil, false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No image file provided. Use 'image' as the form field name")
		return nil, false
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read image")
		return nil, false
	}

	h.logger.Debug("received file", zap.String("filename", header.Filename), zap.Int64("size", header.Size))
	return buf.Bytes(), true
}

func (h *Handler) writeScanError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, preprocess.ErrDecode):
		writeError(w, http.StatusBadRequest, "Invalid image format. Supported: JPEG, PNG")
	case errors.Is(err, scanner.ErrInvalidTensor):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrModelUnavailable):
		writeError(w, http.StatusServiceUnavailable, "Model could not be loaded, classification is unavailable")
	case errors.Is(err, classifier.ErrInvalidOutput):
		h.logger.Error("model output rejected", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Prediction failed")
	default:
		h.logger.Error("prediction error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Prediction failed")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
