package autosense

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nu7hatch/gouuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
)

// DefaultMaxUploadBytes bounds every request body, uploads included.
const DefaultMaxUploadBytes = 25 << 20

var errBadRequest = errors.New("bad request")

var newUUID = uuid.NewV4

// newRequestID prefers a uuid and falls back to a ksuid when the random
// source fails.
func newRequestID() string {
	requestID, err := newUUID()
	if err != nil || requestID == nil {
		log.Warn().Err(err).Str("component", "HTTP").Msg("uuid generation failed, using ksuid")
		return ksuid.New().String()
	}
	return requestID.String()
}

// Server exposes the scan, session and journey operations over HTTP.
type Server struct {
	pipeline       *ScanPipeline
	sessions       *SessionStore
	journeys       *JourneyService
	metrics        *Metrics
	validator      *RequestValidator
	MaxUploadBytes int64
	now            func() time.Time
}

func NewServer(pipeline *ScanPipeline, sessions *SessionStore, journeys *JourneyService, metrics *Metrics) *Server {
	return &Server{
		pipeline:       pipeline,
		sessions:       sessions,
		journeys:       journeys,
		metrics:        metrics,
		MaxUploadBytes: DefaultMaxUploadBytes,
		now:            time.Now,
	}
}

// Routes registers every endpoint on a new mux. The caller adds /metrics
// since it owns the registry.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	handle := func(pattern, name string, h http.HandlerFunc) {
		var handler http.Handler = h
		if s.validator != nil {
			handler = s.validator.Wrap(handler)
		}
		handler = s.limitBody(handler)
		if s.metrics != nil {
			handler = s.metrics.Instrument(name, handler)
		}
		mux.Handle(pattern, handler)
	}

	handle("GET /{$}", "landing", s.handleLanding)
	handle("GET /health", "health", s.handleHealth)
	handle("GET /openapi.json", "openapi", s.handleAPIDocument)
	handle("GET /backends", "backends", s.handleBackends)
	handle("POST /sessions", "sessions", s.handleCreateSession)
	handle("GET /sessions/{id}", "sessions", s.handleGetSession)
	handle("POST /sessions/{id}/reset", "sessions", s.handleResetSession)
	handle("DELETE /sessions/{id}", "sessions", s.handleDeleteSession)
	handle("POST /scan", "scan", s.handleScan)
	handle("POST /registration", "registration", s.handleRegistration)
	handle("POST /journeys", "journeys", s.handleStartJourney)
	handle("GET /journeys/{id}", "journeys", s.handleGetJourney)
	handle("POST /journeys/{id}/advance", "journeys", s.handleAdvanceJourney)
	handle("POST /journeys/{id}/sale", "sales", s.handleRecordSale)
	handle("GET /journeys/{id}/sale", "sales", s.handleGetSale)
	handle("GET /snapshot/{registration}", "snapshot", s.handleSnapshot)
	handle("GET /insurance/{registration}", "insurance", s.handleInsurance)
	return mux
}

// RunSessionSweeper drops idle sessions every interval until ctx is done.
func (s *Server) RunSessionSweeper(ctx context.Context, interval time.Duration) {
	s.sessions.RunSweeper(ctx, interval)
}

// limitBody caps the request body before anything, the validator included,
// reads it.
func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Body != nil {
			req.Body = http.MaxBytesReader(w, req.Body, s.MaxUploadBytes)
		}
		next.ServeHTTP(w, req)
	})
}

// EnableRequestValidation checks requests against the API document on every
// route registered afterwards.
func (s *Server) EnableRequestValidation(ctx context.Context) error {
	validator, err := NewRequestValidator(ctx)
	if err != nil {
		return err
	}
	s.validator = validator
	return nil
}

type scanRequest struct {
	ImgBase64 string `json:"img_base64"`
	Session   string `json:"session"`
}

type scanResponse struct {
	ScanResult
	RequestID    string `json:"request_id"`
	Session      string `json:"session,omitempty"`
	Registration string `json:"registration,omitempty"`
}

// handleScan accepts either a multipart upload or a JSON body carrying the
// image as base64.
func (s *Server) handleScan(w http.ResponseWriter, req *http.Request) {
	requestID := newRequestID()
	logger := log.With().Str("component", "SCAN_HTTP").Str("RequestID", requestID).Logger()

	var (
		scanReq  scanRequest
		imgBytes []byte
		err      error
	)
	if strings.HasPrefix(req.Header.Get("Content-Type"), "multipart/") {
		scanReq, imgBytes, err = s.extractParts(req)
	} else {
		scanReq, imgBytes, err = decodeScanJSON(req.Body)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("could not read scan request")
		s.writeError(w, errors.Wrap(errBadRequest, err.Error()))
		return
	}
	logger.Info().Int("bytes", len(imgBytes)).Str("image_type", detectImageType(imgBytes)).
		Str("session", scanReq.Session).Msg("scan requested")

	result, err := s.scan(req.Context(), imgBytes, logger)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := scanResponse{ScanResult: result, RequestID: requestID, Session: scanReq.Session}
	if len(result.Candidates) == 1 {
		resp.Registration = result.Candidates[0]
	}
	if scanReq.Session != "" {
		_, err := s.sessions.Update(scanReq.Session, func(session *Session) {
			session.ApplyScan(result)
			session.Registration = resp.Registration
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) scan(ctx context.Context, imgBytes []byte, logger zerolog.Logger) (ScanResult, error) {
	defer timeTrack(time.Now(), "scan", "scan request handled", "")
	result, err := s.pipeline.Scan(ctx, imgBytes)
	if err != nil {
		logger.Warn().Err(err).Msg("scan failed")
		return result, err
	}
	if s.metrics != nil {
		s.metrics.ObserveScan(result)
	}
	return result, nil
}

func decodeScanJSON(body io.Reader) (scanRequest, []byte, error) {
	scanReq := scanRequest{}
	if err := json.NewDecoder(body).Decode(&scanReq); err != nil {
		return scanReq, nil, errors.Wrap(err, "unable to unmarshal json")
	}
	encoded := scanReq.ImgBase64
	// tolerate data URLs as sent by browsers
	if i := strings.Index(encoded, ";base64,"); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+len(";base64,"):]
	}
	if encoded == "" {
		return scanReq, nil, errors.New("img_base64 is empty")
	}
	imgBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return scanReq, nil, errors.Wrap(err, "img_base64 is not valid base64")
	}
	return scanReq, imgBytes, nil
}

func (s *Server) handleLanding(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, GenerateLandingPage())
}

func (s *Server) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}

type backendStatus struct {
	Type      BackendType `json:"type"`
	Available bool        `json:"available"`
	Preferred bool        `json:"preferred"`
}

func (s *Server) handleBackends(w http.ResponseWriter, req *http.Request) {
	statuses := []backendStatus{}
	recognizer := s.pipeline.Recognizer
	if recognizer != nil && s.pipeline.EnableOCR {
		available := recognizer.Availability(req.Context())
		for _, b := range recognizer.Backends {
			statuses = append(statuses, backendStatus{
				Type:      b.Type(),
				Available: available[b.Type()],
				Preferred: b.Type() == recognizer.Preferred,
			})
		}
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusCreated, s.sessions.Create())
}

func (s *Server) handleGetSession(w http.ResponseWriter, req *http.Request) {
	session, err := s.sessions.Get(req.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleResetSession(w http.ResponseWriter, req *http.Request) {
	session, err := s.sessions.Reset(req.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, req *http.Request) {
	s.sessions.Delete(req.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// statusForError maps the package sentinels onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrImageDecode),
		errors.Is(err, ErrInvalidTrackingID),
		errors.Is(err, ErrNoRegistration),
		errors.Is(err, ErrCandidateNotOffered),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrJourneyNotFound),
		errors.Is(err, ErrRecordNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("component", "HTTP").Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	js, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err = w.Write(js); err != nil {
		log.Error().Err(err).Str("component", "HTTP").Msg("http write() failed")
	}
}
