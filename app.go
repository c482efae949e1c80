package autosense

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// BuildBackends instantiates the configured backends in rank order.
func BuildBackends(c AppConfig) []Backend {
	backends := make([]Backend, 0, len(c.Backends))
	for _, b := range c.Backends {
		switch b {
		case BackendTesseract:
			backends = append(backends, NewTesseractBackend(c.Tesseract))
		case BackendRemote:
			backends = append(backends, NewRemoteBackend(c.Rabbit, c.Tesseract))
		case BackendMock:
			backends = append(backends, NewMockBackend())
		}
	}
	return backends
}

// NewServerFromConfig wires the scan pipeline, the stores and the metrics
// for one HTTP service instance.
func NewServerFromConfig(c AppConfig, reg prometheus.Registerer) (*Server, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	journeys, err := NewJourneyService(c.DataDir, NewTrackingIDGenerator())
	if err != nil {
		return nil, err
	}

	recognizer := NewRecognizer(c.PreferredBackend, c.RecognizeTimeout, BuildBackends(c)...)
	preprocessor := DefaultPreprocessor()
	preprocessor.TargetWidth = c.TargetWidth
	preprocessor.MaxPixels = c.MaxPixels
	pipeline := NewScanPipeline(preprocessor, recognizer, c.EnableOCR)

	log.Info().Str("component", "APP").Str("backends", backendListString(c.Backends)).
		Str("preferred", c.PreferredBackend.String()).Bool("enable_ocr", c.EnableOCR).
		Str("data_dir", c.DataDir).Str("amqp", StripPasswordFromUrlString(c.Rabbit.AmqpURI)).
		Msg("service configured")

	sessions := NewSessionStore()
	sessions.IdleTTL = c.SessionIdleTTL
	sessions.MaxSessions = c.MaxSessions

	server := NewServer(pipeline, sessions, journeys, NewMetrics(reg))
	if c.ValidateRequests {
		if err := server.EnableRequestValidation(context.Background()); err != nil {
			return nil, err
		}
	}
	return server, nil
}
