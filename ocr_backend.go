package autosense

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type BackendType int

const (
	BackendTesseract = BackendType(iota)
	BackendRemote
	BackendMock
)

var ErrNoBackend = errors.New("no text recognition backend available")

// Backend is a pluggable text recognizer.
type Backend interface {
	Type() BackendType
	Available(ctx context.Context) bool
	Recognize(ctx context.Context, img NormalizedImage) ([]RawTextLine, error)
}

func (b BackendType) String() string {
	switch b {
	case BackendTesseract:
		return "tesseract"
	case BackendRemote:
		return "remote"
	case BackendMock:
		return "mock"
	}
	return ""
}

// ParseBackendType accepts the names printed by String, case insensitive.
func ParseBackendType(s string) (BackendType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TESSERACT":
		return BackendTesseract, nil
	case "REMOTE":
		return BackendRemote, nil
	case "MOCK":
		return BackendMock, nil
	}
	return BackendTesseract, fmt.Errorf("unknown backend type %q", s)
}

func (b BackendType) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

func (b *BackendType) UnmarshalJSON(data []byte) error {

	var backendStr string

	if err := json.Unmarshal(data, &backendStr); err == nil {
		backendType, err := ParseBackendType(backendStr)
		if err != nil {
			log.Warn().Str("component", "OCR_BACKEND").Str("backend", backendStr).
				Msg("Unexpected BackendType json")
			return err
		}
		*b = backendType
		return nil
	}

	// not a string .. maybe it's an int

	var backendInt int
	if err := json.Unmarshal(data, &backendInt); err != nil {
		return err
	}
	*b = BackendType(backendInt)
	return nil
}

// SelectBackend picks the preferred backend when it is available, otherwise
// the first other available one in list order. Returns nil if none is.
func SelectBackend(backends []Backend, preferred BackendType, available map[BackendType]bool) Backend {
	for _, b := range backends {
		if b.Type() == preferred && available[b.Type()] {
			return b
		}
	}
	for _, b := range backends {
		if b.Type() != preferred && available[b.Type()] {
			return b
		}
	}
	return nil
}

// Recognition is the outcome of one recognizer call. Lines is empty whenever
// Err is set.
type Recognition struct {
	Backend string
	Lines   []RawTextLine
	Err     error
}

// Recognizer holds the ranked backend list and the user's preference.
type Recognizer struct {
	Backends  []Backend
	Preferred BackendType
	Timeout   time.Duration
}

func NewRecognizer(preferred BackendType, timeout time.Duration, backends ...Backend) *Recognizer {
	return &Recognizer{
		Backends:  backends,
		Preferred: preferred,
		Timeout:   timeout,
	}
}

// Availability probes every configured backend.
func (r *Recognizer) Availability(ctx context.Context) map[BackendType]bool {
	available := make(map[BackendType]bool, len(r.Backends))
	for _, b := range r.Backends {
		available[b.Type()] = b.Available(ctx)
	}
	return available
}

// Recognize never returns an error: an unavailable backend yields ErrNoBackend
// in the result, a failing one yields its wrapped error.
func (r *Recognizer) Recognize(ctx context.Context, img NormalizedImage) (result Recognition) {
	backend := SelectBackend(r.Backends, r.Preferred, r.Availability(ctx))
	if backend == nil {
		log.Warn().Str("component", "OCR_BACKEND").Msg("no text recognition backend is available")
		return Recognition{Err: ErrNoBackend}
	}
	result.Backend = backend.Type().String()

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("component", "OCR_BACKEND").Str("backend", result.Backend).
				Interface("panic", p).Msg("backend panicked during recognition")
			result.Lines = nil
			result.Err = fmt.Errorf("%s backend panicked: %v", result.Backend, p)
		}
	}()

	start := time.Now()
	lines, err := backend.Recognize(ctx, img)
	timeTrack(start, "recognize", "backend finished", "")
	if err != nil {
		log.Error().Err(err).Str("component", "OCR_BACKEND").Str("backend", result.Backend).
			Msg("recognition failed")
		result.Err = errors.Wrapf(err, "%s backend failed", result.Backend)
		return result
	}
	result.Lines = lines
	return result
}
