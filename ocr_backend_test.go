package autosense

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/couchbaselabs/go.assert"
	"github.com/pkg/errors"
)

type stubBackend struct {
	backendType BackendType
	available   bool
	lines       []RawTextLine
	err         error
	panics      bool
	calls       int
}

func (s *stubBackend) Type() BackendType {
	return s.backendType
}

func (s *stubBackend) Available(ctx context.Context) bool {
	return s.available
}

func (s *stubBackend) Recognize(ctx context.Context, img NormalizedImage) ([]RawTextLine, error) {
	s.calls++
	if s.panics {
		panic("engine crashed")
	}
	return s.lines, s.err
}

func TestSelectBackend(t *testing.T) {
	tesseract := &stubBackend{backendType: BackendTesseract}
	remote := &stubBackend{backendType: BackendRemote}
	backends := []Backend{tesseract, remote}

	tests := []struct {
		name      string
		preferred BackendType
		available map[BackendType]bool
		expected  Backend
	}{
		{"preferred available", BackendRemote, map[BackendType]bool{BackendTesseract: true, BackendRemote: true}, remote},
		{"preferred down", BackendRemote, map[BackendType]bool{BackendTesseract: true}, tesseract},
		{"other down", BackendTesseract, map[BackendType]bool{BackendTesseract: true}, tesseract},
		{"only other up", BackendTesseract, map[BackendType]bool{BackendRemote: true}, remote},
		{"preferred not configured", BackendMock, map[BackendType]bool{BackendTesseract: true, BackendRemote: true}, tesseract},
		{"nothing up", BackendRemote, map[BackendType]bool{}, nil},
	}
	for _, test := range tests {
		selected := SelectBackend(backends, test.preferred, test.available)
		if test.expected == nil {
			assert.True(t, selected == nil)
			continue
		}
		assert.True(t, selected == test.expected)
	}
}

func TestRecognizerUsesPreferredBackend(t *testing.T) {
	tesseract := &stubBackend{backendType: BackendTesseract, available: true, lines: TextLines("local")}
	remote := &stubBackend{backendType: BackendRemote, available: true, lines: TextLines("remote")}
	recognizer := NewRecognizer(BackendRemote, time.Second, tesseract, remote)

	result := recognizer.Recognize(context.Background(), NormalizedImage{})
	assert.True(t, result.Err == nil)
	assert.Equals(t, result.Backend, "remote")
	assert.DeepEquals(t, result.Lines, TextLines("remote"))
	assert.Equals(t, tesseract.calls, 0)
	assert.Equals(t, remote.calls, 1)
}

func TestRecognizerNoBackendAvailable(t *testing.T) {
	recognizer := NewRecognizer(BackendTesseract, time.Second,
		&stubBackend{backendType: BackendTesseract},
		&stubBackend{backendType: BackendRemote},
	)
	result := recognizer.Recognize(context.Background(), NormalizedImage{})
	assert.True(t, errors.Is(result.Err, ErrNoBackend))
	assert.Equals(t, result.Backend, "")
	assert.Equals(t, len(result.Lines), 0)

	empty := NewRecognizer(BackendTesseract, time.Second)
	assert.True(t, errors.Is(empty.Recognize(context.Background(), NormalizedImage{}).Err, ErrNoBackend))
}

func TestRecognizerBackendFailure(t *testing.T) {
	failing := &stubBackend{backendType: BackendTesseract, available: true, err: errors.New("exit status 1")}
	result := NewRecognizer(BackendTesseract, time.Second, failing).Recognize(context.Background(), NormalizedImage{})
	assert.True(t, result.Err != nil)
	assert.Equals(t, result.Backend, "tesseract")
	assert.Equals(t, len(result.Lines), 0)
}

func TestRecognizerRecoversFromPanic(t *testing.T) {
	crashing := &stubBackend{backendType: BackendTesseract, available: true, panics: true}
	result := NewRecognizer(BackendTesseract, time.Second, crashing).Recognize(context.Background(), NormalizedImage{})
	assert.True(t, result.Err != nil)
	assert.Equals(t, len(result.Lines), 0)
}

func TestRecognizerAvailability(t *testing.T) {
	recognizer := NewRecognizer(BackendMock, 0,
		&stubBackend{backendType: BackendTesseract},
		NewMockBackend(),
	)
	available := recognizer.Availability(context.Background())
	assert.False(t, available[BackendTesseract])
	assert.True(t, available[BackendMock])
	assert.False(t, available[BackendRemote])
}

func TestBackendTypeJson(t *testing.T) {
	js, err := json.Marshal(BackendRemote)
	assert.True(t, err == nil)
	assert.Equals(t, string(js), `"remote"`)

	var b BackendType
	assert.True(t, json.Unmarshal([]byte(`"Tesseract"`), &b) == nil)
	assert.Equals(t, b, BackendTesseract)
	assert.True(t, json.Unmarshal([]byte(`2`), &b) == nil)
	assert.Equals(t, b, BackendMock)
	assert.True(t, json.Unmarshal([]byte(`"gosseract"`), &b) != nil)
}

func TestParseBackendType(t *testing.T) {
	b, err := ParseBackendType(" MOCK ")
	assert.True(t, err == nil)
	assert.Equals(t, b, BackendMock)
	_, err = ParseBackendType("cloud")
	assert.True(t, err != nil)
	assert.Equals(t, BackendType(42).String(), "")
}
