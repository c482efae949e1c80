package autosense

import (
	"context"
	"testing"
	"time"

	"github.com/couchbaselabs/go.assert"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

func pipelineForTests(backends ...Backend) *ScanPipeline {
	recognizer := NewRecognizer(BackendMock, time.Second, backends...)
	return NewScanPipeline(DefaultPreprocessor(), recognizer, true)
}

func TestScanWithMockBackend(t *testing.T) {
	pipeline := pipelineForTests(NewMockBackend())
	result, err := pipeline.Scan(context.Background(), encodeTestImage(t, 320, 120, imaging.PNG))
	assert.True(t, err == nil)
	assert.DeepEquals(t, result.Candidates, []string{"KT68XYZ"})
	assert.Equals(t, result.RawText, MockBackendText)
	assert.Equals(t, result.Backend, "mock")
	assert.Equals(t, result.Outcome, OutcomeOK)
	assert.Equals(t, result.Width, DefaultTargetWidth)
	assert.Equals(t, result.Height, 450)
}

func TestScanNoCandidates(t *testing.T) {
	pipeline := pipelineForTests(NewMockBackend("MOT", "FOR SALE TODAY ONLY"))
	result, err := pipeline.Scan(context.Background(), encodeTestImage(t, 320, 120, imaging.PNG))
	assert.True(t, err == nil)
	assert.Equals(t, len(result.Candidates), 0)
	assert.Equals(t, result.Outcome, OutcomeNoCandidates)
}

func TestScanWithoutBackendYieldsEmptyList(t *testing.T) {
	pipeline := pipelineForTests(&MockBackend{Unavailable: true})
	result, err := pipeline.Scan(context.Background(), encodeTestImage(t, 320, 120, imaging.PNG))
	assert.True(t, err == nil)
	assert.True(t, result.Candidates != nil)
	assert.Equals(t, len(result.Candidates), 0)
	assert.Equals(t, result.Outcome, OutcomeOCRUnavailable)
	assert.True(t, result.Warning != "")
}

func TestScanBackendFailureYieldsEmptyList(t *testing.T) {
	pipeline := pipelineForTests(&MockBackend{Err: errors.New("tesseract not installed")})
	result, err := pipeline.Scan(context.Background(), encodeTestImage(t, 320, 120, imaging.PNG))
	assert.True(t, err == nil)
	assert.Equals(t, len(result.Candidates), 0)
	assert.Equals(t, result.Outcome, OutcomeOCRFailed)
}

func TestScanWithOCRDisabled(t *testing.T) {
	pipeline := pipelineForTests(NewMockBackend())
	pipeline.EnableOCR = false
	result, err := pipeline.Scan(context.Background(), encodeTestImage(t, 320, 120, imaging.PNG))
	assert.True(t, err == nil)
	assert.Equals(t, result.Outcome, OutcomeOCRDisabled)
	assert.Equals(t, result.Backend, "")
}

func TestScanRejectsUndecodableImage(t *testing.T) {
	pipeline := pipelineForTests(NewMockBackend())
	_, err := pipeline.Scan(context.Background(), []byte("GIF89a but not really"))
	assert.True(t, errors.Is(err, ErrImageDecode))
}

func TestResolveRegistration(t *testing.T) {
	candidates := []string{"KT68XYZ", "WBA8BFAKEV"}

	reg, err := ResolveRegistration(candidates, "WBA8BFAKEV", "")
	assert.True(t, err == nil)
	assert.Equals(t, reg, "WBA8BFAKEV")

	// manual entry wins over a pick
	reg, err = ResolveRegistration(candidates, "KT68XYZ", " ab 12 c ")
	assert.True(t, err == nil)
	assert.Equals(t, reg, "AB12C")

	_, err = ResolveRegistration(candidates, "NOTOFFERED", "")
	assert.True(t, errors.Is(err, ErrCandidateNotOffered))

	_, err = ResolveRegistration(candidates, "", "")
	assert.True(t, errors.Is(err, ErrNoRegistration))

	reg, err = ResolveRegistration([]string{"KT68XYZ"}, "", "")
	assert.True(t, err == nil)
	assert.Equals(t, reg, "KT68XYZ")

	_, err = ResolveRegistration(nil, "", "  ")
	assert.True(t, errors.Is(err, ErrNoRegistration))
}
