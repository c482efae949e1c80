package autosense

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/couchbaselabs/go.assert"
	"github.com/pkg/errors"
)

type stubLineRecognizer struct {
	lines []RawTextLine
	err   error
	got   []byte
	args  TesseractArgs
}

func (s *stubLineRecognizer) RecognizeBytes(ctx context.Context, imgBytes []byte, args TesseractArgs) ([]RawTextLine, error) {
	s.got = imgBytes
	s.args = args
	return s.lines, s.err
}

func workerConfigForTests() WorkerConfig {
	workerConfig := DefaultWorkerConfig()
	return workerConfig
}

func TestWorkerResultForDelivery(t *testing.T) {
	engine := &stubLineRecognizer{lines: []RawTextLine{{Text: "KT68 XYZ", Confidence: 88, Scored: true}}}
	worker := NewOcrRpcWorker(workerConfigForTests(), engine)

	body, err := json.Marshal(OcrRequest{
		RequestID: "req-1",
		ImgBytes:  []byte{0x89, 'P', 'N', 'G'},
		Args:      TesseractArgs{PageSegMode: "7", Lang: "eng"},
	})
	assert.True(t, err == nil)

	result := worker.resultForDelivery(body)
	assert.Equals(t, result.ID, "req-1")
	assert.Equals(t, result.Status, StatusDone)
	assert.Equals(t, result.Error, "")
	assert.DeepEquals(t, result.Lines, engine.lines)
	assert.DeepEquals(t, engine.got, []byte{0x89, 'P', 'N', 'G'})
	assert.Equals(t, engine.args.PageSegMode, "7")
	assert.Equals(t, engine.args.Lang, "eng")
}

func TestWorkerReportsEngineFailure(t *testing.T) {
	engine := &stubLineRecognizer{err: errors.New("tesseract failed")}
	worker := NewOcrRpcWorker(workerConfigForTests(), engine)

	body, _ := json.Marshal(OcrRequest{RequestID: "req-2"})
	result := worker.resultForDelivery(body)
	assert.Equals(t, result.ID, "req-2")
	assert.Equals(t, result.Status, StatusError)
	assert.Equals(t, result.Error, "tesseract failed")
}

func TestWorkerReportsBadRequest(t *testing.T) {
	worker := NewOcrRpcWorker(workerConfigForTests(), &stubLineRecognizer{})
	result := worker.resultForDelivery([]byte("{not json"))
	assert.Equals(t, result.Status, StatusError)
	assert.True(t, result.Error != "")
}

func TestOcrResultRoundTripKeepsScores(t *testing.T) {
	// the worker reply must carry the scored flag so the http daemon applies
	// the line pre-filter
	js, err := json.Marshal(OcrResult{Status: StatusDone, Lines: []RawTextLine{{Text: "GB", Scored: true}}})
	assert.True(t, err == nil)
	decoded := OcrResult{}
	assert.True(t, json.Unmarshal(js, &decoded) == nil)
	assert.True(t, decoded.Lines[0].Scored)
}
