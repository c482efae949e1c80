package autosense

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	OutcomeOK             = "ok"
	OutcomeNoCandidates   = "no_candidates"
	OutcomeOCRUnavailable = "ocr_unavailable"
	OutcomeOCRFailed      = "ocr_failed"
	OutcomeOCRDisabled    = "ocr_disabled"
)

var (
	ErrNoRegistration      = errors.New("no registration provided, pick a candidate or enter it manually")
	ErrCandidateNotOffered = errors.New("picked candidate was not offered")
)

// ScanResult is what a caller gets back from one photo. Candidates is
// never nil so it serialises as an empty list.
type ScanResult struct {
	Candidates []string `json:"candidates"`
	RawText    string   `json:"raw_text"`
	Backend    string   `json:"backend,omitempty"`
	Outcome    string   `json:"outcome"`
	Warning    string   `json:"warning,omitempty"`
	Width      int      `json:"width"`
	Height     int      `json:"height"`
}

type ScanPipeline struct {
	Preprocessor Preprocessor
	Recognizer   *Recognizer
	Extractor    ExtractorOptions
	EnableOCR    bool
}

func NewScanPipeline(preprocessor Preprocessor, recognizer *Recognizer, enableOCR bool) *ScanPipeline {
	return &ScanPipeline{
		Preprocessor: preprocessor,
		Recognizer:   recognizer,
		Extractor:    DefaultExtractorOptions(),
		EnableOCR:    enableOCR,
	}
}

// Scan preprocesses then recognises one image. Only a decode failure is
// returned as an error; every OCR problem ends in an empty candidate list.
func (p *ScanPipeline) Scan(ctx context.Context, raw []byte) (ScanResult, error) {
	start := time.Now()
	result := ScanResult{Candidates: []string{}}

	normalized, err := p.Preprocessor.Preprocess(raw)
	if err != nil {
		return result, err
	}
	result.Width, result.Height = normalized.Width(), normalized.Height()

	if !p.EnableOCR || p.Recognizer == nil {
		result.Outcome = OutcomeOCRDisabled
		return result, nil
	}

	recognition := p.Recognizer.Recognize(ctx, normalized)
	result.Backend = recognition.Backend
	switch {
	case errors.Is(recognition.Err, ErrNoBackend):
		result.Outcome = OutcomeOCRUnavailable
		result.Warning = "no text recognition backend is available, enter the registration manually"
		return result, nil
	case recognition.Err != nil:
		result.Outcome = OutcomeOCRFailed
		result.Warning = "OCR failed: " + recognition.Err.Error()
		return result, nil
	}

	result.RawText = JoinRawText(recognition.Lines)
	result.Candidates = ExtractCandidates(recognition.Lines, p.Extractor)
	result.Outcome = OutcomeOK
	if len(result.Candidates) == 0 {
		result.Outcome = OutcomeNoCandidates
	}

	log.Info().Str("component", "SCAN").Str("backend", result.Backend).
		Int("lines", len(recognition.Lines)).Strs("candidates", result.Candidates).
		Dur("elapsed", time.Since(start)).Msg("scan finished")
	return result, nil
}

// ResolveRegistration picks the registration used downstream: manual entry
// wins, then an explicitly picked candidate, then a lone candidate.
func ResolveRegistration(candidates []string, picked string, manual string) (string, error) {
	if reg := NormalizeManualRegistration(manual); reg != "" {
		return reg, nil
	}
	if picked != "" {
		for _, c := range candidates {
			if c == picked {
				return c, nil
			}
		}
		return "", errors.Wrapf(ErrCandidateNotOffered, "%q", picked)
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	return "", ErrNoRegistration
}
