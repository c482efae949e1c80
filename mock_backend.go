package autosense

import "context"

const MockBackendText = "KT68 XYZ"

// MockBackend returns canned lines; it stands in for a real engine in demo
// mode and tests.
type MockBackend struct {
	Lines       []RawTextLine
	Err         error
	Unavailable bool
}

func NewMockBackend(texts ...string) *MockBackend {
	if len(texts) == 0 {
		texts = []string{MockBackendText}
	}
	return &MockBackend{Lines: TextLines(texts...)}
}

func (m *MockBackend) Type() BackendType {
	return BackendMock
}

func (m *MockBackend) Available(ctx context.Context) bool {
	return !m.Unavailable
}

func (m *MockBackend) Recognize(ctx context.Context, img NormalizedImage) ([]RawTextLine, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Lines, nil
}
