package vision

import (
	"context"
	"sync"
	"time"
)

// Mock implements Analyzer for testing.
type Mock struct {
	// AnalyzeFunc is called when Analyze is invoked.
	// If nil, an empty Result is returned.
	AnalyzeFunc func(ctx context.Context, image []byte, mimeType string) (*Result, error)

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records an Analyze invocation.
type MockCall struct {
	Bytes    int
	MIMEType string
	Time     time.Time
}

// NewMock creates a mock analyzer that always returns res.
func NewMock(res Result) *Mock {
	return &Mock{
		AnalyzeFunc: func(ctx context.Context, image []byte, mimeType string) (*Result, error) {
			out := res
			return &out, nil
		},
	}
}

// WithError returns a mock that always fails with err.
func WithError(err error) *Mock {
	return &Mock{
		AnalyzeFunc: func(ctx context.Context, image []byte, mimeType string) (*Result, error) {
			return nil, err
		},
	}
}

// Blocking returns a mock that waits for release (or ctx) before answering res.
func Blocking(release <-chan struct{}, res Result) *Mock {
	return &Mock{
		AnalyzeFunc: func(ctx context.Context, image []byte, mimeType string) (*Result, error) {
			select {
			case <-release:
				out := res
				return &out, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
}

// Analyze calls AnalyzeFunc and records the call.
func (m *Mock) Analyze(ctx context.Context, image []byte, mimeType string) (*Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{
		Bytes:    len(image),
		MIMEType: mimeType,
		Time:     time.Now(),
	})
	fn := m.AnalyzeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, image, mimeType)
	}
	return &Result{Objects: []DetectedObject{}, Text: []string{}}, nil
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of Analyze calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Verify Mock implements Analyzer at compile time.
var _ Analyzer = (*Mock)(nil)
