package services

import (
	"context"
	"sync"
)

// MockAnalyzer returns a canned analysis or error and counts calls
type MockAnalyzer struct {
	Result *TireAnalysis
	Err    error

	mu    sync.Mutex
	calls int
}

func (m *MockAnalyzer) AnalyzeTirePhoto(ctx context.Context, data []byte, contentType string) (*TireAnalysis, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	if m.Result == nil {
		return nil, nil
	}
	copied := *m.Result
	copied.DotCodes = append([]string(nil), m.Result.DotCodes...)
	return &copied, nil
}

func (m *MockAnalyzer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
