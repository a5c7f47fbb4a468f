package extractor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
)

// MockExtractor fabricates audio files for tests. Errors can be scripted
// per track id; Fail entries are consumed one call at a time, so a test can
// model "rate limited once, then fine". With CoverExt set, a fake cover file
// is produced whenever the request carries no usable CoverPath.
type MockExtractor struct {
	mu       sync.Mutex
	Fail     map[string][]error
	Ext      string
	CoverExt string
	Resets   int
	Calls    []string
	Requests []Request
}

func NewMockExtractor() *MockExtractor {
	return &MockExtractor{
		Fail: make(map[string][]error),
		Ext:  ".mp3",
	}
}

func (m *MockExtractor) Download(ctx context.Context, req Request) (*Result, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req.TrackID)
	m.Requests = append(m.Requests, req)
	if errs := m.Fail[req.TrackID]; len(errs) > 0 {
		err := errs[0]
		m.Fail[req.TrackID] = errs[1:]
		m.mu.Unlock()
		return nil, err
	}
	coverExt := m.CoverExt
	m.mu.Unlock()

	if err := os.MkdirAll(req.DestDir, 0o755); err != nil {
		return nil, err
	}
	res := &Result{AudioPath: filepath.Join(req.DestDir, req.TrackID+m.Ext)}
	if err := os.WriteFile(res.AudioPath, []byte("fake audio"), 0o644); err != nil {
		return nil, err
	}

	if req.CoverPath != "" {
		if _, err := os.Stat(req.CoverPath); err == nil {
			res.CoverPath = req.CoverPath
			return res, nil
		}
	}
	if coverExt != "" {
		res.CoverPath = filepath.Join(req.DestDir, req.TrackID+coverExt)
		if err := os.WriteFile(res.CoverPath, []byte("fake cover"), 0o644); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (m *MockExtractor) ResetSession() error {
	m.mu.Lock()
	m.Resets++
	m.mu.Unlock()
	return nil
}

var _ Extractor = (*MockExtractor)(nil)
