package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/require"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any)         {}
func (m *mockLogger) Info(_ string, _ ...any)          {}
func (m *mockLogger) Warn(_ string, _ ...any)          {}
func (m *mockLogger) Error(_ string, _ ...any)         {}
func (m *mockLogger) With(_ ...any) types.Logger       { return m }
func (m *mockLogger) WithModule(_ string) types.Logger { return m }
func (m *mockLogger) WithError(_ error) types.Logger   { return m }

// recordingSender collects the frames written to a client.
type recordingSender struct {
	mu     sync.Mutex
	frames []Frame
	fail   bool
}

func (s *recordingSender) Send(data []byte) error {
	if s.fail {
		return errors.New("connection reset")
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *recordingSender) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.frames))
	for i, f := range s.frames {
		names[i] = f.Event
	}
	return names
}

func (s *recordingSender) count(event string) int {
	n := 0
	for _, e := range s.events() {
		if e == event {
			n++
		}
	}
	return n
}

func (s *recordingSender) last(t *testing.T, event string, v any) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].Event == event {
			require.NoError(t, json.Unmarshal(s.frames[i].Data, v))
			return
		}
	}
	t.Fatalf("no %s frame received", event)
}

// waitFor blocks until sender has received n frames of event.
func waitFor(t *testing.T, s *recordingSender, event string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.count(event) >= n },
		time.Second, 5*time.Millisecond, "waiting for %d %s frame(s), got %v", n, event, s.events())
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	r := NewRouter(16, &mockLogger{})
	t.Cleanup(r.Close)
	return r
}
