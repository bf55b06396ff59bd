package jobs

import (
	"context"
	"sync"
)

// MockWorker is a Worker for tests. ProcessFunc, when set, decides each
// item's outcome; otherwise every item succeeds with its prompt as payload.
type MockWorker struct {
	Name        string
	ProcessFunc func(ctx context.Context, task Task) (string, error)

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockWorker) Type() string {
	if m.Name == "" {
		return "mock"
	}
	return m.Name
}

func (m *MockWorker) Process(ctx context.Context, task Task) (string, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[task.Item.ID]++
	m.mu.Unlock()

	if m.ProcessFunc != nil {
		return m.ProcessFunc(ctx, task)
	}
	return task.Item.Prompt, nil
}

// Calls returns how often an item was processed.
func (m *MockWorker) Calls(itemID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[itemID]
}

// TotalCalls returns the number of Process calls.
func (m *MockWorker) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}
