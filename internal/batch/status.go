package batch

import "sync"

// Status is the run-scoped state of a tab.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
)

// StatusMap tracks tabs touched during the current run so that no tab is
// submitted twice. It is cleared when the run ends.
type StatusMap struct {
	tabs map[string]Status
	mu   sync.RWMutex
}

func NewStatusMap() *StatusMap {
	return &StatusMap{tabs: make(map[string]Status)}
}

func (m *StatusMap) Set(tabID string, status Status) {
	m.mu.Lock()
	m.tabs[tabID] = status
	m.mu.Unlock()
}

func (m *StatusMap) Get(tabID string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.tabs[tabID]
	return s, ok
}

func (m *StatusMap) Has(tabID string) bool {
	_, ok := m.Get(tabID)
	return ok
}

func (m *StatusMap) Remove(tabID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tabs, tabID)
}

func (m *StatusMap) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tabs)
}

func (m *StatusMap) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tabs = make(map[string]Status)
}
