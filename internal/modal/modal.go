// Package modal tracks which dialogs are open on a page and whether page
// scrolling is locked behind them.
package modal

import (
	"sort"
	"sync"
)

// Content is what a modal currently shows. Only the service modal fills it.
type Content struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

// View describes one registered modal.
type View struct {
	Name    string  `json:"name"`
	Open    bool    `json:"open"`
	Content Content `json:"content"`
}

type entry struct {
	open    bool
	content Content
}

// Manager is safe for concurrent use. Operations on unregistered names are
// ignored.
type Manager struct {
	mu     sync.Mutex
	modals map[string]*entry
	locked bool
}

func NewManager(names ...string) *Manager {
	m := &Manager{modals: make(map[string]*entry, len(names))}
	for _, name := range names {
		m.Register(name)
	}
	return m
}

// Register adds a modal. Registering an existing name keeps its state.
func (m *Manager) Register(name string) {
	if name == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.modals[name]; !ok {
		m.modals[name] = &entry{}
	}
}

// Open marks the modal active and locks page scroll. It reports whether the
// modal exists.
func (m *Manager) Open(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.modals[name]
	if !ok {
		return false
	}
	e.open = true
	m.locked = true
	return true
}

// Close deactivates the modal. Scroll unlocks once no modal is open.
func (m *Manager) Close(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.modals[name]
	if !ok {
		return
	}
	e.open = false
	m.locked = m.anyOpenLocked()
}

// CloseAll is the Escape key.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.modals {
		e.open = false
	}
	m.locked = false
}

// SetContent replaces what the modal shows.
func (m *Manager) SetContent(name string, c Content) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.modals[name]
	if !ok {
		return false
	}
	e.content = c
	return true
}

func (m *Manager) IsOpen(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.modals[name]
	return ok && e.open
}

func (m *Manager) Has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.modals[name]
	return ok
}

// ScrollLocked reports whether page scroll is disabled.
func (m *Manager) ScrollLocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

// Snapshot lists modals sorted by name.
func (m *Manager) Snapshot() []View {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]View, 0, len(m.modals))
	for name, e := range m.modals {
		out = append(out, View{Name: name, Open: e.open, Content: e.content})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *Manager) anyOpenLocked() bool {
	for _, e := range m.modals {
		if e.open {
			return true
		}
	}
	return false
}
