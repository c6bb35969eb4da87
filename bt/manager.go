package bt

import "sync"

// ManagerListener observes adapter lifecycle changes process-wide (spec
// section 3's Manager component): added/removed/powered transitions and
// the synthetic "adapter updated" notification re-issued whenever an
// adapter's settings bitmask changes.
type ManagerListener interface {
	AdapterAdded(a *Adapter)
	AdapterRemoved(a *Adapter)
	AdapterUpdated(a *Adapter)
}

// Manager is a singleton spanning every Adapter instance the process
// manages, with explicit Init/Shutdown rather than an implicit
// package-level var, so tests can run multiple independent managers
// (spec section 9's Open Question decision: "explicit singleton init").
type Manager struct {
	mu        sync.Mutex
	adapters  map[int]*Adapter
	listeners []ManagerListener
}

var (
	instanceMu sync.Mutex
	instance   *Manager
)

// Init constructs the process-wide Manager, replacing any previous
// instance (tests are expected to Shutdown before re-Init).
func Init() *Manager {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	instance = &Manager{adapters: map[int]*Adapter{}}
	return instance
}

// Get returns the current Manager, or nil if Init hasn't been called.
func Get() *Manager {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	return instance
}

// Shutdown closes every managed adapter and clears the singleton.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	adapters := make([]*Adapter, 0, len(m.adapters))
	for _, a := range m.adapters {
		adapters = append(adapters, a)
	}
	m.adapters = map[int]*Adapter{}
	m.mu.Unlock()

	for _, a := range adapters {
		if err := a.Close(); err != nil {
			log.Warningf("bt: error closing adapter during manager shutdown: %v", err)
		}
	}

	instanceMu.Lock()
	if instance == m {
		instance = nil
	}
	instanceMu.Unlock()
}

// AddListener registers l to be notified of every subsequent adapter
// lifecycle transition.
func (m *Manager) AddListener(l ManagerListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Adopt registers an already-constructed Adapter with the manager and
// notifies listeners of its arrival.
func (m *Manager) Adopt(a *Adapter) {
	m.mu.Lock()
	m.adapters[a.devID] = a
	listeners := append([]ManagerListener(nil), m.listeners...)
	m.mu.Unlock()
	for _, l := range listeners {
		l.AdapterAdded(a)
	}
}

// Remove unregisters the adapter for devID, closing it and notifying
// listeners.
func (m *Manager) Remove(devID int) error {
	m.mu.Lock()
	a, ok := m.adapters[devID]
	if ok {
		delete(m.adapters, devID)
	}
	listeners := append([]ManagerListener(nil), m.listeners...)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	err := a.Close()
	for _, l := range listeners {
		l.AdapterRemoved(a)
	}
	return err
}

// NotifyUpdated re-issues a synthetic "adapter updated" notification to
// every listener, used whenever an adapter's settings bitmask changes
// (spec section 3's NEW_SETTINGS -> "adapter updated" mapping).
func (m *Manager) NotifyUpdated(a *Adapter) {
	m.mu.Lock()
	listeners := append([]ManagerListener(nil), m.listeners...)
	m.mu.Unlock()
	for _, l := range listeners {
		l.AdapterUpdated(a)
	}
}

// Adapters returns a snapshot of every currently managed adapter.
func (m *Manager) Adapters() []*Adapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Adapter, 0, len(m.adapters))
	for _, a := range m.adapters {
		out = append(out, a)
	}
	return out
}
