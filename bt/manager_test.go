package bt

import "testing"

type recordingListener struct {
	added, removed, updated []*Adapter
}

func (l *recordingListener) AdapterAdded(a *Adapter)   { l.added = append(l.added, a) }
func (l *recordingListener) AdapterRemoved(a *Adapter) { l.removed = append(l.removed, a) }
func (l *recordingListener) AdapterUpdated(a *Adapter) { l.updated = append(l.updated, a) }

func TestManagerInitReplacesPriorInstance(t *testing.T) {
	m1 := Init()
	if Get() != m1 {
		t.Fatal("Get() must return the just-initialized Manager")
	}
	m2 := Init()
	if Get() != m2 || m2 == m1 {
		t.Fatal("Init must replace the previous singleton")
	}
	m2.Shutdown()
}

func TestManagerAdoptAndRemoveNotifyListeners(t *testing.T) {
	m := Init()
	defer m.Shutdown()

	l := &recordingListener{}
	m.AddListener(l)

	a := NewAdapter(7, testAdapterAddr(), "")
	m.Adopt(a)
	if len(l.added) != 1 || l.added[0] != a {
		t.Fatalf("expected AdapterAdded(a) exactly once, got %+v", l.added)
	}
	if len(m.Adapters()) != 1 {
		t.Fatalf("expected one adapter tracked, got %d", len(m.Adapters()))
	}

	if err := m.Remove(7); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(l.removed) != 1 || l.removed[0] != a {
		t.Fatalf("expected AdapterRemoved(a) exactly once, got %+v", l.removed)
	}
	if len(m.Adapters()) != 0 {
		t.Error("expected no adapters tracked after Remove")
	}
}

func TestManagerRemoveUnknownDevIDIsNoop(t *testing.T) {
	m := Init()
	defer m.Shutdown()
	if err := m.Remove(999); err != nil {
		t.Fatalf("Remove of unknown devID should be a no-op, got %v", err)
	}
}

func TestManagerNotifyUpdated(t *testing.T) {
	m := Init()
	defer m.Shutdown()
	l := &recordingListener{}
	m.AddListener(l)

	a := NewAdapter(3, testAdapterAddr(), "")
	m.Adopt(a)
	m.NotifyUpdated(a)
	if len(l.updated) != 1 || l.updated[0] != a {
		t.Fatalf("expected AdapterUpdated(a) exactly once, got %+v", l.updated)
	}
}
