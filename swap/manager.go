package swap

import (
	"errors"
	"sync"
)

var errNoSwapWithID = errors.New("swap: no swap with given id")

// Database is the persistence surface Manager needs; persist.Persister
// implements it. Kept narrow and swap-package-local so Manager has no
// import-time dependency on the persist package's sqlite machinery.
type Database interface {
	PutSwap(r *Record) error
	GetAllSwaps() ([]*Record, error)
}

// Manager tracks current and past swaps in memory, backed by Database:
// ongoing swaps loaded eagerly at construction, past swaps loaded lazily
// and cached on first access.
type Manager interface {
	AddSwap(r *Record) error
	WriteSwapToDB(r *Record) error
	GetOngoingSwap(id string) (*Record, error)
	GetOngoingSwaps() []*Record
	GetPastSwap(id string) (*Record, error)
	GetPastIDs() ([]string, error)
	HasOngoingSwap(id string) bool
	CompleteSwap(r *Record) error
}

type manager struct {
	db Database
	mu sync.RWMutex

	ongoing map[string]*Record
	past    map[string]*Record
	events  *EventBus
}

var _ Manager = (*manager)(nil)

// NewManager constructs a Manager and eagerly loads every non-terminal swap
// from db into memory.
func NewManager(db Database, events *EventBus) (Manager, error) {
	stored, err := db.GetAllSwaps()
	if err != nil {
		return nil, err
	}

	ongoing := make(map[string]*Record)
	for _, r := range stored {
		if !r.State().Terminal() {
			ongoing[r.ID()] = r
		}
	}

	return &manager{db: db, ongoing: ongoing, past: make(map[string]*Record), events: events}, nil
}

func (m *manager) AddSwap(r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.State().Terminal() {
		m.past[r.ID()] = r
	} else {
		m.ongoing[r.ID()] = r
	}
	return m.db.PutSwap(r)
}

func (m *manager) WriteSwapToDB(r *Record) error {
	return m.db.PutSwap(r)
}

func (m *manager) GetOngoingSwap(id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.ongoing[id]
	if !ok {
		return nil, errNoSwapWithID
	}
	return r, nil
}

func (m *manager) GetOngoingSwaps() []*Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Record, 0, len(m.ongoing))
	for _, r := range m.ongoing {
		out = append(out, r)
	}
	return out
}

func (m *manager) GetPastSwap(id string) (*Record, error) {
	m.mu.RLock()
	if r, ok := m.past[id]; ok {
		m.mu.RUnlock()
		return r, nil
	}
	m.mu.RUnlock()

	stored, err := m.db.GetAllSwaps()
	if err != nil {
		return nil, err
	}
	for _, r := range stored {
		if r.ID() == id {
			m.mu.Lock()
			m.past[id] = r
			m.mu.Unlock()
			return r, nil
		}
	}
	return nil, errNoSwapWithID
}

func (m *manager) GetPastIDs() ([]string, error) {
	stored, err := m.db.GetAllSwaps()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(stored))
	for _, r := range stored {
		if r.State().Terminal() {
			ids = append(ids, r.ID())
		}
	}
	return ids, nil
}

func (m *manager) HasOngoingSwap(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.ongoing[id]
	return ok
}

// CompleteSwap moves a swap from ongoing to past once it reaches a terminal
// state, persisting it and emitting the terminal SdkEvent.
func (m *manager) CompleteSwap(r *Record) error {
	m.mu.Lock()
	delete(m.ongoing, r.ID())
	m.past[r.ID()] = r
	m.mu.Unlock()

	if err := m.db.PutSwap(r); err != nil {
		return err
	}
	if m.events != nil {
		m.events.Publish(Event{
			Kind:    EventKindForState(r.Kind, r.State()),
			SwapID:  r.ID(),
			State:   r.State(),
			Details: DetailsFor(r),
		})
	}
	return nil
}
