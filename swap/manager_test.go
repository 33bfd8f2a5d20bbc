package swap

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeDB struct {
	mu   sync.Mutex
	rows map[string]*Record
}

func newFakeDB() *fakeDB { return &fakeDB{rows: make(map[string]*Record)} }

func (f *fakeDB) PutSwap(r *Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[r.ID()] = r
	return nil
}

func (f *fakeDB) GetAllSwaps() ([]*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Record, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, r)
	}
	return out, nil
}

func newSendRecord(id string, state State) *Record {
	return &Record{Kind: KindSend, Send: &Send{Base: Base{ID: id, State: state, LastUpdatedAt: time.Now()}}}
}

func TestManagerAddAndGetOngoing(t *testing.T) {
	db := newFakeDB()
	m, err := NewManager(db, nil)
	require.NoError(t, err)

	r := newSendRecord("swap1", StateCreated)
	require.NoError(t, m.AddSwap(r))

	got, err := m.GetOngoingSwap("swap1")
	require.NoError(t, err)
	require.Equal(t, r, got)
	require.True(t, m.HasOngoingSwap("swap1"))
}

func TestManagerCompleteSwapMovesToPast(t *testing.T) {
	db := newFakeDB()
	events := NewEventBus()
	m, err := NewManager(db, events)
	require.NoError(t, err)

	r := newSendRecord("swap1", StatePending)
	require.NoError(t, m.AddSwap(r))

	ch, unsub := events.Subscribe()
	defer unsub()

	r.Send.State = StateComplete
	require.NoError(t, m.CompleteSwap(r))

	require.False(t, m.HasOngoingSwap("swap1"))
	got, err := m.GetPastSwap("swap1")
	require.NoError(t, err)
	require.Equal(t, StateComplete, got.State())

	select {
	case ev := <-ch:
		require.Equal(t, "swap1", ev.SwapID)
	case <-time.After(time.Second):
		t.Fatal("expected a swap-updated event")
	}
}

func TestManagerLoadsOnlyNonTerminalAsOngoing(t *testing.T) {
	db := newFakeDB()
	require.NoError(t, db.PutSwap(newSendRecord("ongoing", StatePending)))
	require.NoError(t, db.PutSwap(newSendRecord("done", StateComplete)))

	m, err := NewManager(db, nil)
	require.NoError(t, err)

	require.True(t, m.HasOngoingSwap("ongoing"))
	require.False(t, m.HasOngoingSwap("done"))
}
