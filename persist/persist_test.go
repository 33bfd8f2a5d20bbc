package persist

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/breez/breez-sdk-liquid-core/swap"
)

func newTestPersister(t *testing.T) *Persister {
	t.Helper()
	p, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPutAndGetSendSwap(t *testing.T) {
	p := newTestPersister(t)
	r := &swap.Record{Kind: swap.KindSend, Send: &swap.Send{
		Base: swap.Base{ID: "s1", State: swap.StateCreated, CreatedAt: time.Now(), LastUpdatedAt: time.Now(), Version: 1},
		Invoice: "lnbc1...", PaymentHash: []byte{1, 2, 3},
	}}
	require.NoError(t, p.PutSwap(r))

	all, err := p.GetAllSwaps()
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, swap.KindSend, all[0].Kind)
	require.Equal(t, "s1", all[0].ID())
	require.Equal(t, "lnbc1...", all[0].Send.Invoice)
}

func TestPutSwapUpsertBumpsVersionViaTrigger(t *testing.T) {
	p := newTestPersister(t)
	r := &swap.Record{Kind: swap.KindSend, Send: &swap.Send{
		Base: swap.Base{ID: "s1", State: swap.StateCreated, CreatedAt: time.Now(), LastUpdatedAt: time.Now(), Version: 1},
		Invoice: "lnbc1...",
	}}
	require.NoError(t, p.PutSwap(r))

	r.Send.State = swap.StatePending
	require.NoError(t, p.PutSwap(r))

	all, err := p.GetAllSwaps()
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, swap.StatePending, all[0].State())
	require.EqualValues(t, 2, all[0].Version())
}

func TestGetAllSwapsAcrossAllThreeKinds(t *testing.T) {
	p := newTestPersister(t)
	require.NoError(t, p.PutSwap(&swap.Record{Kind: swap.KindSend, Send: &swap.Send{
		Base: swap.Base{ID: "send1", State: swap.StateCreated, CreatedAt: time.Now(), LastUpdatedAt: time.Now()},
	}}))
	require.NoError(t, p.PutSwap(&swap.Record{Kind: swap.KindReceive, Receive: &swap.Receive{
		Base: swap.Base{ID: "recv1", State: swap.StateCreated, CreatedAt: time.Now(), LastUpdatedAt: time.Now()},
		MrhAddress: "lq1...",
	}}))
	require.NoError(t, p.PutSwap(&swap.Record{Kind: swap.KindChain, Chain: &swap.Chain{
		Base: swap.Base{ID: "chain1", State: swap.StateCreated, CreatedAt: time.Now(), LastUpdatedAt: time.Now()},
		LockupAddress: "bc1...", Direction: swap.ChainOutgoing,
	}}))

	all, err := p.GetAllSwaps()
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestReserveAddressRejectsDuplicateUnexpired(t *testing.T) {
	p := newTestPersister(t)
	require.NoError(t, p.ReserveAddress("addr1", 100, 10))
	err := p.ReserveAddress("addr1", 200, 10)
	require.ErrorIs(t, err, ErrAddressAlreadyReserved)
}

func TestReserveAddressAllowsReuseAfterExpiry(t *testing.T) {
	p := newTestPersister(t)
	require.NoError(t, p.ReserveAddress("addr1", 100, 10))
	require.NoError(t, p.ReserveAddress("addr1", 300, 150))

	reserved, err := p.IsAddressReserved("addr1", 150)
	require.NoError(t, err)
	require.True(t, reserved)
}

func TestExpireReservations(t *testing.T) {
	p := newTestPersister(t)
	require.NoError(t, p.ReserveAddress("addr1", 100, 10))
	require.NoError(t, p.ReserveAddress("addr2", 500, 10))

	n, err := p.ExpireReservations(200)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	reserved, err := p.IsAddressReserved("addr2", 200)
	require.NoError(t, err)
	require.True(t, reserved)
}

func TestBackupRoundTrip(t *testing.T) {
	src := newTestPersister(t)
	require.NoError(t, src.PutSwap(&swap.Record{Kind: swap.KindSend, Send: &swap.Send{
		Base: swap.Base{ID: "s1", State: swap.StateComplete, CreatedAt: time.Now(), LastUpdatedAt: time.Now(), Version: 3},
		Invoice: "lnbc1...",
	}}))

	data, err := src.ExportBackup()
	require.NoError(t, err)

	dst := newTestPersister(t)
	require.NoError(t, dst.ImportBackup(data))

	all, err := dst.GetAllSwaps()
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, swap.StateComplete, all[0].State())
}

func TestImportBackupNeverRegressesVersion(t *testing.T) {
	dst := newTestPersister(t)
	require.NoError(t, dst.PutSwap(&swap.Record{Kind: swap.KindSend, Send: &swap.Send{
		Base: swap.Base{ID: "s1", State: swap.StatePending, CreatedAt: time.Now(), LastUpdatedAt: time.Now(), Version: 5},
	}}))

	stale := backupEnvelope{Version: backupEnvelopeVersion, Swaps: []*swap.Record{{
		Kind: swap.KindSend, Send: &swap.Send{Base: swap.Base{ID: "s1", State: swap.StateCreated, Version: 1}},
	}}}
	data, err := json.Marshal(stale)
	require.NoError(t, err)

	require.NoError(t, dst.ImportBackup(data))

	all, err := dst.GetAllSwaps()
	require.NoError(t, err)
	require.Equal(t, swap.StatePending, all[0].State(), "import must not regress a swap already at a higher version")
}
