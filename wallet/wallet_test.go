package wallet

import (
	"errors"
	"sync"
	"testing"

	"github.com/YasiruR/didcomm-engine/core/did"
	"github.com/YasiruR/didcomm-engine/crypto"
	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/log"
	"github.com/YasiruR/didcomm-engine/wallet/stores"
	"github.com/stretchr/testify/require"
)

func newTestWallet(t *testing.T, store stores.Store) *Wallet {
	w, err := New(Config{ID: `w1`, Label: `alice`, Endpoint: `http://localhost:8000`},
		crypto.NewKeyManager(), did.NewHandler(10), store, log.NewLogger(false))
	require.NoError(t, err)
	return w
}

func TestWallet_CreateDID(t *testing.T) {
	r := require.New(t)
	w := newTestWallet(t, stores.NewMemory())

	peer, doc, err := w.CreateDID(models.MethodPeer)
	r.NoError(err)
	r.Equal(peer.URI, doc.Id)
	r.True(peer.Local())
	r.True(w.Keys().Has(peer.Verkey))

	key, _, err := w.CreateDID(models.MethodKey)
	r.NoError(err)
	r.Contains(key.URI, `did:key:`)

	got, err := w.Did(peer.URI)
	r.NoError(err)
	r.Equal(peer, got)
}

func TestWallet_ConcurrentDIDCreation(t *testing.T) {
	w := newTestWallet(t, stores.NewMemory())

	var wg sync.WaitGroup
	uris := make([]string, 20)
	for i := range uris {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, _, err := w.CreateDID(models.MethodPeer)
			require.NoError(t, err)
			uris[i] = d.URI
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, u := range uris {
		require.False(t, seen[u])
		seen[u] = true
	}
}

func TestWallet_UpdateConnectionIsCopyOnWrite(t *testing.T) {
	r := require.New(t)
	w := newTestWallet(t, stores.NewMemory())

	r.NoError(w.SaveConnection(models.Connection{ID: `c1`, State: models.ConnRequest, ThreadID: `th1`, MyVerkey: `vk1`}))

	failure := errors.New(`boom`)
	_, err := w.UpdateConnection(`c1`, func(c *models.Connection) error {
		c.State = models.ConnActive
		return failure
	})
	r.ErrorIs(err, failure)

	c, err := w.Connection(`c1`)
	r.NoError(err)
	r.Equal(models.ConnRequest, c.State)

	c, err = w.UpdateConnection(`c1`, func(c *models.Connection) error {
		c.State = models.ConnResponse
		return nil
	})
	r.NoError(err)
	r.Equal(models.ConnResponse, c.State)

	c, err = w.ConnectionByThread(`th1`)
	r.NoError(err)
	r.Equal(`c1`, c.ID)

	c, err = w.ConnectionByVerkey(`vk1`)
	r.NoError(err)
	r.Equal(`c1`, c.ID)

	_, err = w.ConnectionByThread(`unknown`)
	r.ErrorIs(err, domain.ErrRecordNotFound)
}

func TestWallet_SingleActiveConnectionPerDIDPair(t *testing.T) {
	r := require.New(t)
	w := newTestWallet(t, stores.NewMemory())

	r.NoError(w.SaveConnection(models.Connection{ID: `c1`, State: models.ConnActive, MyDid: `a`, TheirDid: `b`}))
	err := w.SaveConnection(models.Connection{ID: `c2`, State: models.ConnActive, MyDid: `a`, TheirDid: `b`})
	r.ErrorIs(err, domain.ErrInvalidConnectionState)
	r.Len(w.Connections(), 1)
}

func TestWallet_Invitations(t *testing.T) {
	r := require.New(t)
	w := newTestWallet(t, stores.NewMemory())

	r.NoError(w.SaveInvitation(models.Invitation{ID: `inv1`, State: models.InvCreated}))
	r.ErrorIs(w.SaveInvitation(models.Invitation{ID: `inv1`}), domain.ErrWallet)

	inv, err := w.UpdateInvitation(`inv1`, func(inv *models.Invitation) error {
		inv.State = models.InvUsed
		inv.UsedBy = append(inv.UsedBy, `th1`)
		return nil
	})
	r.NoError(err)
	r.Equal([]string{`th1`}, inv.UsedBy)

	_, err = w.Invitation(`unknown`)
	r.ErrorIs(err, domain.ErrUnknownInvitation)
}

func TestWallet_PersistsAcrossRestarts(t *testing.T) {
	r := require.New(t)
	path := t.TempDir()

	store, err := stores.NewBadger(path)
	r.NoError(err)
	w := newTestWallet(t, store)

	d, _, err := w.CreateDID(models.MethodPeer)
	r.NoError(err)
	r.NoError(w.SaveConnection(models.Connection{ID: `c1`, State: models.ConnActive, MyDid: d.URI, MyVerkey: d.Verkey}))
	r.NoError(w.SaveInvitation(models.Invitation{ID: `inv1`}))
	r.NoError(w.Close())

	store, err = stores.NewBadger(path)
	r.NoError(err)
	restored := newTestWallet(t, store)
	defer restored.Close()

	r.True(restored.Keys().Has(d.Verkey))
	got, err := restored.Did(d.URI)
	r.NoError(err)
	r.Equal(d, got)

	c, err := restored.Connection(`c1`)
	r.NoError(err)
	r.Equal(models.ConnActive, c.State)

	_, err = restored.Invitation(`inv1`)
	r.NoError(err)
}
