package connection_test

import (
	"testing"
	"time"

	"github.com/YasiruR/didcomm-engine/core/connection"
	"github.com/YasiruR/didcomm-engine/core/connection/connectiontest"
	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/exchange"
	"github.com/stretchr/testify/require"
)

func TestLifecycle_BothSidesActive(t *testing.T) {
	r := require.New(t)
	net := connectiontest.NewNetwork()
	alice := net.AddNode(t, `alice`, 2*time.Second)
	bob := net.AddNode(t, `bob`, 2*time.Second)

	inv := alice.Invite(t, false)
	ex, err := bob.Accept(inv.URL)
	r.NoError(err)

	bobConn, err := connection.Active(ex)
	r.NoError(err)
	r.Equal(models.RoleInvitee, bobConn.Role)
	r.Equal(`alice`, bobConn.TheirLabel)

	r.Eventually(func() bool { return len(alice.Connections(models.ConnActive)) == 1 }, 2*time.Second, 10*time.Millisecond)
	aliceConn := alice.Connections(models.ConnActive)[0]

	r.Equal(bobConn.MyDid, aliceConn.TheirDid)
	r.Equal(aliceConn.MyDid, bobConn.TheirDid)
	r.Equal(bobConn.MyVerkey, aliceConn.TheirVerkey)
	r.Equal(aliceConn.MyVerkey, bobConn.TheirVerkey)
	r.Equal(bobConn.ThreadID, aliceConn.ThreadID)
	r.Equal(inv.InvitationKey, aliceConn.InvitationKey)
	r.True(alice.Wallet.Keys().Has(aliceConn.MyVerkey))
	r.True(bob.Wallet.Keys().Has(bobConn.MyVerkey))

	used, err := alice.Wallet.Invitation(inv.ID)
	r.NoError(err)
	r.Equal(models.InvUsed, used.State)
	r.Equal([]string{bobConn.ThreadID}, used.UsedBy)

	// history of the requester keeps the order of the handshake
	var types []string
	for _, m := range ex.History() {
		types = append(types, m.Type)
	}
	r.Equal([]string{messages.DIDExchangeReqV1, messages.DIDExchangeResV1, messages.DIDExchangeCompV1}, types)
}

func TestReplayedRequestIsIgnored(t *testing.T) {
	r := require.New(t)
	net := connectiontest.NewNetwork()
	alice := net.AddNode(t, `alice`, 2*time.Second)
	bob := net.AddNode(t, `bob`, 2*time.Second)

	inv := alice.Invite(t, false)
	_, err := bob.Accept(inv.URL)
	r.NoError(err)
	r.Eventually(func() bool { return len(alice.Connections(models.ConnActive)) == 1 }, 2*time.Second, 10*time.Millisecond)

	// the first envelope sent to alice is the request
	request := net.Sent(alice.Endpoint)[0]
	alice.Receive(request)
	alice.Receive(request)

	r.Len(alice.Wallet.Connections(), 1)
	r.Len(alice.Connections(models.ConnActive), 1)
	r.Len(net.Sent(bob.Endpoint), 1)
}

func TestSingleUseInvitationIsConsumed(t *testing.T) {
	r := require.New(t)
	net := connectiontest.NewNetwork()
	alice := net.AddNode(t, `alice`, 2*time.Second)
	bob := net.AddNode(t, `bob`, 2*time.Second)
	carol := net.AddNode(t, `carol`, 2*time.Second)

	inv := alice.Invite(t, false)
	_, err := bob.Accept(inv.URL)
	r.NoError(err)

	_, err = carol.Accept(inv.URL)
	r.ErrorIs(err, domain.ErrInvitationConsumed)

	r.Len(carol.Connections(models.ConnAbandoned), 1)
	r.Empty(carol.Connections(models.ConnActive))
	r.Eventually(func() bool { return len(alice.Connections(models.ConnActive)) == 1 }, 2*time.Second, 10*time.Millisecond)
	r.Len(alice.Wallet.Connections(), 1)
}

func TestMultiUseInvitation(t *testing.T) {
	r := require.New(t)
	net := connectiontest.NewNetwork()
	alice := net.AddNode(t, `alice`, 2*time.Second)
	bob := net.AddNode(t, `bob`, 2*time.Second)
	carol := net.AddNode(t, `carol`, 2*time.Second)

	inv := alice.Invite(t, true)
	_, err := bob.Accept(inv.URL)
	r.NoError(err)
	_, err = carol.Accept(inv.URL)
	r.NoError(err)

	r.Eventually(func() bool { return len(alice.Connections(models.ConnActive)) == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestAwaitResponseFromSilentPeer(t *testing.T) {
	r := require.New(t)
	net := connectiontest.NewNetwork()
	alice := net.AddNode(t, `alice`, time.Second)
	bob := net.AddNode(t, `bob`, 200*time.Millisecond)
	alice.Silent = true

	inv := alice.Invite(t, false)
	start := time.Now()
	_, err := bob.Accept(inv.URL)
	r.ErrorIs(err, domain.ErrTimeout)
	r.Less(time.Since(start), 2*time.Second)

	// the request was sent, hence the connection stays in request state
	r.Len(bob.Connections(models.ConnRequest), 1)
}

func TestRequestToUnreachableEndpoint(t *testing.T) {
	r := require.New(t)
	net := connectiontest.NewNetwork()
	alice := net.AddNode(t, `alice`, time.Second)
	bob := net.AddNode(t, `bob`, time.Second)

	inv := alice.Invite(t, false)
	net.Remove(alice.Endpoint)

	_, err := bob.Accept(inv.URL)
	var terr *domain.TransportError
	r.ErrorAs(err, &terr)
	r.Equal(404, terr.Status)
	r.Empty(bob.Wallet.Connections())
	// the verkey of the request no longer routes to the exchange
	r.Zero(bob.Engine.Registry().Len())
}

func TestActiveRequiresActiveConnection(t *testing.T) {
	net := connectiontest.NewNetwork()
	bob := net.AddNode(t, `bob`, time.Second)
	conn := models.Connection{ID: `c1`, State: models.ConnRequest, MyVerkey: `vk`}
	require.NoError(t, bob.Wallet.SaveConnection(conn))

	ex := bob.Engine.NewExchange(exchange.WalletKey.Bind(bob.Wallet), exchange.ConnectionKey.Bind(conn))
	_, err := connection.Active(ex)
	require.ErrorIs(t, err, domain.ErrInvalidConnectionState)
}
