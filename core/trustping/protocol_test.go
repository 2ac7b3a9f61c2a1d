package trustping_test

import (
	"context"
	"testing"
	"time"

	"github.com/YasiruR/didcomm-engine/core/connection/connectiontest"
	"github.com/YasiruR/didcomm-engine/core/trustping"
	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/exchange"
	"github.com/YasiruR/didcomm-engine/log"
	"github.com/stretchr/testify/require"
)

func TestPingIsAnswered(t *testing.T) {
	r := require.New(t)
	net := connectiontest.NewNetwork()
	alice := net.AddNode(t, `alice`, 2*time.Second, trustping.New(nil, log.NewLogger(false)))
	bobPing := trustping.New(nil, log.NewLogger(false))
	bob := net.AddNode(t, `bob`, 2*time.Second, bobPing)

	_, bobEx := connectiontest.Connect(t, alice, bob)

	err := bobEx.WithProtocol(messages.ProtocolTrustPing).
		Do(context.Background(), bobPing.Send(`hello`, true), bobPing.AwaitResponse()).
		Err()
	r.NoError(err)

	ping, ok := trustping.PingKey.From(bobEx)
	r.True(ok)
	res, ok := bobEx.Last(messages.TrustPingResponseV1)
	r.True(ok)
	r.Equal(ping.Id, res.ThreadID)
	r.Equal(models.Inbound, res.Direction)
}

func TestPingWithoutResponse(t *testing.T) {
	net := connectiontest.NewNetwork()
	alice := net.AddNode(t, `alice`, 2*time.Second, trustping.New(nil, log.NewLogger(false)))
	bobPing := trustping.New(nil, log.NewLogger(false))
	bob := net.AddNode(t, `bob`, 300*time.Millisecond, bobPing)

	_, bobEx := connectiontest.Connect(t, alice, bob)

	err := bobEx.WithProtocol(messages.ProtocolTrustPing).
		Do(context.Background(), bobPing.Send(`no reply`, false), bobPing.AwaitResponse()).
		Err()
	require.ErrorIs(t, err, domain.ErrTimeout)
}

func TestPingRequiresActiveConnection(t *testing.T) {
	net := connectiontest.NewNetwork()
	p := trustping.New(nil, log.NewLogger(false))
	bob := net.AddNode(t, `bob`, time.Second, p)

	conn := models.Connection{ID: `c1`, State: models.ConnResponse, MyVerkey: `vk`}
	require.NoError(t, bob.Wallet.SaveConnection(conn))

	ex := bob.Engine.NewExchange(exchange.WalletKey.Bind(bob.Wallet), exchange.ConnectionKey.Bind(conn))
	err := ex.WithProtocol(messages.ProtocolTrustPing).Do(context.Background(), p.Send(``, true)).Err()
	require.ErrorIs(t, err, domain.ErrInvalidConnectionState)
}

func TestUnsolicitedPingResponse(t *testing.T) {
	r := require.New(t)
	net := connectiontest.NewNetwork()
	alicePing := trustping.New(nil, log.NewLogger(false))
	alice := net.AddNode(t, `alice`, time.Second, alicePing)
	bob := net.AddNode(t, `bob`, time.Second, trustping.New(nil, log.NewLogger(false)))

	aliceEx, _ := connectiontest.Connect(t, alice, bob)
	conn, ok := exchange.ConnectionKey.From(aliceEx)
	r.True(ok)

	// alice answers a ping bob never sent
	_, err := alicePing.Respond(context.Background(), aliceEx, conn, `unknown-ping`)
	r.NoError(err)

	select {
	case err = <-bob.Errs:
		r.ErrorIs(err, domain.ErrValidation)
	case <-time.After(2 * time.Second):
		t.Fatal(`unsolicited response was accepted`)
	}
}
