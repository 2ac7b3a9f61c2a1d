// Package connectiontest provides in-process agents connected through a
// loopback network for protocol tests.
package connectiontest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/YasiruR/didcomm-engine/core/connection"
	"github.com/YasiruR/didcomm-engine/core/did"
	"github.com/YasiruR/didcomm-engine/core/invitation"
	"github.com/YasiruR/didcomm-engine/crypto"
	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/exchange"
	"github.com/YasiruR/didcomm-engine/log"
	"github.com/YasiruR/didcomm-engine/wallet"
	"github.com/YasiruR/didcomm-engine/wallet/stores"
	"github.com/stretchr/testify/require"
)

// Network delivers envelopes between nodes by endpoint. Delivery is
// asynchronous as with the http transport.
type Network struct {
	nodes    map[string]*Node
	captured map[string][][]byte
	mu       sync.Mutex
}

func NewNetwork() *Network {
	return &Network{nodes: map[string]*Node{}, captured: map[string][][]byte{}}
}

func (n *Network) Send(_ context.Context, _ string, data []byte, endpoint string) error {
	n.mu.Lock()
	nd, ok := n.nodes[endpoint]
	n.captured[endpoint] = append(n.captured[endpoint], data)
	n.mu.Unlock()

	if !ok {
		return &domain.TransportError{Endpoint: endpoint, Status: 404, Body: `not found`}
	}
	if nd.Silent {
		return nil
	}

	go nd.Receive(data)
	return nil
}

// Sent returns the envelopes sent to the endpoint
func (n *Network) Sent(endpoint string) [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([][]byte(nil), n.captured[endpoint]...)
}

func (n *Network) Remove(endpoint string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.nodes, endpoint)
}

type Node struct {
	Endpoint    string
	Silent      bool
	Engine      *exchange.Engine
	Wallet      *wallet.Wallet
	Packer      *crypto.Packer
	DIDExchange *connection.Protocol
	OOB         *invitation.Protocol
	Errs        chan error
}

// AddNode creates a node with the invitation and did exchange protocols
// in addition to the given ones
func (n *Network) AddNode(t testing.TB, label string, timeout time.Duration, protocols ...exchange.Protocol) *Node {
	logger := log.NewLogger(false)
	du := did.NewHandler(50)
	endpoint := `http://` + label + `.test`
	w, err := wallet.New(wallet.Config{ID: label, Label: label, Endpoint: endpoint}, crypto.NewKeyManager(), du, stores.NewMemory(), logger)
	require.NoError(t, err)

	packer := crypto.NewPacker(crypto.NewEncryptor(), logger)
	nd := &Node{
		Endpoint:    endpoint,
		Wallet:      w,
		Packer:      packer,
		DIDExchange: connection.New(du, nil, logger),
		OOB:         invitation.New(logger),
		Errs:        make(chan error, 100),
	}
	nd.Engine = exchange.NewEngine(exchange.Config{
		Packer:    packer,
		Client:    n,
		Protocols: exchange.NewProtocols(append(protocols, nd.DIDExchange, nd.OOB)...),
		Logger:    logger,
		Timeout:   timeout,
	})

	n.mu.Lock()
	n.nodes[endpoint] = nd
	n.mu.Unlock()
	return nd
}

// Receive unpacks the envelope and delivers it to the exchange owning the
// recipient key, or to a new exchange
func (nd *Node) Receive(data []byte) {
	un, err := nd.Packer.Unpack(data, nd.Wallet.Keys())
	if err != nil {
		nd.fail(err)
		return
	}

	msg, err := models.ParseEndpointMessage(un.Message)
	if err != nil {
		nd.fail(err)
		return
	}
	msg = msg.WithTransport(un.SenderVerkey, un.RecipientVerkey)

	ex, ok := nd.Engine.Registry().Lookup(un.RecipientVerkey)
	if !ok {
		ex = nd.Engine.NewExchange(exchange.WalletKey.Bind(nd.Wallet))
	}

	if err = ex.Deliver(context.Background(), msg); err != nil {
		nd.fail(err)
	}
}

func (nd *Node) fail(err error) {
	select {
	case nd.Errs <- err:
	default:
	}
}

func (nd *Node) Invite(t testing.TB, multiUse bool) models.Invitation {
	ex := nd.Engine.NewExchange(exchange.WalletKey.Bind(nd.Wallet))
	require.NoError(t, ex.WithProtocol(messages.ProtocolOOB).
		Do(context.Background(), nd.OOB.Create(models.InviteOptions{MultiUse: multiUse})).Err())

	inv, ok := exchange.InvitationKey.From(ex)
	require.True(t, ok)
	return inv
}

func (nd *Node) Accept(url string) (*exchange.Exchange, error) {
	ex := nd.Engine.NewExchange(exchange.WalletKey.Bind(nd.Wallet))
	err := ex.WithProtocol(messages.ProtocolOOB).
		Do(context.Background(), nd.OOB.Receive(url)).
		WithProtocol(messages.ProtocolDIDExchange).
		Do(context.Background(), nd.DIDExchange.Request(``), nd.DIDExchange.AwaitActive()).
		Err()
	return ex, err
}

func (nd *Node) Connections(state models.ConnectionState) []models.Connection {
	var conns []models.Connection
	for _, c := range nd.Wallet.Connections() {
		if c.State == state {
			conns = append(conns, c)
		}
	}
	return conns
}

// Exchange returns the exchange of an active connection
func (nd *Node) Exchange(conn models.Connection) *exchange.Exchange {
	if ex, ok := nd.Engine.Registry().Lookup(conn.MyVerkey); ok {
		return ex
	}

	ex := nd.Engine.NewExchange(exchange.WalletKey.Bind(nd.Wallet), exchange.ConnectionKey.Bind(conn))
	ex.Own(conn.MyVerkey)
	return ex
}

// Connect runs the handshake between the nodes and returns the exchanges of
// the active connection on both sides
func Connect(t testing.TB, inviter, invitee *Node) (inviterEx, inviteeEx *exchange.Exchange) {
	inv := inviter.Invite(t, false)
	inviteeEx, err := invitee.Accept(inv.URL)
	require.NoError(t, err)

	conn, ok := exchange.ConnectionKey.From(inviteeEx)
	require.True(t, ok)

	var mine models.Connection
	require.Eventually(t, func() bool {
		for _, c := range inviter.Connections(models.ConnActive) {
			if c.ThreadID == conn.ThreadID {
				mine = c
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	return inviter.Exchange(mine), inviteeEx
}
