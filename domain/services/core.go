package services

import (
	"context"
	"time"

	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
)

/* core services */

type Agent interface {
	Invite(ctx context.Context, opts models.InviteOptions) (models.Invitation, error)
	// Accept is a blocking function which does not return until the connection
	// is active or the await timeout elapses
	Accept(ctx context.Context, url string) (models.Connection, error)
	Ping(ctx context.Context, connID string) (latency time.Duration, err error)
	SendMessage(ctx context.Context, connID, content string) error
	Query(ctx context.Context, connID, query string) ([]messages.Feature, error)
	OfferCredential(ctx context.Context, connID string, attrs []messages.Attribute) error
	RequestProof(ctx context.Context, connID string, attrs []string) (revealed map[string]string, err error)
	Connection(id string) (models.Connection, error)
	Connections() []models.Connection
}

// Wallet holds the keys, dids, connections and invitations of an agent.
// Reads may run concurrently while writes are serialized.
type Wallet interface {
	ID() string
	Label() string
	Endpoint() string
	RoutingKeys() []string
	Keys() KeyStore
	CreateKey() (models.KeyPair, error)
	CreateDID(method models.DIDMethod) (models.Did, messages.DIDDocument, error)
	Did(uri string) (models.Did, error)
	SaveConnection(c models.Connection) error
	// UpdateConnection applies fn on a copy and stores it only if fn succeeds
	UpdateConnection(id string, fn func(c *models.Connection) error) (models.Connection, error)
	// DeleteConnection rolls back a connection whose handshake message could not be sent
	DeleteConnection(id string) error
	Connection(id string) (models.Connection, error)
	ConnectionByThread(thid string) (models.Connection, error)
	ConnectionByVerkey(myVerkey string) (models.Connection, error)
	Connections() []models.Connection
	SaveInvitation(inv models.Invitation) error
	UpdateInvitation(id string, fn func(inv *models.Invitation) error) (models.Invitation, error)
	Invitation(id string) (models.Invitation, error)
	Invitations() []models.Invitation
}

// Discoverer does not respond with a negative answer in any of the cases but rather it
// should only be understood as a reluctance to provide information.
// eg: The missing roles in a response does not say, "I support no roles in this protocol."
// It says, "I support the protocol but I'm providing no detail about specific roles."
// see: https://github.com/hyperledger/aries-rfcs/tree/main/features/0031-discover-features#sparse-responses
type Discoverer interface {
	Features(query string) []messages.Feature
}
