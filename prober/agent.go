package prober

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/YasiruR/didcomm-engine/core/connection"
	"github.com/YasiruR/didcomm-engine/core/credential"
	"github.com/YasiruR/didcomm-engine/core/discovery"
	"github.com/YasiruR/didcomm-engine/core/invitation"
	"github.com/YasiruR/didcomm-engine/core/message"
	"github.com/YasiruR/didcomm-engine/core/proof"
	"github.com/YasiruR/didcomm-engine/core/trustping"
	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/container"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/domain/services"
	"github.com/YasiruR/didcomm-engine/exchange"
	"github.com/YasiruR/didcomm-engine/wallet"
	"github.com/bluele/gcache"
	"github.com/tryfix/log"
)

const (
	replayCacheSize = 1024
	replayTTL       = 10 * time.Minute
)

// Prober is the agent facade over the exchange engine. Every connection is
// served by a single exchange which owns the verkey of the connection.
type Prober struct {
	label   string
	wallet  *wallet.Wallet
	packer  services.Packer
	engine  *exchange.Engine
	oob     *invitation.Protocol
	didx    *connection.Protocol
	ping    *trustping.Protocol
	msg     *message.Protocol
	cred    *credential.Protocol
	proof   *proof.Protocol
	disc    *discovery.Protocol
	replays gcache.Cache
	// serializes request-reply actions per connection
	locks *sync.Map
	log   log.Logger
}

func NewProber(c *container.Container) (p *Prober, err error) {
	if c.Wallet == nil {
		return nil, fmt.Errorf(`container has no wallet - %w`, domain.ErrWallet)
	}

	held := credential.NewAttributeFormat(c.Store)
	proofs := proof.NewAttributeProof(held)

	p = &Prober{
		label:   c.Cfg.Label,
		wallet:  c.Wallet,
		packer:  c.Packer,
		oob:     invitation.New(c.Log),
		didx:    connection.New(c.DIDUtils, c.Notifier, c.Log),
		ping:    trustping.New(c.Notifier, c.Log),
		msg:     message.New(c.Notifier, c.Log),
		cred:    credential.New(held, held, c.Notifier, c.Log),
		proof:   proof.New(proofs, proofs, c.Notifier, c.Log),
		disc:    discovery.New(c.Log),
		replays: gcache.New(replayCacheSize).LRU().Expiration(replayTTL).Build(),
		locks:   &sync.Map{},
		log:     c.Log,
	}

	p.engine = exchange.NewEngine(exchange.Config{
		Packer:    c.Packer,
		Client:    c.Client,
		Protocols: exchange.NewProtocols(p.oob, p.didx, p.ping, p.msg, p.cred, p.proof, p.disc),
		Logger:    c.Log,
		Timeout:   c.Cfg.AwaitTimeout,
	})

	if c.Server != nil {
		p.initHandlers(c.Server)
	}
	return p, nil
}

func (p *Prober) initHandlers(serv services.Server) {
	envelopes := make(chan models.Message)
	serv.AddHandler(domain.MsgTypEnvelope, envelopes, true)
	go p.listen(envelopes)
}

func (p *Prober) listen(envelopes chan models.Message) {
	for m := range envelopes {
		go func(data []byte) {
			if err := p.Receive(context.Background(), data); err != nil {
				p.log.Error(err)
			}
		}(m.Data)
	}
}

// Receive unpacks an inbound envelope and delivers it to the exchange owning
// its recipient key. Messages of a sender already seen with the same id are
// dropped.
func (p *Prober) Receive(ctx context.Context, data []byte) error {
	un, err := p.packer.Unpack(data, p.wallet.Keys())
	if err != nil {
		return fmt.Errorf(`unpacking envelope failed - %w`, err)
	}

	msg, err := models.ParseEndpointMessage(un.Message)
	if err != nil {
		return fmt.Errorf(`parsing inbound message failed - %w`, err)
	}
	msg = msg.WithTransport(un.SenderVerkey, un.RecipientVerkey)

	replayID := un.SenderVerkey + `|` + msg.ID
	if p.replays.Has(replayID) {
		p.log.Debug(fmt.Sprintf(`replayed message %s (%s) ignored`, msg.ID, msg.Type))
		return nil
	}
	if err = p.replays.Set(replayID, struct{}{}); err != nil {
		p.log.Error(fmt.Sprintf(`caching message id %s failed - %v`, msg.ID, err))
	}

	ex, ok := p.engine.Registry().Lookup(un.RecipientVerkey)
	if !ok {
		ex = p.engine.NewExchange(exchange.WalletKey.Bind(p.wallet))
	}

	if err = ex.Deliver(ctx, msg); err != nil {
		return fmt.Errorf(`processing %s failed - %w`, msg.Type, err)
	}
	return nil
}

func (p *Prober) Invite(ctx context.Context, opts models.InviteOptions) (models.Invitation, error) {
	ex := p.engine.NewExchange(exchange.WalletKey.Bind(p.wallet))
	if err := ex.WithProtocol(messages.ProtocolOOB).Do(ctx, p.oob.Create(opts)).Err(); err != nil {
		return models.Invitation{}, fmt.Errorf(`creating invitation failed - %w`, err)
	}

	inv, _ := exchange.InvitationKey.From(ex)
	p.log.Info(fmt.Sprintf(`invitation %s created`, inv.ID))
	return inv, nil
}

func (p *Prober) Accept(ctx context.Context, url string) (models.Connection, error) {
	ex := p.engine.NewExchange(exchange.WalletKey.Bind(p.wallet))
	err := ex.WithProtocol(messages.ProtocolOOB).
		Do(ctx, p.oob.Receive(url)).
		WithProtocol(messages.ProtocolDIDExchange).
		Do(ctx, p.didx.Request(p.label), p.didx.AwaitActive()).
		Err()
	if err != nil {
		return models.Connection{}, fmt.Errorf(`accepting invitation failed - %w`, err)
	}

	conn, _ := exchange.ConnectionKey.From(ex)
	p.log.Info(fmt.Sprintf(`connection %s with %s is active`, conn.ID, conn.TheirLabel))
	return conn, nil
}

// Ping measures the round trip of a trust ping over the connection
func (p *Prober) Ping(ctx context.Context, connID string) (latency time.Duration, err error) {
	ex, err := p.exchange(connID)
	if err != nil {
		return 0, err
	}

	err = ex.WithProtocol(messages.ProtocolTrustPing).Do(ctx, exchange.Action{
		Protocol: messages.ProtocolTrustPing,
		Name:     `ping`,
		Run: func(ctx context.Context, ex *exchange.Exchange) error {
			conn, err := connection.Active(ex)
			if err != nil {
				return err
			}

			ping := trustping.NewPing(``, true)
			start := time.Now()
			if _, err = connection.Send(ctx, ex, conn, ping); err != nil {
				return err
			}

			if _, err = trustping.AwaitResponse(ctx, ex, ping.Id); err != nil {
				return err
			}
			latency = time.Since(start)
			return nil
		},
	}).Err()
	if err != nil {
		return 0, fmt.Errorf(`ping on connection %s failed - %w`, connID, err)
	}

	p.log.Debug(fmt.Sprintf(`ping on connection %s took %s`, connID, latency))
	return latency, nil
}

func (p *Prober) SendMessage(ctx context.Context, connID, content string) error {
	ex, err := p.exchange(connID)
	if err != nil {
		return err
	}

	if err = ex.WithProtocol(messages.ProtocolBasicMessage).Do(ctx, p.msg.Send(content)).Err(); err != nil {
		return fmt.Errorf(`sending message on connection %s failed - %w`, connID, err)
	}
	return nil
}

func (p *Prober) Query(ctx context.Context, connID, query string) ([]messages.Feature, error) {
	ex, unlock, err := p.lockedExchange(connID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = ex.WithProtocol(messages.ProtocolDiscovery).Do(ctx, p.disc.Query(query, ``), p.disc.AwaitDisclose()).Err()
	if err != nil {
		return nil, fmt.Errorf(`querying features on connection %s failed - %w`, connID, err)
	}

	features, _ := discovery.FeaturesKey.From(ex)
	return features, nil
}

// OfferCredential issues a credential with the attributes and returns once
// the holder acknowledged it
func (p *Prober) OfferCredential(ctx context.Context, connID string, attrs []messages.Attribute) error {
	ex, unlock, err := p.lockedExchange(connID)
	if err != nil {
		return err
	}
	defer unlock()

	err = ex.WithProtocol(messages.ProtocolCredential).Do(ctx, p.cred.Offer(attrs, ``), p.cred.AwaitAck()).Err()
	if err != nil {
		return fmt.Errorf(`issuing credential on connection %s failed - %w`, connID, err)
	}
	return nil
}

func (p *Prober) RequestProof(ctx context.Context, connID string, attrs []string) (map[string]string, error) {
	ex, unlock, err := p.lockedExchange(connID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = ex.WithProtocol(messages.ProtocolProof).Do(ctx, p.proof.Request(attrs, ``), p.proof.AwaitPresentation()).Err()
	if err != nil {
		return nil, fmt.Errorf(`requesting proof on connection %s failed - %w`, connID, err)
	}

	res, _ := proof.ResultKey.From(ex)
	return res.Revealed, nil
}

func (p *Prober) Connection(id string) (models.Connection, error) {
	return p.wallet.Connection(id)
}

func (p *Prober) Connections() []models.Connection {
	return p.wallet.Connections()
}

// exchange returns the exchange serving the connection, which is created for
// connections established before the agent was started
func (p *Prober) exchange(connID string) (*exchange.Exchange, error) {
	conn, err := p.wallet.Connection(connID)
	if err != nil {
		return nil, err
	}

	if ex, ok := p.engine.Registry().Lookup(conn.MyVerkey); ok {
		return ex, nil
	}

	ex := p.engine.NewExchange(exchange.WalletKey.Bind(p.wallet), exchange.ConnectionKey.Bind(conn))
	ex.Own(conn.MyVerkey)
	return ex, nil
}

func (p *Prober) lockedExchange(connID string) (*exchange.Exchange, func(), error) {
	ex, err := p.exchange(connID)
	if err != nil {
		return nil, nil, err
	}

	mu, _ := p.locks.LoadOrStore(connID, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	return ex, mu.(*sync.Mutex).Unlock, nil
}
