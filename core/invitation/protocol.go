package invitation

import (
	"context"
	"fmt"
	"time"

	"github.com/YasiruR/didcomm-engine/core/did"
	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/exchange"
	"github.com/google/uuid"
	"github.com/tryfix/log"
)

const (
	roleSender   = `sender`
	roleReceiver = `receiver`
	inlineSvc    = `#inline`
)

var accept = []string{`didcomm/aip1`, `didcomm/aip2;env=rfc19`}

// Protocol implements out-of-band invitations (RFC-0434). Invitations are
// transferred out of band, hence there is no inbound message to handle.
type Protocol struct {
	log log.Logger
}

func New(logger log.Logger) *Protocol {
	return &Protocol{log: logger}
}

func (p *Protocol) ID() string {
	return messages.ProtocolOOB
}

func (p *Protocol) Roles() []string {
	return []string{roleSender, roleReceiver}
}

func (p *Protocol) HandleInbound(_ context.Context, _ *exchange.Exchange, msg models.EndpointMessage) error {
	return fmt.Errorf(`invitation %s received over didcomm - %w`, msg.ID, domain.ErrUnsupportedMessageType)
}

// Create generates a new invitation key and stores the invitation in the
// wallet. The exchange owns the invitation key afterwards so that requests
// sent to it are routed back.
func (p *Protocol) Create(opts models.InviteOptions) exchange.Action {
	return exchange.Action{Protocol: messages.ProtocolOOB, Name: `create invitation`, Run: func(_ context.Context, ex *exchange.Exchange) error {
		w, err := exchange.Wallet(ex)
		if err != nil {
			return err
		}

		kp, err := w.CreateKey()
		if err != nil {
			return fmt.Errorf(`creating invitation key failed - %w`, err)
		}

		recKey, err := did.DIDKey(kp.Verkey)
		if err != nil {
			return fmt.Errorf(`encoding invitation key failed - %v: %w`, err, domain.ErrWallet)
		}

		var routingKeys []string
		for _, rk := range w.RoutingKeys() {
			k, err := did.DIDKey(rk)
			if err != nil {
				return fmt.Errorf(`encoding routing key failed - %v: %w`, err, domain.ErrValidation)
			}
			routingKeys = append(routingKeys, k)
		}

		label := opts.Label
		if label == `` {
			label = w.Label()
		}

		inv := messages.Invitation{
			Id:                 uuid.New().String(),
			Type:               messages.OOBInvitationV1_1,
			Label:              label,
			GoalCode:           opts.GoalCode,
			Goal:               opts.Goal,
			Accept:             accept,
			HandshakeProtocols: []string{messages.HandshakeDIDExchange},
			Services: []messages.Service{{
				Id:              inlineSvc,
				Type:            domain.ServcDIDComm,
				RecipientKeys:   []string{recKey},
				RoutingKeys:     routingKeys,
				ServiceEndpoint: w.Endpoint(),
			}},
		}

		url, err := Encode(w.Endpoint(), inv)
		if err != nil {
			return err
		}

		rec := models.Invitation{
			ID:              inv.Id,
			Label:           label,
			InvitationKey:   kp.Verkey,
			RecipientKeys:   []string{kp.Verkey},
			ServiceEndpoint: w.Endpoint(),
			RoutingKeys:     w.RoutingKeys(),
			Goal:            opts.Goal,
			GoalCode:        opts.GoalCode,
			MultiUse:        opts.MultiUse,
			State:           models.InvCreated,
			URL:             url,
			CreatedAt:       time.Now(),
		}

		if err = w.SaveInvitation(rec); err != nil {
			return fmt.Errorf(`saving invitation failed - %w`, err)
		}

		ex.Attach(exchange.InvitationKey.Bind(rec))
		ex.Own(kp.Verkey)
		p.log.Debug(fmt.Sprintf(`invitation %s created by wallet %s`, inv.Id, w.ID()))
		return nil
	}}
}

// Receive parses an invitation url and attaches the invitation to the
// exchange. The same invitation received twice is reused.
func (p *Protocol) Receive(rawURL string) exchange.Action {
	return exchange.Action{Protocol: messages.ProtocolOOB, Name: `receive invitation`, Run: func(_ context.Context, ex *exchange.Exchange) error {
		w, err := exchange.Wallet(ex)
		if err != nil {
			return err
		}

		inv, err := ParseURL(rawURL)
		if err != nil {
			return err
		}

		rec, err := Record(inv)
		if err != nil {
			return err
		}
		rec.URL = rawURL

		if existing, err := w.Invitation(inv.Id); err == nil {
			if existing.State == models.InvCreated {
				return fmt.Errorf(`invitation %s was created by this wallet - %w`, inv.Id, domain.ErrValidation)
			}
			rec = existing
		} else if err = w.SaveInvitation(rec); err != nil {
			return fmt.Errorf(`saving invitation failed - %w`, err)
		}

		ex.Attach(exchange.InvitationKey.Bind(rec))
		p.log.Debug(fmt.Sprintf(`invitation %s from %s received by wallet %s`, inv.Id, inv.Label, w.ID()))
		return nil
	}}
}

// Record converts a received invitation into its stored form using the
// first service with a recipient key
func Record(inv messages.Invitation) (models.Invitation, error) {
	for _, s := range inv.Services {
		if len(s.RecipientKeys) == 0 {
			continue
		}

		recKeys, err := verkeys(s.RecipientKeys)
		if err != nil {
			return models.Invitation{}, err
		}

		routingKeys, err := verkeys(s.RoutingKeys)
		if err != nil {
			return models.Invitation{}, err
		}

		return models.Invitation{
			ID:              inv.Id,
			Label:           inv.Label,
			InvitationKey:   recKeys[0],
			RecipientKeys:   recKeys,
			ServiceEndpoint: s.ServiceEndpoint,
			RoutingKeys:     routingKeys,
			Goal:            inv.Goal,
			GoalCode:        inv.GoalCode,
			State:           models.InvReceived,
			CreatedAt:       time.Now(),
		}, nil
	}

	return models.Invitation{}, fmt.Errorf(`no recipient key found for a service of invitation %s - %w`, inv.Id, domain.ErrValidation)
}

func verkeys(keys []string) ([]string, error) {
	var vks []string
	for _, k := range keys {
		vk, err := did.Verkey(k)
		if err != nil {
			return nil, err
		}
		vks = append(vks, vk)
	}
	return vks, nil
}
