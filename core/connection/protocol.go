package connection

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/YasiruR/didcomm-engine/core/did"
	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/domain/services"
	"github.com/YasiruR/didcomm-engine/exchange"
	"github.com/google/uuid"
	"github.com/tryfix/log"
)

const (
	roleRequester = `requester`
	roleResponder = `responder`
	prefixPeer    = `did:peer:`
)

// Protocol implements DID exchange 1.0 (RFC-0023) on top of the connection
// state machine. The wallet attached to the exchange is the source of truth
// for connection state.
type Protocol struct {
	didUtils services.DIDUtils
	notifier services.Notifier
	log      log.Logger
}

func New(du services.DIDUtils, n services.Notifier, logger log.Logger) *Protocol {
	return &Protocol{didUtils: du, notifier: n, log: logger}
}

func (p *Protocol) ID() string {
	return messages.ProtocolDIDExchange
}

func (p *Protocol) Roles() []string {
	return []string{roleRequester, roleResponder}
}

func (p *Protocol) HandleInbound(ctx context.Context, ex *exchange.Exchange, msg models.EndpointMessage) error {
	switch msg.Type {
	case messages.DIDExchangeReqV1:
		return p.handleRequest(ctx, ex, msg)
	case messages.DIDExchangeResV1:
		return p.handleResponse(ctx, ex, msg)
	case messages.DIDExchangeCompV1:
		return p.handleComplete(ex, msg)
	case messages.DIDExchangeProblemReportV1:
		return p.handleProblem(ex, msg)
	default:
		return fmt.Errorf(`%s - %w`, msg.Type, domain.ErrUnsupportedMessageType)
	}
}

// theirDoc validates the did and doc received from the other party and
// returns the key and service to reach them
func (p *Protocol) theirDoc(theirDid string, att messages.Attachment, sender string) (verkey, endpoint string, routingKeys []string, err error) {
	doc, err := attachedDoc(att)
	if err != nil {
		return ``, ``, nil, err
	}

	verkey, endpoint, routingKeys, err = did.DocVerkey(doc)
	if err != nil {
		return ``, ``, nil, err
	}

	switch {
	case strings.HasPrefix(theirDid, prefixPeer):
		if err = p.didUtils.ValidatePeerDID(theirDid, doc); err != nil {
			return ``, ``, nil, err
		}
	default:
		vk, err := did.Verkey(theirDid)
		if err != nil || vk != verkey {
			return ``, ``, nil, fmt.Errorf(`did %s does not match the attached doc - %w`, theirDid, domain.ErrValidation)
		}
	}

	// the envelope must be authcrypted by the key of the attached doc
	if sender != `` && sender != verkey {
		return ``, ``, nil, fmt.Errorf(`envelope sender %s is not the key of %s - %w`, sender, theirDid, domain.ErrAuthenticationFailed)
	}

	if endpoint == `` {
		return ``, ``, nil, fmt.Errorf(`did doc of %s has no service endpoint - %w`, theirDid, domain.ErrValidation)
	}

	doc.Id = theirDid
	p.didUtils.Store(doc)
	return verkey, endpoint, routingKeys, nil
}

// report sends a problem report on the thread to the given key. Failures are
// only logged since the report is sent on a failure path.
func (p *Protocol) report(ctx context.Context, ex *exchange.Exchange, w services.Wallet, thid, code, reason string, sender string, dest models.Connection) {
	if dest.TheirVerkey == `` || dest.TheirEndpoint == `` {
		return
	}

	kp, err := w.Keys().KeyPair(sender)
	if err != nil {
		p.log.Error(fmt.Sprintf(`problem report on %s not sent - %v`, thid, err))
		return
	}

	pr := messages.ProblemReport{
		Id:          uuid.New().String(),
		Type:        messages.DIDExchangeProblemReportV1,
		Thread:      messages.Thread{ThId: thid},
		Description: messages.Description{Code: code, En: reason},
	}

	if _, err = ex.Send(ctx, exchange.Outbound{
		Message:       pr,
		Sender:        &kp,
		RecipientKeys: []string{dest.TheirVerkey},
		RoutingKeys:   dest.TheirRoutingKeys,
		Endpoint:      dest.TheirEndpoint,
	}); err != nil {
		p.log.Error(fmt.Sprintf(`sending problem report on %s failed - %v`, thid, err))
	}
}

func (p *Protocol) handleProblem(ex *exchange.Exchange, msg models.EndpointMessage) error {
	w, err := exchange.Wallet(ex)
	if err != nil {
		return err
	}

	var pr messages.ProblemReport
	if err = msg.Decode(&pr); err != nil {
		return err
	}

	conn, err := w.ConnectionByThread(msg.ThreadID)
	if err != nil {
		return fmt.Errorf(`problem report on unknown thread %s - %w`, msg.ThreadID, domain.ErrInvalidConnectionState)
	}

	if msg.SenderVerkey != conn.TheirVerkey {
		return fmt.Errorf(`problem report on %s not sent by the other party - %w`, msg.ThreadID, domain.ErrAuthenticationFailed)
	}

	if !conn.State.Terminal() {
		if conn, err = w.UpdateConnection(conn.ID, func(c *models.Connection) error {
			return Transition(c, models.ConnAbandoned)
		}); err != nil {
			return err
		}
	}

	p.log.Info(fmt.Sprintf(`connection %s abandoned by peer (%s: %s)`, conn.ID, pr.Description.Code, pr.Description.En))
	p.publish(domain.TopicProblems, pr)
	p.publish(domain.TopicConnections, conn)
	return nil
}

// abandon moves the connection to abandoned, ignoring terminal connections
func (p *Protocol) abandon(w services.Wallet, conn models.Connection) {
	if conn.State.Terminal() {
		return
	}

	conn, err := w.UpdateConnection(conn.ID, func(c *models.Connection) error {
		return Transition(c, models.ConnAbandoned)
	})
	if err != nil {
		p.log.Error(fmt.Sprintf(`abandoning connection %s failed - %v`, conn.ID, err))
		return
	}
	p.publish(domain.TopicConnections, conn)
}

func (p *Protocol) publish(topic string, payload interface{}) {
	if p.notifier != nil {
		p.notifier.Publish(topic, payload)
	}
}

// problemErr maps a received problem report to an error
func problemErr(msg models.EndpointMessage) error {
	var pr messages.ProblemReport
	if err := msg.Decode(&pr); err != nil {
		return err
	}

	if pr.Description.Code == messages.ProblemInvitationConsumed {
		return fmt.Errorf(`%s - %w`, pr.Description.En, domain.ErrInvitationConsumed)
	}
	return fmt.Errorf(`request rejected with %s (%s) - %w`, pr.Description.Code, pr.Description.En, domain.ErrInvalidConnectionState)
}

var errDuplicate = errors.New(`duplicate request`)
