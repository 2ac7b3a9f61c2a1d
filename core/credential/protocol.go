package credential

import (
	"context"
	"fmt"

	"github.com/YasiruR/didcomm-engine/core/connection"
	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/domain/services"
	"github.com/YasiruR/didcomm-engine/exchange"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/tryfix/log"
)

const (
	roleIssuer = `issuer`
	roleHolder = `holder`
)

var validate = validator.New()

var (
	// OfferKey holds the last offer sent on an exchange
	OfferKey = exchange.NewKey[messages.CredentialOffer](`credential_offer`)
	// CredentialKey holds the last credential stored by the holder
	CredentialKey = exchange.NewKey[Credential](`credential`)
)

// Event is published on every step of an issuance
type Event struct {
	ConnectionID string      `json:"connection_id"`
	ThreadID     string      `json:"thread_id"`
	State        string      `json:"state"`
	Credential   *Credential `json:"credential,omitempty"`
}

// Protocol implements issue credential 2.0 (RFC-0453) starting with an
// offer of the issuer. Holders request every credential offered to them.
type Protocol struct {
	issuer   Issuer
	holder   Holder
	notifier services.Notifier
	log      log.Logger
}

// New creates the protocol for the roles given. A nil issuer or holder
// disables the role.
func New(i Issuer, h Holder, n services.Notifier, logger log.Logger) *Protocol {
	return &Protocol{issuer: i, holder: h, notifier: n, log: logger}
}

func (p *Protocol) ID() string {
	return messages.ProtocolCredential
}

func (p *Protocol) Roles() []string {
	var roles []string
	if p.issuer != nil {
		roles = append(roles, roleIssuer)
	}
	if p.holder != nil {
		roles = append(roles, roleHolder)
	}
	return roles
}

// Offer sends a credential offer with the attributes over the active
// connection of the exchange
func (p *Protocol) Offer(attrs []messages.Attribute, comment string) exchange.Action {
	return exchange.Action{Protocol: messages.ProtocolCredential, Name: `offer credential`, Run: func(ctx context.Context, ex *exchange.Exchange) error {
		if p.issuer == nil {
			return fmt.Errorf(`%s role - %w`, roleIssuer, domain.ErrUnsupportedProtocol)
		}

		conn, err := connection.Active(ex)
		if err != nil {
			return err
		}

		format, att, err := p.issuer.Offer(attrs)
		if err != nil {
			return err
		}

		offer := messages.CredentialOffer{
			Id:           uuid.New().String(),
			Type:         messages.CredentialOfferV2,
			Comment:      comment,
			Preview:      messages.CredentialPreview{Type: messages.ProtocolCredential + `/credential-preview`, Attributes: attrs},
			Formats:      []messages.AttachFormat{format},
			OffersAttach: []messages.Attachment{att},
		}

		if _, err = connection.Send(ctx, ex, conn, offer); err != nil {
			return err
		}

		ex.Attach(OfferKey.Bind(offer))
		p.publish(conn, offer.Id, `offer-sent`, nil)
		return nil
	}}
}

// AwaitAck blocks until the holder acknowledges the credential issued for
// the last offer
func (p *Protocol) AwaitAck() exchange.Action {
	return exchange.Action{Protocol: messages.ProtocolCredential, Name: `await ack`, Run: func(ctx context.Context, ex *exchange.Exchange) error {
		offer, ok := OfferKey.From(ex)
		if !ok {
			return fmt.Errorf(`no offer sent on exchange %s - %w`, ex.ID(), domain.ErrValidation)
		}

		msg, err := ex.Await(ctx, func(m models.EndpointMessage) bool {
			return m.ThreadID == offer.Id && (m.Type == messages.CredentialAckV2 || m.Type == messages.CredentialProblemReportV2)
		})
		if err != nil {
			return err
		}

		if msg.Type == messages.CredentialProblemReportV2 {
			return connection.Problem(msg)
		}
		return nil
	}}
}

// AwaitCredential blocks until a credential is issued and stored or the
// issuer abandons the issuance
func (p *Protocol) AwaitCredential() exchange.Action {
	return exchange.Action{Protocol: messages.ProtocolCredential, Name: `await credential`, Run: func(ctx context.Context, ex *exchange.Exchange) error {
		msg, err := ex.Await(ctx, func(m models.EndpointMessage) bool {
			return m.Type == messages.CredentialIssueV2 || m.Type == messages.CredentialProblemReportV2
		})
		if err != nil {
			return err
		}

		if msg.Type == messages.CredentialProblemReportV2 {
			return connection.Problem(msg)
		}
		return nil
	}}
}

func (p *Protocol) HandleInbound(ctx context.Context, ex *exchange.Exchange, msg models.EndpointMessage) error {
	conn, err := connection.Inbound(ex, msg)
	if err != nil {
		return err
	}

	switch msg.Type {
	case messages.CredentialOfferV2:
		return p.handleOffer(ctx, ex, conn, msg)
	case messages.CredentialRequestV2:
		return p.handleRequest(ctx, ex, conn, msg)
	case messages.CredentialIssueV2:
		return p.handleIssue(ctx, ex, conn, msg)
	case messages.CredentialAckV2:
		var ack messages.Ack
		if err = msg.Decode(&ack); err != nil {
			return err
		}

		if _, ok := sent(ex, messages.CredentialIssueV2, msg.ThreadID); !ok {
			return fmt.Errorf(`ack on %s without an issued credential - %w`, msg.ThreadID, domain.ErrValidation)
		}

		p.log.Info(fmt.Sprintf(`credential on %s acknowledged by %s`, msg.ThreadID, conn.TheirLabel))
		p.publish(conn, msg.ThreadID, `done`, nil)
		return nil
	case messages.CredentialProblemReportV2:
		err = connection.Problem(msg)
		p.log.Warn(fmt.Sprintf(`issuance abandoned by %s - %v`, conn.TheirLabel, err))
		if p.notifier != nil {
			p.notifier.Publish(domain.TopicProblems, msg.Body)
		}
		return nil
	default:
		return fmt.Errorf(`%s - %w`, msg.Type, domain.ErrUnsupportedMessageType)
	}
}

func (p *Protocol) handleOffer(ctx context.Context, ex *exchange.Exchange, conn models.Connection, msg models.EndpointMessage) error {
	if p.holder == nil {
		return fmt.Errorf(`%s role - %w`, roleHolder, domain.ErrUnsupportedMessageType)
	}

	var offer messages.CredentialOffer
	if err := msg.Decode(&offer); err != nil {
		return err
	}

	if len(offer.OffersAttach) == 0 {
		p.report(ctx, ex, conn, offer.Id, `offer without attachments`)
		return fmt.Errorf(`offer %s has no attachments - %w`, offer.Id, domain.ErrValidation)
	}

	format, att, err := p.holder.Request(conn, offer.OffersAttach[0])
	if err != nil {
		p.report(ctx, ex, conn, offer.Id, err.Error())
		return err
	}

	if _, err = connection.Send(ctx, ex, conn, messages.CredentialRequest{
		Id:             uuid.New().String(),
		Type:           messages.CredentialRequestV2,
		Thread:         messages.Thread{ThId: offer.Id},
		Formats:        []messages.AttachFormat{format},
		RequestsAttach: []messages.Attachment{att},
	}); err != nil {
		return err
	}

	p.publish(conn, offer.Id, `request-sent`, nil)
	return nil
}

func (p *Protocol) handleRequest(ctx context.Context, ex *exchange.Exchange, conn models.Connection, msg models.EndpointMessage) error {
	if p.issuer == nil {
		return fmt.Errorf(`%s role - %w`, roleIssuer, domain.ErrUnsupportedMessageType)
	}

	var req messages.CredentialRequest
	if err := msg.Decode(&req); err != nil {
		return err
	}

	// requests are only accepted for offers sent on this exchange
	offerMsg, ok := sent(ex, messages.CredentialOfferV2, req.Thread.ThId)
	if !ok {
		p.report(ctx, ex, conn, req.Thread.ThId, `no offer on the thread`)
		return fmt.Errorf(`request %s refers to an unknown offer %s - %w`, req.Id, req.Thread.ThId, domain.ErrValidation)
	}

	if _, ok = sent(ex, messages.CredentialIssueV2, req.Thread.ThId); ok {
		p.log.Debug(fmt.Sprintf(`credential on %s already issued, request %s ignored`, req.Thread.ThId, req.Id))
		return nil
	}

	var offer messages.CredentialOffer
	if err := offerMsg.Decode(&offer); err != nil {
		return err
	}

	if len(req.RequestsAttach) == 0 {
		p.report(ctx, ex, conn, offer.Id, `request without attachments`)
		return fmt.Errorf(`request %s has no attachments - %w`, req.Id, domain.ErrValidation)
	}

	format, att, err := p.issuer.Issue(conn, offer.OffersAttach[0], req.RequestsAttach[0])
	if err != nil {
		p.report(ctx, ex, conn, offer.Id, err.Error())
		return err
	}

	if _, err = connection.Send(ctx, ex, conn, messages.CredentialIssue{
		Id:                uuid.New().String(),
		Type:              messages.CredentialIssueV2,
		Thread:            messages.Thread{ThId: offer.Id},
		Formats:           []messages.AttachFormat{format},
		CredentialsAttach: []messages.Attachment{att},
	}); err != nil {
		return err
	}

	p.publish(conn, offer.Id, `credential-issued`, nil)
	return nil
}

func (p *Protocol) handleIssue(ctx context.Context, ex *exchange.Exchange, conn models.Connection, msg models.EndpointMessage) error {
	if p.holder == nil {
		return fmt.Errorf(`%s role - %w`, roleHolder, domain.ErrUnsupportedMessageType)
	}

	var issue messages.CredentialIssue
	if err := msg.Decode(&issue); err != nil {
		return err
	}

	if _, ok := sent(ex, messages.CredentialRequestV2, issue.Thread.ThId); !ok {
		return fmt.Errorf(`credential %s was not requested - %w`, issue.Id, domain.ErrValidation)
	}

	cred, err := p.holder.Store(conn, issue.Thread.ThId, issue.CredentialsAttach[0])
	if err != nil {
		p.report(ctx, ex, conn, issue.Thread.ThId, err.Error())
		return err
	}

	ex.Attach(CredentialKey.Bind(cred))
	if _, err = connection.Send(ctx, ex, conn, messages.Ack{
		Id:     uuid.New().String(),
		Type:   messages.CredentialAckV2,
		Status: messages.AckStatusOK,
		Thread: messages.Thread{ThId: issue.Thread.ThId},
	}); err != nil {
		return err
	}

	p.log.Info(fmt.Sprintf(`credential %s received from %s`, cred.ID, conn.TheirLabel))
	p.publish(conn, issue.Thread.ThId, `done`, &cred)
	return nil
}

func (p *Protocol) report(ctx context.Context, ex *exchange.Exchange, conn models.Connection, thid, reason string) {
	if err := connection.Report(ctx, ex, conn, messages.CredentialProblemReportV2, thid, messages.ProblemIssuanceAbandoned, reason); err != nil {
		p.log.Error(fmt.Sprintf(`sending problem report on %s failed - %v`, thid, err))
	}
}

func (p *Protocol) publish(conn models.Connection, thid, state string, cred *Credential) {
	if p.notifier != nil {
		p.notifier.Publish(domain.TopicCredentials, Event{ConnectionID: conn.ID, ThreadID: thid, State: state, Credential: cred})
	}
}

// sent returns the message of the type sent on the thread by this exchange
func sent(ex *exchange.Exchange, typ, thid string) (models.EndpointMessage, bool) {
	return ex.Find(func(m models.EndpointMessage) bool {
		return m.Direction == models.Outbound && m.Type == typ && m.ThreadID == thid
	})
}
