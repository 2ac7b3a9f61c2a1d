package proof

import (
	"context"
	"fmt"

	"github.com/YasiruR/didcomm-engine/core/connection"
	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/domain/services"
	"github.com/YasiruR/didcomm-engine/exchange"
	"github.com/google/uuid"
	"github.com/tryfix/log"
)

const (
	roleVerifier = `verifier`
	roleProver   = `prover`
)

// Result is the outcome of a verified presentation
type Result struct {
	ConnectionID string            `json:"connection_id"`
	ThreadID     string            `json:"thread_id"`
	Revealed     map[string]string `json:"revealed"`
}

var (
	// RequestKey holds the last presentation request sent on an exchange
	RequestKey = exchange.NewKey[messages.PresentationRequest](`presentation_request`)
	ResultKey  = exchange.NewKey[Result](`presentation_result`)
)

// Protocol implements present proof 2.0 (RFC-0454) starting with a request
// of the verifier. Provers answer requests they hold credentials for.
type Protocol struct {
	verifier Verifier
	prover   Prover
	notifier services.Notifier
	log      log.Logger
}

func New(v Verifier, pr Prover, n services.Notifier, logger log.Logger) *Protocol {
	return &Protocol{verifier: v, prover: pr, notifier: n, log: logger}
}

func (p *Protocol) ID() string {
	return messages.ProtocolProof
}

func (p *Protocol) Roles() []string {
	var roles []string
	if p.verifier != nil {
		roles = append(roles, roleVerifier)
	}
	if p.prover != nil {
		roles = append(roles, roleProver)
	}
	return roles
}

// Request asks the other party of the active connection to present the
// attributes
func (p *Protocol) Request(attrs []string, comment string) exchange.Action {
	return exchange.Action{Protocol: messages.ProtocolProof, Name: `request presentation`, Run: func(ctx context.Context, ex *exchange.Exchange) error {
		if p.verifier == nil {
			return fmt.Errorf(`%s role - %w`, roleVerifier, domain.ErrUnsupportedProtocol)
		}

		conn, err := connection.Active(ex)
		if err != nil {
			return err
		}

		format, att, err := p.verifier.Request(attrs)
		if err != nil {
			return err
		}

		req := messages.PresentationRequest{
			Id:                         uuid.New().String(),
			Type:                       messages.ProofRequestV2,
			Comment:                    comment,
			WillConfirm:                true,
			Formats:                    []messages.AttachFormat{format},
			RequestPresentationsAttach: []messages.Attachment{att},
		}

		if _, err = connection.Send(ctx, ex, conn, req); err != nil {
			return err
		}

		ex.Attach(RequestKey.Bind(req))
		return nil
	}}
}

// AwaitPresentation blocks until the presentation for the last request is
// verified. The result is attached to the exchange.
func (p *Protocol) AwaitPresentation() exchange.Action {
	return exchange.Action{Protocol: messages.ProtocolProof, Name: `await presentation`, Run: func(ctx context.Context, ex *exchange.Exchange) error {
		req, ok := RequestKey.From(ex)
		if !ok {
			return fmt.Errorf(`no presentation requested on exchange %s - %w`, ex.ID(), domain.ErrValidation)
		}

		msg, err := ex.Await(ctx, func(m models.EndpointMessage) bool {
			return m.ThreadID == req.Id && (m.Type == messages.ProofPresentationV2 || m.Type == messages.ProofProblemReportV2)
		})
		if err != nil {
			return err
		}

		if msg.Type == messages.ProofProblemReportV2 {
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
	case messages.ProofRequestV2:
		return p.handleRequest(ctx, ex, conn, msg)
	case messages.ProofPresentationV2:
		return p.handlePresentation(ctx, ex, conn, msg)
	case messages.ProofAckV2:
		var ack messages.Ack
		if err = msg.Decode(&ack); err != nil {
			return err
		}

		if _, ok := sent(ex, messages.ProofPresentationV2, msg.ThreadID); !ok {
			return fmt.Errorf(`ack on %s without a presentation - %w`, msg.ThreadID, domain.ErrValidation)
		}
		p.log.Debug(fmt.Sprintf(`presentation on %s accepted by %s`, msg.ThreadID, conn.TheirLabel))
		return nil
	case messages.ProofProblemReportV2:
		p.log.Warn(fmt.Sprintf(`presentation abandoned by %s - %v`, conn.TheirLabel, connection.Problem(msg)))
		if p.notifier != nil {
			p.notifier.Publish(domain.TopicProblems, msg.Body)
		}
		return nil
	default:
		return fmt.Errorf(`%s - %w`, msg.Type, domain.ErrUnsupportedMessageType)
	}
}

func (p *Protocol) handleRequest(ctx context.Context, ex *exchange.Exchange, conn models.Connection, msg models.EndpointMessage) error {
	if p.prover == nil {
		return fmt.Errorf(`%s role - %w`, roleProver, domain.ErrUnsupportedMessageType)
	}

	var req messages.PresentationRequest
	if err := msg.Decode(&req); err != nil {
		return err
	}

	format, att, err := p.prover.Present(conn, req.RequestPresentationsAttach[0])
	if err != nil {
		p.report(ctx, ex, conn, req.Id, err.Error())
		return err
	}

	if _, err = connection.Send(ctx, ex, conn, messages.Presentation{
		Id:                  uuid.New().String(),
		Type:                messages.ProofPresentationV2,
		Thread:              messages.Thread{ThId: req.Id},
		Formats:             []messages.AttachFormat{format},
		PresentationsAttach: []messages.Attachment{att},
	}); err != nil {
		return err
	}

	p.log.Info(fmt.Sprintf(`presentation sent to %s`, conn.TheirLabel))
	return nil
}

func (p *Protocol) handlePresentation(ctx context.Context, ex *exchange.Exchange, conn models.Connection, msg models.EndpointMessage) error {
	if p.verifier == nil {
		return fmt.Errorf(`%s role - %w`, roleVerifier, domain.ErrUnsupportedMessageType)
	}

	var pres messages.Presentation
	if err := msg.Decode(&pres); err != nil {
		return err
	}

	reqMsg, ok := sent(ex, messages.ProofRequestV2, pres.Thread.ThId)
	if !ok {
		return fmt.Errorf(`presentation %s refers to an unknown request %s - %w`, pres.Id, pres.Thread.ThId, domain.ErrValidation)
	}

	var req messages.PresentationRequest
	if err := reqMsg.Decode(&req); err != nil {
		return err
	}

	attrs, err := p.verifier.Verify(conn, req.RequestPresentationsAttach[0], pres.PresentationsAttach[0])
	if err != nil {
		p.report(ctx, ex, conn, req.Id, err.Error())
		return err
	}

	res := Result{ConnectionID: conn.ID, ThreadID: req.Id, Revealed: attrs}
	ex.Attach(ResultKey.Bind(res))

	if req.WillConfirm {
		if _, err = connection.Send(ctx, ex, conn, messages.Ack{
			Id:     uuid.New().String(),
			Type:   messages.ProofAckV2,
			Status: messages.AckStatusOK,
			Thread: messages.Thread{ThId: req.Id},
		}); err != nil {
			return err
		}
	}

	p.log.Info(fmt.Sprintf(`presentation of %s verified`, conn.TheirLabel))
	if p.notifier != nil {
		p.notifier.Publish(domain.TopicProofs, res)
	}
	return nil
}

func (p *Protocol) report(ctx context.Context, ex *exchange.Exchange, conn models.Connection, thid, reason string) {
	if err := connection.Report(ctx, ex, conn, messages.ProofProblemReportV2, thid, messages.ProblemPresentationFailed, reason); err != nil {
		p.log.Error(fmt.Sprintf(`sending problem report on %s failed - %v`, thid, err))
	}
}

func sent(ex *exchange.Exchange, typ, thid string) (models.EndpointMessage, bool) {
	return ex.Find(func(m models.EndpointMessage) bool {
		return m.Direction == models.Outbound && m.Type == typ && m.ThreadID == thid
	})
}
