package connection

import (
	"context"
	"fmt"

	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/exchange"
	"github.com/google/uuid"
)

// Request creates a new peer did and sends a DID exchange request for the
// invitation attached to the exchange. The connection is stored in request
// state before sending and removed again if the request cannot be sent.
func (p *Protocol) Request(label string) exchange.Action {
	return exchange.Action{Protocol: messages.ProtocolDIDExchange, Name: `send request`, Run: func(ctx context.Context, ex *exchange.Exchange) error {
		w, err := exchange.Wallet(ex)
		if err != nil {
			return err
		}

		inv, ok := exchange.InvitationKey.From(ex)
		if !ok {
			return fmt.Errorf(`no invitation attached to exchange %s - %w`, ex.ID(), domain.ErrUnknownInvitation)
		}

		if inv.State == models.InvCreated {
			return fmt.Errorf(`invitation %s was created by this wallet - %w`, inv.ID, domain.ErrValidation)
		}

		mine, doc, err := w.CreateDID(models.MethodPeer)
		if err != nil {
			return err
		}

		att, err := docAttachment(doc)
		if err != nil {
			return err
		}

		if label == `` {
			label = w.Label()
		}

		id := uuid.New().String()
		req := messages.ConnReq{
			Id:           id,
			Type:         messages.DIDExchangeReqV1,
			Thread:       messages.Thread{ThId: id, PThId: inv.ID},
			Label:        label,
			GoalCode:     inv.GoalCode,
			Goal:         inv.Goal,
			DID:          mine.URI,
			DIDDocAttach: att,
		}

		conn := models.Connection{
			ID:               uuid.New().String(),
			State:            models.ConnInvitation,
			Role:             models.RoleInvitee,
			MyDid:            mine.URI,
			MyVerkey:         mine.Verkey,
			TheirVerkey:      inv.InvitationKey,
			InvitationKey:    inv.InvitationKey,
			InvitationID:     inv.ID,
			ThreadID:         id,
			TheirLabel:       inv.Label,
			TheirEndpoint:    inv.ServiceEndpoint,
			TheirRoutingKeys: inv.RoutingKeys,
		}
		if err = Transition(&conn, models.ConnRequest); err != nil {
			return err
		}

		kp, err := w.Keys().KeyPair(mine.Verkey)
		if err != nil {
			return fmt.Errorf(`%v: %w`, err, domain.ErrWallet)
		}

		// responses are sent to the new verkey
		ex.Own(mine.Verkey)
		if err = w.SaveConnection(conn); err != nil {
			ex.Disown(mine.Verkey)
			return err
		}

		if _, err = ex.Send(ctx, exchange.Outbound{
			Message:       req,
			Sender:        &kp,
			RecipientKeys: inv.RecipientKeys,
			RoutingKeys:   inv.RoutingKeys,
			Endpoint:      inv.ServiceEndpoint,
		}); err != nil {
			ex.Disown(mine.Verkey)
			if errDel := w.DeleteConnection(conn.ID); errDel != nil {
				p.log.Error(fmt.Sprintf(`removing connection %s failed - %v`, conn.ID, errDel))
			}
			return err
		}

		ex.Attach(exchange.ConnectionKey.Bind(conn))
		p.publish(domain.TopicConnections, conn)
		p.log.Debug(fmt.Sprintf(`connection request %s sent to %s`, id, inv.ServiceEndpoint))
		return nil
	}}
}

// AwaitActive blocks until the response of the pending request has been
// processed and the connection is active
func (p *Protocol) AwaitActive() exchange.Action {
	return exchange.Action{Protocol: messages.ProtocolDIDExchange, Name: `await response`, Run: func(ctx context.Context, ex *exchange.Exchange) error {
		w, err := exchange.Wallet(ex)
		if err != nil {
			return err
		}

		conn, ok := exchange.ConnectionKey.From(ex)
		if !ok {
			return fmt.Errorf(`no pending connection in exchange %s - %w`, ex.ID(), domain.ErrInvalidConnectionState)
		}

		msg, err := ex.Await(ctx, func(m models.EndpointMessage) bool {
			return m.ThreadID == conn.ThreadID && (m.Type == messages.DIDExchangeResV1 || m.Type == messages.DIDExchangeProblemReportV1)
		})
		if err != nil {
			return err
		}

		if msg.Type == messages.DIDExchangeProblemReportV1 {
			return problemErr(msg)
		}

		conn, err = w.Connection(conn.ID)
		if err != nil {
			return err
		}

		if conn.State != models.ConnActive {
			return fmt.Errorf(`connection %s is %s after the response - %w`, conn.ID, conn.State, domain.ErrInvalidConnectionState)
		}

		ex.Attach(exchange.ConnectionKey.Bind(conn))
		return nil
	}}
}

func (p *Protocol) handleResponse(ctx context.Context, ex *exchange.Exchange, msg models.EndpointMessage) error {
	w, err := exchange.Wallet(ex)
	if err != nil {
		return err
	}

	var res messages.ConnRes
	if err = msg.Decode(&res); err != nil {
		return err
	}

	conn, err := w.ConnectionByThread(msg.ThreadID)
	if err != nil {
		return fmt.Errorf(`response on unknown thread %s - %w`, msg.ThreadID, domain.ErrInvalidConnectionState)
	}

	if conn.State == models.ConnResponse || conn.State == models.ConnActive {
		p.log.Debug(fmt.Sprintf(`duplicate response on %s ignored`, msg.ThreadID))
		return nil
	}

	if conn.Role != models.RoleInvitee || msg.RecipientVerkey != conn.MyVerkey {
		return fmt.Errorf(`response on %s not addressed to the requester - %w`, msg.ThreadID, domain.ErrInvalidConnectionState)
	}

	if !CanTransition(conn.State, models.ConnResponse) {
		return fmt.Errorf(`response received in state %s - %w`, conn.State, domain.ErrInvalidConnectionState)
	}

	// the did doc must be signed by the invitation key
	if err = Verify(res.DIDDocAttach, conn.InvitationKey); err != nil {
		p.report(ctx, ex, w, conn.ThreadID, messages.ProblemResponseNotAccepted, err.Error(), conn.MyVerkey, conn)
		p.abandon(w, conn)
		return err
	}

	theirVerkey, endpoint, routingKeys, err := p.theirDoc(res.DID, res.DIDDocAttach, msg.SenderVerkey)
	if err != nil {
		p.report(ctx, ex, w, conn.ThreadID, messages.ProblemResponseNotAccepted, err.Error(), conn.MyVerkey, conn)
		p.abandon(w, conn)
		return err
	}

	kp, err := w.Keys().KeyPair(conn.MyVerkey)
	if err != nil {
		return fmt.Errorf(`%v: %w`, err, domain.ErrWallet)
	}

	complete := messages.ConnComplete{
		Id:     uuid.New().String(),
		Type:   messages.DIDExchangeCompV1,
		Thread: messages.Thread{ThId: conn.ThreadID, PThId: conn.InvitationID},
	}

	if _, err = ex.Send(ctx, exchange.Outbound{
		Message:       complete,
		Sender:        &kp,
		RecipientKeys: []string{theirVerkey},
		RoutingKeys:   routingKeys,
		Endpoint:      endpoint,
	}); err != nil {
		return err
	}

	conn, err = w.UpdateConnection(conn.ID, func(c *models.Connection) error {
		c.TheirDid = res.DID
		c.TheirVerkey = theirVerkey
		c.TheirEndpoint = endpoint
		c.TheirRoutingKeys = routingKeys
		if err := Transition(c, models.ConnResponse); err != nil {
			return err
		}
		return Transition(c, models.ConnActive)
	})
	if err != nil {
		return err
	}

	ex.Attach(exchange.ConnectionKey.Bind(conn))
	p.publish(domain.TopicConnections, conn)
	p.log.Info(fmt.Sprintf(`connection %s with %s is active`, conn.ID, conn.TheirLabel))
	return nil
}
