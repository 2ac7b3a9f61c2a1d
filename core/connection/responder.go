package connection

import (
	"context"
	"errors"
	"fmt"

	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/domain/services"
	"github.com/YasiruR/didcomm-engine/exchange"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// handleRequest responds to a request for an invitation issued by this
// wallet. Requests on a thread which already has a connection are ignored.
// The connection is handled in a fork of the exchange owning the new did.
func (p *Protocol) handleRequest(ctx context.Context, ex *exchange.Exchange, msg models.EndpointMessage) error {
	w, err := exchange.Wallet(ex)
	if err != nil {
		return err
	}

	var req messages.ConnReq
	if err = msg.Decode(&req); err != nil {
		return err
	}

	thid := msg.ThreadID
	if existing, err := w.ConnectionByThread(thid); err == nil {
		p.log.Debug(fmt.Sprintf(`request on %s ignored since connection %s is in state %s`, thid, existing.ID, existing.State))
		return nil
	}

	inv, err := w.Invitation(req.Thread.PThId)
	if err != nil {
		return err
	}

	if inv.State == models.InvReceived || (msg.RecipientVerkey != `` && msg.RecipientVerkey != inv.InvitationKey) {
		return fmt.Errorf(`request %s does not refer to an invitation of this wallet - %w`, req.Id, domain.ErrUnknownInvitation)
	}

	theirVerkey, endpoint, routingKeys, err := p.theirDoc(req.DID, req.DIDDocAttach, msg.SenderVerkey)
	if err != nil {
		return err
	}

	requester := models.Connection{TheirVerkey: theirVerkey, TheirEndpoint: endpoint, TheirRoutingKeys: routingKeys}
	if err = p.claim(w, inv.ID, thid); err != nil {
		if errors.Is(err, errDuplicate) {
			p.log.Debug(fmt.Sprintf(`request on %s is already being processed`, thid))
			return nil
		}
		if errors.Is(err, domain.ErrInvitationConsumed) {
			p.report(ctx, ex, w, thid, messages.ProblemInvitationConsumed, err.Error(), inv.InvitationKey, requester)
		}
		return err
	}

	if err = p.respond(ctx, ex, w, inv, req, requester); err != nil {
		p.release(w, inv.ID, thid)
		return err
	}
	return nil
}

func (p *Protocol) respond(ctx context.Context, ex *exchange.Exchange, w services.Wallet, inv models.Invitation, req messages.ConnReq, requester models.Connection) error {
	mine, doc, err := w.CreateDID(models.MethodPeer)
	if err != nil {
		return err
	}

	att, err := docAttachment(doc)
	if err != nil {
		return err
	}

	invKp, err := w.Keys().KeyPair(inv.InvitationKey)
	if err != nil {
		return fmt.Errorf(`invitation key of %s - %v: %w`, inv.ID, err, domain.ErrWallet)
	}

	if err = Sign(&att, invKp); err != nil {
		return err
	}

	myKp, err := w.Keys().KeyPair(mine.Verkey)
	if err != nil {
		return fmt.Errorf(`%v: %w`, err, domain.ErrWallet)
	}

	conn := models.Connection{
		ID:               uuid.New().String(),
		State:            models.ConnInvitation,
		Role:             models.RoleInviter,
		MyDid:            mine.URI,
		TheirDid:         req.DID,
		MyVerkey:         mine.Verkey,
		TheirVerkey:      requester.TheirVerkey,
		InvitationKey:    inv.InvitationKey,
		InvitationID:     inv.ID,
		ThreadID:         req.Thread.ThId,
		TheirLabel:       req.Label,
		TheirEndpoint:    requester.TheirEndpoint,
		TheirRoutingKeys: requester.TheirRoutingKeys,
	}
	for _, s := range []models.ConnectionState{models.ConnRequest, models.ConnResponse} {
		if err = Transition(&conn, s); err != nil {
			return err
		}
	}

	res := messages.ConnRes{
		Id:           uuid.New().String(),
		Type:         messages.DIDExchangeResV1,
		Thread:       messages.Thread{ThId: req.Thread.ThId, PThId: inv.ID},
		DID:          mine.URI,
		DIDDocAttach: att,
	}

	child := ex.Fork()
	child.Attach(exchange.ConnectionKey.Bind(conn))
	child.Own(mine.Verkey)

	if err = w.SaveConnection(conn); err != nil {
		child.Close()
		return err
	}

	if _, err = child.Send(ctx, exchange.Outbound{
		Message:       res,
		Sender:        &myKp,
		RecipientKeys: []string{conn.TheirVerkey},
		RoutingKeys:   conn.TheirRoutingKeys,
		Endpoint:      conn.TheirEndpoint,
	}); err != nil {
		if errDel := w.DeleteConnection(conn.ID); errDel != nil {
			p.log.Error(fmt.Sprintf(`removing connection %s failed - %v`, conn.ID, errDel))
		}
		child.Close()
		return err
	}

	p.publish(domain.TopicConnections, conn)
	p.log.Debug(fmt.Sprintf(`connection response sent to %s on %s`, req.Label, conn.ThreadID))
	return nil
}

// claim marks the invitation as used by the thread. A single-use invitation
// accepts only one thread.
func (p *Protocol) claim(w services.Wallet, invID, thid string) error {
	_, err := w.UpdateInvitation(invID, func(inv *models.Invitation) error {
		if lo.Contains(inv.UsedBy, thid) {
			return errDuplicate
		}

		if !inv.MultiUse && len(inv.UsedBy) > 0 {
			return fmt.Errorf(`invitation %s was used by %s - %w`, invID, inv.UsedBy[0], domain.ErrInvitationConsumed)
		}

		inv.UsedBy = append(inv.UsedBy, thid)
		inv.State = models.InvUsed
		return nil
	})
	return err
}

func (p *Protocol) release(w services.Wallet, invID, thid string) {
	if _, err := w.UpdateInvitation(invID, func(inv *models.Invitation) error {
		inv.UsedBy = lo.Without(inv.UsedBy, thid)
		if len(inv.UsedBy) == 0 {
			inv.State = models.InvCreated
		}
		return nil
	}); err != nil {
		p.log.Error(fmt.Sprintf(`releasing invitation %s failed - %v`, invID, err))
	}
}

func (p *Protocol) handleComplete(ex *exchange.Exchange, msg models.EndpointMessage) error {
	w, err := exchange.Wallet(ex)
	if err != nil {
		return err
	}

	var comp messages.ConnComplete
	if err = msg.Decode(&comp); err != nil {
		return err
	}

	conn, err := w.ConnectionByThread(msg.ThreadID)
	if err != nil {
		return fmt.Errorf(`complete on unknown thread %s - %w`, msg.ThreadID, domain.ErrInvalidConnectionState)
	}

	if conn.State == models.ConnActive {
		return nil
	}

	if conn.Role != models.RoleInviter || msg.RecipientVerkey != conn.MyVerkey {
		return fmt.Errorf(`complete on %s not addressed to the responder - %w`, msg.ThreadID, domain.ErrInvalidConnectionState)
	}

	if msg.SenderVerkey != conn.TheirVerkey {
		p.abandon(w, conn)
		return fmt.Errorf(`complete on %s sent by %s - %w`, msg.ThreadID, msg.SenderVerkey, domain.ErrAuthenticationFailed)
	}

	conn, err = w.UpdateConnection(conn.ID, func(c *models.Connection) error {
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
