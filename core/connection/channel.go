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

// Active returns the connection attached to the exchange as currently stored
// in the wallet. Protocols running over a connection use it to make sure the
// connection is active.
func Active(ex *exchange.Exchange) (models.Connection, error) {
	w, err := exchange.Wallet(ex)
	if err != nil {
		return models.Connection{}, err
	}

	attached, ok := exchange.ConnectionKey.From(ex)
	if !ok {
		return models.Connection{}, fmt.Errorf(`no connection attached to exchange %s - %w`, ex.ID(), domain.ErrInvalidConnectionState)
	}

	conn, err := w.Connection(attached.ID)
	if err != nil {
		return models.Connection{}, err
	}

	if conn.State != models.ConnActive {
		return models.Connection{}, fmt.Errorf(`connection %s is %s - %w`, conn.ID, conn.State, domain.ErrInvalidConnectionState)
	}
	return conn, nil
}

// Inbound returns the active connection an inbound message was received on.
// The message must be authcrypted by the key of the other party.
func Inbound(ex *exchange.Exchange, msg models.EndpointMessage) (models.Connection, error) {
	w, err := exchange.Wallet(ex)
	if err != nil {
		return models.Connection{}, err
	}

	conn, err := w.ConnectionByVerkey(msg.RecipientVerkey)
	if err != nil {
		return models.Connection{}, fmt.Errorf(`%s received on an unknown connection - %w`, msg.Type, domain.ErrInvalidConnectionState)
	}

	if conn.State != models.ConnActive {
		return models.Connection{}, fmt.Errorf(`%s received on connection %s in state %s - %w`, msg.Type, conn.ID, conn.State, domain.ErrInvalidConnectionState)
	}

	if msg.SenderVerkey != conn.TheirVerkey {
		return models.Connection{}, fmt.Errorf(`%s on connection %s not sent by %s - %w`, msg.Type, conn.ID, conn.TheirVerkey, domain.ErrAuthenticationFailed)
	}

	ex.Attach(exchange.ConnectionKey.Bind(conn))
	return conn, nil
}

// Send authcrypts the message for the other party of the connection
func Send(ctx context.Context, ex *exchange.Exchange, conn models.Connection, msg interface{}) (models.EndpointMessage, error) {
	w, err := exchange.Wallet(ex)
	if err != nil {
		return models.EndpointMessage{}, err
	}

	kp, err := w.Keys().KeyPair(conn.MyVerkey)
	if err != nil {
		return models.EndpointMessage{}, fmt.Errorf(`key of connection %s - %v: %w`, conn.ID, err, domain.ErrWallet)
	}

	return ex.Send(ctx, exchange.Outbound{
		Message:       msg,
		Sender:        &kp,
		RecipientKeys: []string{conn.TheirVerkey},
		RoutingKeys:   conn.TheirRoutingKeys,
		Endpoint:      conn.TheirEndpoint,
	})
}

// Report sends a problem report of the protocol on the thread over the
// connection. Failures are only logged by callers since a report is sent
// on a failure path.
func Report(ctx context.Context, ex *exchange.Exchange, conn models.Connection, typ, thid, code, reason string) error {
	_, err := Send(ctx, ex, conn, messages.ProblemReport{
		Id:          uuid.New().String(),
		Type:        typ,
		Thread:      messages.Thread{ThId: thid},
		Description: messages.Description{Code: code, En: reason},
	})
	return err
}

// Problem converts a received problem report into an error
func Problem(msg models.EndpointMessage) error {
	var pr messages.ProblemReport
	if err := msg.Decode(&pr); err != nil {
		return err
	}
	return fmt.Errorf(`%s on %s (%s) - %w`, pr.Description.Code, msg.ThreadID, pr.Description.En, domain.ErrProblemReported)
}
