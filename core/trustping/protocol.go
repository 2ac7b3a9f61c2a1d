package trustping

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
	roleSender   = `sender`
	roleReceiver = `receiver`
)

// PingKey holds the last ping sent on an exchange
var PingKey = exchange.NewKey[messages.Ping](`trust_ping`)

// Protocol implements trust ping 1.0 (RFC-0048). Pings requesting a
// response are answered automatically.
type Protocol struct {
	notifier services.Notifier
	log      log.Logger
}

func New(n services.Notifier, logger log.Logger) *Protocol {
	return &Protocol{notifier: n, log: logger}
}

func (p *Protocol) ID() string {
	return messages.ProtocolTrustPing
}

func (p *Protocol) Roles() []string {
	return []string{roleSender, roleReceiver}
}

func NewPing(comment string, responseRequested bool) messages.Ping {
	return messages.Ping{
		Id:                uuid.New().String(),
		Type:              messages.TrustPingV1,
		Comment:           comment,
		ResponseRequested: responseRequested,
	}
}

// Send pings the other party of the active connection attached to the exchange
func (p *Protocol) Send(comment string, responseRequested bool) exchange.Action {
	return exchange.Action{Protocol: messages.ProtocolTrustPing, Name: `send ping`, Run: func(ctx context.Context, ex *exchange.Exchange) error {
		conn, err := connection.Active(ex)
		if err != nil {
			return err
		}

		ping := NewPing(comment, responseRequested)
		if _, err = connection.Send(ctx, ex, conn, ping); err != nil {
			return err
		}

		ex.Attach(PingKey.Bind(ping))
		p.log.Trace(fmt.Sprintf(`ping %s sent on connection %s`, ping.Id, conn.ID))
		return nil
	}}
}

// AwaitResponse blocks until the response to the last ping sent on the
// exchange is received
func (p *Protocol) AwaitResponse() exchange.Action {
	return exchange.Action{Protocol: messages.ProtocolTrustPing, Name: `await ping response`, Run: func(ctx context.Context, ex *exchange.Exchange) error {
		ping, ok := PingKey.From(ex)
		if !ok {
			return fmt.Errorf(`no ping sent on exchange %s - %w`, ex.ID(), domain.ErrValidation)
		}

		_, err := AwaitResponse(ctx, ex, ping.Id)
		return err
	}}
}

func AwaitResponse(ctx context.Context, ex *exchange.Exchange, pingID string) (models.EndpointMessage, error) {
	return ex.Await(ctx, exchange.ByThread(messages.TrustPingResponseV1, pingID))
}

func (p *Protocol) HandleInbound(ctx context.Context, ex *exchange.Exchange, msg models.EndpointMessage) error {
	conn, err := connection.Inbound(ex, msg)
	if err != nil {
		return err
	}

	switch msg.Type {
	case messages.TrustPingV1:
		var ping messages.Ping
		if err = msg.Decode(&ping); err != nil {
			return err
		}

		p.publish(ping)
		if !ping.ResponseRequested {
			return nil
		}

		if _, err = p.Respond(ctx, ex, conn, ping.Id); err != nil {
			return err
		}
		p.log.Trace(fmt.Sprintf(`ping %s from %s answered`, ping.Id, conn.TheirLabel))
		return nil

	case messages.TrustPingResponseV1:
		var res messages.PingResponse
		if err = msg.Decode(&res); err != nil {
			return err
		}

		// a response must refer to a ping sent on this exchange
		if _, ok := ex.Find(func(m models.EndpointMessage) bool {
			return m.Direction == models.Outbound && m.Type == messages.TrustPingV1 && m.ID == res.Thread.ThId
		}); !ok {
			return fmt.Errorf(`ping response %s refers to an unknown ping %s - %w`, res.Id, res.Thread.ThId, domain.ErrValidation)
		}

		p.publish(res)
		return nil

	default:
		return fmt.Errorf(`%s - %w`, msg.Type, domain.ErrUnsupportedMessageType)
	}
}

// Respond sends a ping response threaded to the ping
func (p *Protocol) Respond(ctx context.Context, ex *exchange.Exchange, conn models.Connection, pingID string) (models.EndpointMessage, error) {
	res := messages.PingResponse{
		Id:     uuid.New().String(),
		Type:   messages.TrustPingResponseV1,
		Thread: messages.Thread{ThId: pingID},
	}

	msg, err := connection.Send(ctx, ex, conn, res)
	if err != nil {
		return models.EndpointMessage{}, fmt.Errorf(`responding to ping %s failed - %w`, pingID, err)
	}
	return msg, nil
}

func (p *Protocol) publish(payload interface{}) {
	if p.notifier != nil {
		p.notifier.Publish(domain.TopicTrustPing, payload)
	}
}
