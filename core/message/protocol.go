package message

import (
	"context"
	"fmt"
	"time"

	"github.com/YasiruR/didcomm-engine/core/connection"
	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/domain/services"
	"github.com/YasiruR/didcomm-engine/exchange"
	"github.com/google/uuid"
	"github.com/tryfix/log"
)

// MessageKey holds the last basic message received on an exchange
var MessageKey = exchange.NewKey[messages.BasicMessage](`basic_message`)

// Received is published for every inbound basic message
type Received struct {
	ConnectionID string `json:"connection_id"`
	MessageID    string `json:"message_id"`
	Content      string `json:"content"`
	SentTime     string `json:"sent_time"`
}

// Protocol implements basic message 1.0 (RFC-0095)
type Protocol struct {
	notifier services.Notifier
	log      log.Logger
}

func New(n services.Notifier, logger log.Logger) *Protocol {
	return &Protocol{notifier: n, log: logger}
}

func (p *Protocol) ID() string {
	return messages.ProtocolBasicMessage
}

func (p *Protocol) Roles() []string {
	return nil
}

func (p *Protocol) Send(content string) exchange.Action {
	return exchange.Action{Protocol: messages.ProtocolBasicMessage, Name: `send message`, Run: func(ctx context.Context, ex *exchange.Exchange) error {
		conn, err := connection.Active(ex)
		if err != nil {
			return err
		}

		_, err = connection.Send(ctx, ex, conn, messages.BasicMessage{
			Id:       uuid.New().String(),
			Type:     messages.BasicMessageV1,
			SentTime: time.Now().UTC().Format(time.RFC3339),
			Content:  content,
		})
		return err
	}}
}

// Await blocks until a basic message is received on the exchange
func (p *Protocol) Await() exchange.Action {
	return exchange.Action{Protocol: messages.ProtocolBasicMessage, Name: `await message`, Run: func(ctx context.Context, ex *exchange.Exchange) error {
		msg, err := ex.Await(ctx, exchange.ByType(messages.BasicMessageV1))
		if err != nil {
			return err
		}

		var bm messages.BasicMessage
		if err = msg.Decode(&bm); err != nil {
			return err
		}

		ex.Attach(MessageKey.Bind(bm))
		return nil
	}}
}

func (p *Protocol) HandleInbound(_ context.Context, ex *exchange.Exchange, msg models.EndpointMessage) error {
	if msg.Type != messages.BasicMessageV1 {
		return fmt.Errorf(`%s - %w`, msg.Type, domain.ErrUnsupportedMessageType)
	}

	conn, err := connection.Inbound(ex, msg)
	if err != nil {
		return err
	}

	var bm messages.BasicMessage
	if err = msg.Decode(&bm); err != nil {
		return err
	}

	p.log.Info(fmt.Sprintf(`message from %s: %s`, conn.TheirLabel, bm.Content))
	if p.notifier != nil {
		p.notifier.Publish(domain.TopicBasicMessages, Received{
			ConnectionID: conn.ID,
			MessageID:    bm.Id,
			Content:      bm.Content,
			SentTime:     bm.SentTime,
		})
	}
	return nil
}
