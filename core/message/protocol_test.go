package message_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/YasiruR/didcomm-engine/core/connection/connectiontest"
	"github.com/YasiruR/didcomm-engine/core/message"
	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/log"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []interface{}
	mu     sync.Mutex
}

func (r *recorder) Publish(topic string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if topic == domain.TopicBasicMessages {
		r.events = append(r.events, payload)
	}
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestBasicMessage(t *testing.T) {
	r := require.New(t)
	rec := &recorder{}
	aliceMsg := message.New(rec, log.NewLogger(false))
	bobMsg := message.New(nil, log.NewLogger(false))

	net := connectiontest.NewNetwork()
	alice := net.AddNode(t, `alice`, 2*time.Second, aliceMsg)
	bob := net.AddNode(t, `bob`, 2*time.Second, bobMsg)
	aliceEx, bobEx := connectiontest.Connect(t, alice, bob)

	r.NoError(bobEx.WithProtocol(messages.ProtocolBasicMessage).
		Do(context.Background(), bobMsg.Send(`hello alice`)).Err())

	r.NoError(aliceEx.WithProtocol(messages.ProtocolBasicMessage).
		Do(context.Background(), aliceMsg.Await()).Err())

	got, ok := message.MessageKey.From(aliceEx)
	r.True(ok)
	r.Equal(`hello alice`, got.Content)
	r.Equal(1, rec.len())

	received := rec.events[0].(message.Received)
	r.Equal(`hello alice`, received.Content)
}

func TestBasicMessage_EmptyContentIsRejected(t *testing.T) {
	r := require.New(t)
	aliceMsg := message.New(nil, log.NewLogger(false))
	bobMsg := message.New(nil, log.NewLogger(false))

	net := connectiontest.NewNetwork()
	alice := net.AddNode(t, `alice`, 2*time.Second, aliceMsg)
	bob := net.AddNode(t, `bob`, 2*time.Second, bobMsg)
	_, bobEx := connectiontest.Connect(t, alice, bob)

	r.NoError(bobEx.WithProtocol(messages.ProtocolBasicMessage).
		Do(context.Background(), bobMsg.Send(``)).Err())

	select {
	case err := <-alice.Errs:
		r.ErrorIs(err, domain.ErrValidation)
	case <-time.After(2 * time.Second):
		t.Fatal(`empty message was accepted`)
	}
}
