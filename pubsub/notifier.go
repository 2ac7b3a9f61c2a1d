package pubsub

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/tryfix/log"
)

const subscriberBuf = 16

// Broadcaster pushes frames to connected websocket sessions
type Broadcaster interface {
	Broadcast(data []byte)
}

// Notifier publishes the events of a wallet to websocket sessions, the zmq
// publisher and local subscribers. Slow local subscribers miss events
// rather than blocking protocol handlers.
type Notifier struct {
	walletID string
	ws       Broadcaster
	pub      *Publisher
	subs     map[string][]chan models.Event
	mu       *sync.RWMutex
	log      log.Logger
}

// NewNotifier creates a notifier. The broadcaster and publisher are optional.
func NewNotifier(walletID string, ws Broadcaster, pub *Publisher, logger log.Logger) *Notifier {
	return &Notifier{
		walletID: walletID,
		ws:       ws,
		pub:      pub,
		subs:     map[string][]chan models.Event{},
		mu:       &sync.RWMutex{},
		log:      logger,
	}
}

func (n *Notifier) Publish(topic string, payload interface{}) {
	e := models.Event{Topic: topic, WalletID: n.walletID, Payload: payload}

	if n.ws != nil {
		data, err := json.Marshal(e)
		if err != nil {
			n.log.Error(fmt.Sprintf(`marshalling %s event failed - %v`, topic, err))
		} else {
			n.ws.Broadcast(data)
		}
	}

	if n.pub != nil {
		if err := n.pub.Send(e); err != nil {
			n.log.Error(err)
		}
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.subs[topic] {
		select {
		case ch <- e:
		default:
			n.log.Debug(fmt.Sprintf(`%s event dropped for a slow subscriber`, topic))
		}
	}
}

// Subscribe returns a channel of the events of the topic and a function to
// cancel the subscription
func (n *Notifier) Subscribe(topic string) (<-chan models.Event, func()) {
	ch := make(chan models.Event, subscriberBuf)
	n.mu.Lock()
	n.subs[topic] = append(n.subs[topic], ch)
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			subs := n.subs[topic]
			for i, c := range subs {
				if c == ch {
					n.subs[topic] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
}
