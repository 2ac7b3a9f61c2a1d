package pubsub

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/log"
	zmq "github.com/pebbe/zmq4"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	l, err := net.Listen(`tcp`, `127.0.0.1:0`)
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestPublisher_SubscriberReceives(t *testing.T) {
	for _, compress := range []bool{false, true} {
		t.Run(fmt.Sprintf(`compress=%t`, compress), func(t *testing.T) {
			r := require.New(t)
			zmqCtx, err := zmq.NewContext()
			r.NoError(err)
			defer zmqCtx.Term()

			port := freePort(t)
			pub, err := NewPublisher(zmqCtx, fmt.Sprintf(`tcp://*:%d`, port), compress, log.NewLogger(false))
			r.NoError(err)
			defer pub.Close()

			sub, err := NewSubscriber(zmqCtx, fmt.Sprintf(`tcp://127.0.0.1:%d`, port), compress, domain.TopicConnections)
			r.NoError(err)
			defer sub.Close()
			r.NoError(sub.SetTimeout(100 * time.Millisecond))

			n := NewNotifier(`w1`, nil, pub, log.NewLogger(false))

			// subscriptions reach the publisher asynchronously, so publish until
			// the first event arrives
			var e models.Event
			deadline := time.Now().Add(5 * time.Second)
			for time.Now().Before(deadline) {
				n.Publish(domain.TopicTrustPing, `filtered by the subscriber`)
				n.Publish(domain.TopicConnections, map[string]string{`id`: `c1`})
				if e, err = sub.Receive(); err == nil {
					break
				}
			}
			r.NoError(err)
			r.Equal(domain.TopicConnections, e.Topic)
			r.Equal(`w1`, e.WalletID)
			r.Equal(map[string]interface{}{`id`: `c1`}, e.Payload)
		})
	}
}

func TestSubscriber_Timeout(t *testing.T) {
	r := require.New(t)
	zmqCtx, err := zmq.NewContext()
	r.NoError(err)
	defer zmqCtx.Term()

	sub, err := NewSubscriber(zmqCtx, fmt.Sprintf(`tcp://127.0.0.1:%d`, freePort(t)), false)
	r.NoError(err)
	defer sub.Close()
	r.NoError(sub.SetTimeout(50 * time.Millisecond))

	start := time.Now()
	_, err = sub.Receive()
	r.Error(err)
	r.Less(time.Since(start), 2*time.Second)
}
