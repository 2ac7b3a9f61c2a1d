package pubsub

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/log"
	"github.com/stretchr/testify/require"
)

type frames struct {
	data [][]byte
	mu   sync.Mutex
}

func (f *frames) Broadcast(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = append(f.data, data)
}

func TestNotifier_Publish(t *testing.T) {
	r := require.New(t)
	ws := &frames{}
	n := NewNotifier(`w1`, ws, nil, log.NewLogger(false))

	events, cancel := n.Subscribe(domain.TopicConnections)
	n.Publish(domain.TopicConnections, map[string]string{`id`: `c1`})
	n.Publish(domain.TopicTrustPing, `ignored by the subscriber`)

	e := <-events
	r.Equal(models.Event{Topic: domain.TopicConnections, WalletID: `w1`, Payload: map[string]string{`id`: `c1`}}, e)

	r.Len(ws.data, 2)
	var frame map[string]interface{}
	r.NoError(json.Unmarshal(ws.data[0], &frame))
	r.Equal(domain.TopicConnections, frame[`topic`])
	r.Equal(`w1`, frame[`wallet_id`])

	cancel()
	cancel()
	_, open := <-events
	r.False(open)

	// publishing without subscribers does not block
	n.Publish(domain.TopicConnections, nil)
}

func TestNotifier_SlowSubscriber(t *testing.T) {
	n := NewNotifier(`w1`, nil, nil, log.NewLogger(false))
	events, cancel := n.Subscribe(domain.TopicBasicMessages)
	defer cancel()

	for i := 0; i < subscriberBuf+5; i++ {
		n.Publish(domain.TopicBasicMessages, i)
	}
	require.Len(t, events, subscriberBuf)
}

func TestCompactor(t *testing.T) {
	c, err := newCompactor()
	require.NoError(t, err)

	data := []byte(`{"topic":"connections","wallet_id":"w1","payload":{"state":"active"}}`)
	out, err := c.decompress(c.compress(data))
	require.NoError(t, err)
	require.Equal(t, data, out)

	_, err = c.decompress([]byte(`not zstd`))
	require.Error(t, err)
}
