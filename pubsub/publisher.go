package pubsub

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/YasiruR/didcomm-engine/domain/models"
	zmq "github.com/pebbe/zmq4"
	"github.com/tryfix/log"
)

// Publisher sends events on a zmq PUB socket as two frames, the topic
// followed by the event. Events are compressed with zstd when enabled.
type Publisher struct {
	skt *zmq.Socket
	cmp *compactor
	mu  *sync.Mutex
	log log.Logger
}

func NewPublisher(zmqCtx *zmq.Context, endpoint string, compress bool, logger log.Logger) (*Publisher, error) {
	skt, err := zmqCtx.NewSocket(zmq.PUB)
	if err != nil {
		return nil, fmt.Errorf(`creating zmq pub socket failed - %v`, err)
	}

	if err = skt.Bind(endpoint); err != nil {
		skt.Close()
		return nil, fmt.Errorf(`binding zmq pub socket to %s failed - %v`, endpoint, err)
	}

	p := &Publisher{skt: skt, mu: &sync.Mutex{}, log: logger}
	if compress {
		if p.cmp, err = newCompactor(); err != nil {
			skt.Close()
			return nil, err
		}
	}
	return p, nil
}

func (p *Publisher) Send(e models.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf(`marshalling event failed - %v`, err)
	}

	if p.cmp != nil {
		data = p.cmp.compress(data)
	}

	// zmq sockets must not be shared between goroutines
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err = p.skt.SendMessage(e.Topic, data); err != nil {
		return fmt.Errorf(`publishing event on %s failed - %v`, e.Topic, err)
	}
	return nil
}

// Close drops events not yet delivered
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.skt.SetLinger(0); err != nil {
		p.log.Error(fmt.Sprintf(`setting linger of pub socket failed - %v`, err))
	}
	return p.skt.Close()
}

// Subscriber receives events of a publisher for the given topics
type Subscriber struct {
	skt *zmq.Socket
	cmp *compactor
}

func NewSubscriber(zmqCtx *zmq.Context, endpoint string, compressed bool, topics ...string) (*Subscriber, error) {
	skt, err := zmqCtx.NewSocket(zmq.SUB)
	if err != nil {
		return nil, fmt.Errorf(`creating zmq sub socket failed - %v`, err)
	}

	if err = skt.Connect(endpoint); err != nil {
		skt.Close()
		return nil, fmt.Errorf(`connecting zmq sub socket to %s failed - %v`, endpoint, err)
	}

	if len(topics) == 0 {
		topics = []string{``}
	}
	for _, t := range topics {
		if err = skt.SetSubscribe(t); err != nil {
			skt.Close()
			return nil, fmt.Errorf(`subscribing to '%s' failed - %v`, t, err)
		}
	}

	s := &Subscriber{skt: skt}
	if compressed {
		if s.cmp, err = newCompactor(); err != nil {
			skt.Close()
			return nil, err
		}
	}
	return s, nil
}

// SetTimeout bounds the time Receive waits for an event. Zero or less waits
// indefinitely.
func (s *Subscriber) SetTimeout(d time.Duration) error {
	if d <= 0 {
		d = -1
	}
	if err := s.skt.SetRcvtimeo(d); err != nil {
		return fmt.Errorf(`setting receive timeout failed - %v`, err)
	}
	return nil
}

// Receive blocks until the next event is published
func (s *Subscriber) Receive() (models.Event, error) {
	frames, err := s.skt.RecvMessageBytes(0)
	if err != nil {
		return models.Event{}, fmt.Errorf(`receiving event failed - %v`, err)
	}

	if len(frames) != 2 {
		return models.Event{}, fmt.Errorf(`received an event with %d frames`, len(frames))
	}

	data := frames[1]
	if s.cmp != nil {
		if data, err = s.cmp.decompress(data); err != nil {
			return models.Event{}, err
		}
	}

	var e models.Event
	if err = json.Unmarshal(data, &e); err != nil {
		return models.Event{}, fmt.Errorf(`unmarshalling event failed - %v`, err)
	}

	if e.Topic != string(frames[0]) {
		return models.Event{}, fmt.Errorf(`event of %s received on topic %s`, e.Topic, frames[0])
	}
	return e, nil
}

func (s *Subscriber) Close() error {
	if err := s.skt.SetLinger(0); err != nil {
		return fmt.Errorf(`setting linger of sub socket failed - %v`, err)
	}
	return s.skt.Close()
}
