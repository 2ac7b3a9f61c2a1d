package zmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	zmq "github.com/pebbe/zmq4"
	"github.com/tryfix/log"
)

type req struct {
	typ     string
	data    []byte
	resChan chan error
}

// Client keeps a REQ socket per endpoint. Requests to an endpoint are
// serialized by the sender goroutine owning its socket.
type Client struct {
	ctx     *zmq.Context
	senders map[string]chan req
	mu      *sync.Mutex
	done    chan struct{}
	log     log.Logger
}

func NewClient(zmqCtx *zmq.Context, logger log.Logger) *Client {
	return &Client{
		ctx:     zmqCtx,
		senders: map[string]chan req{},
		mu:      &sync.Mutex{},
		done:    make(chan struct{}),
		log:     logger,
	}
}

// Send connects to the endpoint once and waits for the acknowledgement of
// the receiver
func (c *Client) Send(ctx context.Context, typ string, data []byte, endpoint string) error {
	inChan, err := c.sender(endpoint)
	if err != nil {
		return err
	}

	resChan := make(chan error, 1)
	select {
	case inChan <- req{typ: typ, data: data, resChan: resChan}:
	case <-ctx.Done():
		return fmt.Errorf(`queueing zmq message to %s failed - %v`, endpoint, ctx.Err())
	case <-c.done:
		return fmt.Errorf(`zmq client closed`)
	}

	select {
	case err = <-resChan:
		return err
	case <-ctx.Done():
		return fmt.Errorf(`waiting for zmq acknowledgement from %s failed - %v`, endpoint, ctx.Err())
	}
}

func (c *Client) sender(endpoint string) (chan req, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if inChan, ok := c.senders[endpoint]; ok {
		return inChan, nil
	}

	skt, err := c.ctx.NewSocket(zmq.REQ)
	if err != nil {
		return nil, fmt.Errorf(`creating new socket for endpoint %s failed - %v`, endpoint, err)
	}

	if err = skt.Connect(endpoint); err != nil {
		skt.Close()
		return nil, fmt.Errorf(`connecting to zmq socket (%s) failed - %v`, endpoint, err)
	}

	inChan := make(chan req)
	c.senders[endpoint] = inChan
	go c.listen(skt, inChan)
	return inChan, nil
}

func (c *Client) listen(skt *zmq.Socket, inChan chan req) {
	defer skt.Close()
	for {
		var r req
		select {
		case r = <-inChan:
		case <-c.done:
			return
		}

		metaByts, err := json.Marshal(metadata{Type: r.typ})
		if err != nil {
			r.resChan <- fmt.Errorf(`marshalling metadata failed - %v`, err)
			continue
		}

		if _, err = skt.SendMessage(metaByts, r.data); err != nil {
			r.resChan <- fmt.Errorf(`sending zmq message failed - %v`, err)
			continue
		}

		r.resChan <- c.receive(skt)
	}
}

func (c *Client) receive(skt *zmq.Socket) error {
	for {
		resMsgs, err := skt.RecvMessage(0)
		if err != nil {
			if err.Error() == errTempUnavail {
				continue
			}
			return fmt.Errorf(`receiving zmq acknowledgement failed - %v`, err)
		}

		if len(resMsgs) == 0 {
			return fmt.Errorf(`received an empty acknowledgement`)
		}

		if resMsgs[0] != successRes {
			return fmt.Errorf(`message was not accepted by the receiver (%s)`, resMsgs[0])
		}
		return nil
	}
}

func (c *Client) Close() error {
	close(c.done)
	return nil
}
