package reqrep

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/klauspost/compress/zstd"
	"github.com/tryfix/log"
	"nhooyr.io/websocket"
)

const maxErrBody = 512

// Sender transmits a message over a single transport
type Sender interface {
	Send(ctx context.Context, typ string, data []byte, endpoint string) error
}

type ClientConfig struct {
	Timeout time.Duration
	// Compress posts bodies with zstd content encoding
	Compress bool
	// ZMQ is used for tcp endpoints when set
	ZMQ Sender
}

// Client sends envelopes to http(s), ws(s) and tcp (zmq) endpoints
type Client struct {
	http     *http.Client
	compress bool
	encoder  *zstd.Encoder
	zmq      Sender
	log      log.Logger
}

func NewClient(cfg ClientConfig, logger log.Logger) (*Client, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf(`creating zstd encoder failed - %v`, err)
	}

	return &Client{
		http:     &http.Client{Timeout: cfg.Timeout},
		compress: cfg.Compress,
		encoder:  enc,
		zmq:      cfg.ZMQ,
		log:      logger,
	}, nil
}

func (c *Client) Send(ctx context.Context, typ string, data []byte, endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return &domain.TransportError{Endpoint: endpoint, Err: fmt.Errorf(`invalid endpoint - %v`, err)}
	}

	switch u.Scheme {
	case `http`, `https`:
		return c.post(ctx, data, endpoint)
	case `ws`, `wss`:
		return c.write(ctx, data, endpoint)
	case `tcp`:
		if c.zmq == nil {
			break
		}
		if err = c.zmq.Send(ctx, typ, data, endpoint); err != nil {
			return &domain.TransportError{Endpoint: endpoint, Err: err}
		}
		return nil
	}

	return &domain.TransportError{Endpoint: endpoint, Err: fmt.Errorf(`unsupported scheme '%s'`, u.Scheme)}
}

func (c *Client) post(ctx context.Context, data []byte, endpoint string) error {
	body := data
	if c.compress {
		body = c.encoder.EncodeAll(data, nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &domain.TransportError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set(`Content-Type`, domain.MediaTypEnvelope)
	if c.compress {
		req.Header.Set(`Content-Encoding`, domain.EncodingZstd)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return &domain.TransportError{Endpoint: endpoint, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusOK && res.StatusCode < http.StatusMultipleChoices {
		return nil
	}

	resBody, _ := io.ReadAll(io.LimitReader(res.Body, maxErrBody))
	return &domain.TransportError{Endpoint: endpoint, Status: res.StatusCode, Body: string(resBody)}
}

// write opens a websocket connection for the message since DIDComm is
// simplex by nature
func (c *Client) write(ctx context.Context, data []byte, endpoint string) error {
	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return &domain.TransportError{Endpoint: endpoint, Err: err}
	}

	defer func() {
		if err := conn.Close(websocket.StatusNormalClosure, ``); err != nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
			c.log.Debug(fmt.Sprintf(`closing websocket connection to %s failed - %v`, endpoint, err))
		}
	}()

	if err = conn.Write(ctx, websocket.MessageText, data); err != nil {
		return &domain.TransportError{Endpoint: endpoint, Err: err}
	}
	return nil
}
