package zmq

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/YasiruR/didcomm-engine/domain/models"
	zmq "github.com/pebbe/zmq4"
	"github.com/tryfix/log"
)

// Server receives messages on a REP socket. Every message is acknowledged
// once it has been handed over to the handler of its type.
type Server struct {
	endpoint string
	skt      *zmq.Socket
	handlers map[string]chan models.Message
	mu       *sync.RWMutex
	state    *sync.Mutex
	started  bool
	stopped  chan struct{}
	log      log.Logger
}

func NewServer(zmqCtx *zmq.Context, endpoint string, logger log.Logger) (*Server, error) {
	skt, err := zmqCtx.NewSocket(zmq.REP)
	if err != nil {
		return nil, fmt.Errorf(`constructing zmq server socket failed - %v`, err)
	}

	if err = skt.Bind(endpoint); err != nil {
		skt.Close()
		return nil, fmt.Errorf(`binding zmq socket to %s failed - %v`, endpoint, err)
	}

	return &Server{
		endpoint: endpoint,
		skt:      skt,
		handlers: map[string]chan models.Message{},
		mu:       &sync.RWMutex{},
		state:    &sync.Mutex{},
		stopped:  make(chan struct{}),
		log:      logger,
	}, nil
}

// AddHandler registers the notifier of a message type. Replies are not
// supported over zmq hence the async flag is ignored.
func (s *Server) AddHandler(msgType string, notifier chan models.Message, _ bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[msgType] = notifier
}

func (s *Server) RemoveHandler(msgType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, msgType)
}

// Start receives until the zmq context is terminated. The socket is only
// used and closed by this goroutine.
func (s *Server) Start() error {
	s.state.Lock()
	select {
	case <-s.stopped:
		s.state.Unlock()
		return nil
	default:
	}
	s.started = true
	s.state.Unlock()
	defer s.skt.Close()

	s.log.Info(fmt.Sprintf(`zmq server started listening on %s`, s.endpoint))
	for {
		msg, err := s.skt.RecvMessageBytes(0)
		if err != nil {
			if zmq.AsErrno(err) == zmq.ETERM {
				return nil
			}

			select {
			case <-s.stopped:
				return nil
			default:
			}

			if err.Error() != errTempUnavail {
				s.log.Error(fmt.Sprintf(`receiving zmq message failed - %v`, err))
			}
			continue
		}

		if len(msg) != 2 {
			s.log.Error(fmt.Sprintf(`received an invalid message with %d frames`, len(msg)))
			s.sendAck(false)
			continue
		}

		var md metadata
		if err = json.Unmarshal(msg[0], &md); err != nil {
			s.log.Error(fmt.Sprintf(`invalid metadata frame - %v`, err))
			s.sendAck(false)
			continue
		}

		s.mu.RLock()
		notifier, ok := s.handlers[md.Type]
		s.mu.RUnlock()
		if !ok {
			s.log.Error(fmt.Sprintf(`no handler defined for the received message type (%s)`, md.Type))
			s.sendAck(false)
			continue
		}

		notifier <- models.Message{Type: md.Type, Data: msg[1]}
		s.sendAck(true)
	}
}

func (s *Server) sendAck(success bool) {
	msg := successRes
	if !success {
		msg = failedRes
	}

	if _, err := s.skt.Send(msg, 0); err != nil {
		s.log.Error(fmt.Sprintf(`sending zmq acknowledgement failed - %v`, err))
	}
}

// Stop marks the server as stopped. A running receive loop returns once the
// zmq context is terminated, otherwise the socket is closed right away.
func (s *Server) Stop() error {
	s.state.Lock()
	defer s.state.Unlock()
	select {
	case <-s.stopped:
		return nil
	default:
	}

	close(s.stopped)
	if !s.started {
		return s.skt.Close()
	}
	return nil
}
