package reqrep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"sync"

	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/gorilla/mux"
	"github.com/klauspost/compress/zstd"
	"github.com/tryfix/log"
)

const maxBodySize = 4 << 20

var acceptedMediaTypes = map[string]bool{
	domain.MediaTypEnvelope:       true,
	domain.MediaTypEnvelopeLegacy: true,
	domain.MediaTypAgentWire:      true,
	domain.MediaTypJSON:           true,
}

type handler struct {
	notifier chan models.Message
	async    bool
}

// HTTP receives envelopes posted to the inbound endpoint and over websocket
// sessions opened on the ws endpoint
type HTTP struct {
	port     int
	router   *mux.Router
	srv      *http.Server
	hub      *Hub
	decoder  *zstd.Decoder
	handlers map[string]handler
	mu       *sync.RWMutex
	log      log.Logger
}

func NewHTTP(port int, hub *Hub, logger log.Logger) (*HTTP, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf(`creating zstd decoder failed - %v`, err)
	}

	h := &HTTP{
		port:     port,
		router:   mux.NewRouter(),
		hub:      hub,
		decoder:  dec,
		handlers: map[string]handler{},
		mu:       &sync.RWMutex{},
		log:      logger,
	}

	h.router.HandleFunc(domain.InboundEndpoint, h.handleInbound).Methods(http.MethodPost)
	h.router.HandleFunc(domain.WSEndpoint, h.handleWS).Methods(http.MethodGet)
	h.srv = &http.Server{Addr: `:` + strconv.Itoa(port), Handler: h.router}
	return h, nil
}

// Handler returns the router serving the endpoints
func (h *HTTP) Handler() http.Handler {
	return h.router
}

func (h *HTTP) Start() error {
	h.log.Info(fmt.Sprintf(`http server started listening on %d`, h.port))
	if err := h.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf(`http server initialization failed - %v`, err)
	}
	return nil
}

func (h *HTTP) AddHandler(msgType string, notifier chan models.Message, async bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[msgType] = handler{notifier: notifier, async: async}
}

func (h *HTTP) RemoveHandler(msgType string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.handlers, msgType)
}

func (h *HTTP) handler(msgType string) (handler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	hn, ok := h.handlers[msgType]
	return hn, ok
}

func (h *HTTP) handleInbound(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	mt, _, err := mime.ParseMediaType(r.Header.Get(`Content-Type`))
	if err != nil || !acceptedMediaTypes[mt] {
		h.log.Debug(fmt.Sprintf(`inbound message with content type '%s' rejected`, r.Header.Get(`Content-Type`)))
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.log.Error(fmt.Sprintf(`reading inbound message failed - %v`, err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if r.Header.Get(`Content-Encoding`) == domain.EncodingZstd {
		if data, err = h.decoder.DecodeAll(data, nil); err != nil {
			h.log.Error(fmt.Sprintf(`decompressing inbound message failed - %v`, err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	reply, err := h.dispatch(r.Context(), domain.MsgTypEnvelope, data)
	if err != nil {
		h.log.Error(err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	if reply == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set(`Content-Type`, domain.MediaTypEnvelope)
	if _, err = w.Write(reply); err != nil {
		h.log.Error(fmt.Sprintf(`writing reply failed - %v`, err))
	}
}

// dispatch pushes the message to the handler of the type and waits for the
// reply of synchronous handlers
func (h *HTTP) dispatch(ctx context.Context, msgType string, data []byte) ([]byte, error) {
	hn, ok := h.handler(msgType)
	if !ok {
		return nil, fmt.Errorf(`no handler registered for %s messages`, msgType)
	}

	msg := models.Message{Type: msgType, Data: data}
	if !hn.async {
		msg.Reply = make(chan []byte, 1)
	}

	select {
	case hn.notifier <- msg:
	case <-ctx.Done():
		return nil, fmt.Errorf(`dispatching %s message failed - %v`, msgType, ctx.Err())
	}

	if hn.async {
		return nil, nil
	}

	select {
	case reply := <-msg.Reply:
		return reply, nil
	case <-ctx.Done():
		return nil, fmt.Errorf(`waiting for reply to %s message failed - %v`, msgType, ctx.Err())
	}
}

func (h *HTTP) handleWS(w http.ResponseWriter, r *http.Request) {
	s, err := h.hub.Accept(w, r)
	if err != nil {
		h.log.Error(err)
		return
	}
	defer h.hub.Remove(s)

	// envelopes received over the session are dispatched like posted ones
	for {
		data, err := s.Read()
		if err != nil {
			h.log.Trace(fmt.Sprintf(`websocket session %s ended - %v`, s.ID(), err))
			return
		}

		if _, err = h.dispatch(r.Context(), domain.MsgTypEnvelope, data); err != nil {
			h.log.Error(err)
		}
	}
}

func (h *HTTP) Stop() error {
	h.hub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := h.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf(`http server shutdown failed - %v`, err)
	}
	return nil
}
