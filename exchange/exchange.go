package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Protocol is implemented by every protocol module. HandleInbound runs the
// responder side of the protocol for messages of its family.
type Protocol interface {
	ID() string
	Roles() []string
	HandleInbound(ctx context.Context, ex *Exchange, msg models.EndpointMessage) error
}

// Action is a single step of a protocol executed on an exchange
type Action struct {
	Protocol string
	Name     string
	Run      func(ctx context.Context, ex *Exchange) error
}

type Matcher func(msg models.EndpointMessage) bool

func ByType(typ string) Matcher {
	return func(msg models.EndpointMessage) bool {
		return msg.Type == messages.NormalizeType(typ)
	}
}

func ByThread(typ, thid string) Matcher {
	return func(msg models.EndpointMessage) bool {
		return msg.Type == messages.NormalizeType(typ) && msg.ThreadID == thid
	}
}

type result struct {
	msg models.EndpointMessage
	err error
}

type waiter struct {
	match Matcher
	res   chan result
}

// Exchange threads state through a sequence of protocol steps. The history
// is append-only and attachments are keyed by name and type.
type Exchange struct {
	id          string
	engine      *Engine
	history     []models.EndpointMessage
	attachments map[attachmentKey]interface{}
	verkeys     []string
	waiters     []*waiter
	inbox       []result
	closed      bool
	mu          sync.Mutex
}

func (ex *Exchange) ID() string {
	return ex.id
}

func (ex *Exchange) Engine() *Engine {
	return ex.engine
}

// WithProtocol binds a protocol and returns a session scoped to it
func (ex *Exchange) WithProtocol(id string) *Session {
	proto, err := ex.engine.protocols.Protocol(id)
	if err != nil {
		return &Session{ex: ex, err: err}
	}
	return &Session{ex: ex, protocol: proto}
}

func (ex *Exchange) Attach(entries ...Entry) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	for _, e := range entries {
		ex.attachments[e.key] = e.val
	}
}

// Fork creates a new exchange carrying the attachments of this one except
// for the connection
func (ex *Exchange) Fork() *Exchange {
	child := ex.engine.NewExchange()
	ex.mu.Lock()
	defer ex.mu.Unlock()
	for k, v := range ex.attachments {
		if k == ConnectionKey.id() {
			continue
		}
		child.attachments[k] = v
	}
	return child
}

func (ex *Exchange) History() []models.EndpointMessage {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return append([]models.EndpointMessage(nil), ex.history...)
}

// Last returns the latest message of the given type in the history
func (ex *Exchange) Last(typ string) (models.EndpointMessage, bool) {
	return ex.Find(ByType(typ))
}

func (ex *Exchange) Find(match Matcher) (models.EndpointMessage, bool) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	for i := len(ex.history) - 1; i >= 0; i-- {
		if match(ex.history[i]) {
			return ex.history[i], true
		}
	}
	return models.EndpointMessage{}, false
}

func (ex *Exchange) record(msg models.EndpointMessage) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.history = append(ex.history, msg)
}

// Own registers the exchange as the receiver of messages sent to the verkey
func (ex *Exchange) Own(verkey string) {
	ex.mu.Lock()
	ex.verkeys = append(ex.verkeys, verkey)
	ex.mu.Unlock()
	ex.engine.registry.Register(verkey, ex)
}

// Disown releases a verkey registered with Own
func (ex *Exchange) Disown(verkey string) {
	ex.mu.Lock()
	ex.verkeys = lo.Without(ex.verkeys, verkey)
	ex.mu.Unlock()
	ex.engine.registry.Remove(verkey, ex)
}

func (ex *Exchange) Verkeys() []string {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return append([]string(nil), ex.verkeys...)
}

type Outbound struct {
	Message interface{}
	// anoncrypt is used when sender is nil
	Sender        *models.KeyPair
	RecipientKeys []string
	RoutingKeys   []string
	Endpoint      string
}

// Send appends the message to the history, packs and dispatches it. A failed
// dispatch is not removed from the history.
func (ex *Exchange) Send(ctx context.Context, out Outbound) (models.EndpointMessage, error) {
	msg, err := models.NewEndpointMessage(out.Message, models.Outbound)
	if err != nil {
		return models.EndpointMessage{}, err
	}

	if out.Sender != nil {
		msg.SenderVerkey = out.Sender.Verkey
	}
	if len(out.RecipientKeys) > 0 {
		msg.RecipientVerkey = out.RecipientKeys[0]
	}

	env, err := ex.engine.packer.Pack(msg.Raw, out.Sender, out.RecipientKeys...)
	if err != nil {
		return models.EndpointMessage{}, fmt.Errorf(`packing %s failed - %w`, msg.Type, err)
	}

	env, err = ex.forward(env, msg.RecipientVerkey, out.RoutingKeys)
	if err != nil {
		return models.EndpointMessage{}, err
	}

	data, err := json.Marshal(env)
	if err != nil {
		return models.EndpointMessage{}, fmt.Errorf(`marshalling envelope failed - %v`, err)
	}

	// recorded before dispatching since the reply may arrive before Send returns
	ex.record(msg)
	if err = ex.engine.client.Send(ctx, domain.MsgTypEnvelope, data, out.Endpoint); err != nil {
		return models.EndpointMessage{}, fmt.Errorf(`sending %s failed - %w`, msg.Type, err)
	}
	ex.engine.log.Trace(fmt.Sprintf(`exchange %s sent %s to %s`, ex.id, msg.Type, out.Endpoint))
	return msg, nil
}

// forward wraps the envelope for each mediator (RFC-0094), the last routing
// key being the one reached first
func (ex *Exchange) forward(env messages.AuthCryptMsg, to string, routingKeys []string) (messages.AuthCryptMsg, error) {
	for _, rk := range routingKeys {
		byts, err := json.Marshal(messages.Forward{Id: uuid.New().String(), Type: messages.ForwardV1, To: to, Msg: env})
		if err != nil {
			return messages.AuthCryptMsg{}, fmt.Errorf(`marshalling forward message failed - %v`, err)
		}

		env, err = ex.engine.packer.Pack(byts, nil, rk)
		if err != nil {
			return messages.AuthCryptMsg{}, fmt.Errorf(`packing forward message for %s failed - %w`, rk, err)
		}
		to = rk
	}
	return env, nil
}

// Await blocks until a matching inbound message is available. Messages which
// arrived before the call are taken from the inbox.
func (ex *Exchange) Await(ctx context.Context, match Matcher) (models.EndpointMessage, error) {
	ex.mu.Lock()
	if ex.closed {
		ex.mu.Unlock()
		return models.EndpointMessage{}, domain.ErrExchangeClosed
	}

	for i, r := range ex.inbox {
		if match(r.msg) {
			ex.inbox = append(ex.inbox[:i], ex.inbox[i+1:]...)
			ex.mu.Unlock()
			return r.msg, r.err
		}
	}

	w := &waiter{match: match, res: make(chan result, 1)}
	ex.waiters = append(ex.waiters, w)
	ex.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, ex.engine.timeout)
	defer cancel()

	select {
	case r := <-w.res:
		return r.msg, r.err
	case <-ctx.Done():
		ex.removeWaiter(w)
		// a message may have been delivered while removing the waiter
		select {
		case r := <-w.res:
			return r.msg, r.err
		default:
		}
		return models.EndpointMessage{}, fmt.Errorf(`exchange %s - %v: %w`, ex.id, ctx.Err(), domain.ErrTimeout)
	}
}

func (ex *Exchange) removeWaiter(w *waiter) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	for i, cur := range ex.waiters {
		if cur == w {
			ex.waiters = append(ex.waiters[:i], ex.waiters[i+1:]...)
			return
		}
	}
}

// Deliver hands an inbound message to the exchange. The protocol owning the
// message type handles it first, then a matching waiter receives it together
// with the handler's error. Unclaimed messages are kept in the inbox along
// with that error.
func (ex *Exchange) Deliver(ctx context.Context, msg models.EndpointMessage) error {
	msg.Direction = models.Inbound
	ex.record(msg)

	proto, errProto := ex.engine.protocols.ByMessageType(msg.Type)
	var errHandle error
	if errProto == nil {
		errHandle = proto.HandleInbound(ctx, ex, msg)
	}

	if errProto != nil {
		if !ex.resolve(msg, nil, false) {
			return errProto
		}
		return nil
	}

	ex.resolve(msg, errHandle, true)
	return errHandle
}

// resolve passes the message to the first matching waiter or queues it
func (ex *Exchange) resolve(msg models.EndpointMessage, err error, queue bool) (claimed bool) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	for i, w := range ex.waiters {
		if w.match(msg) {
			ex.waiters = append(ex.waiters[:i], ex.waiters[i+1:]...)
			w.res <- result{msg: msg, err: err}
			return true
		}
	}

	if !queue || ex.closed {
		return false
	}

	if len(ex.inbox) >= ex.engine.inboxSize {
		ex.inbox = ex.inbox[1:]
	}
	ex.inbox = append(ex.inbox, result{msg: msg, err: err})
	return false
}

// Close releases the verkeys owned by the exchange and fails pending waiters
func (ex *Exchange) Close() {
	ex.mu.Lock()
	if ex.closed {
		ex.mu.Unlock()
		return
	}
	ex.closed = true
	verkeys := ex.verkeys
	waiters := ex.waiters
	ex.waiters = nil
	ex.inbox = nil
	ex.mu.Unlock()

	for _, vk := range verkeys {
		ex.engine.registry.Remove(vk, ex)
	}
	for _, w := range waiters {
		w.res <- result{err: domain.ErrExchangeClosed}
	}
}

// Session is an exchange scoped to a protocol. The first failing action
// aborts the chain and later calls have no effect.
type Session struct {
	ex       *Exchange
	protocol Protocol
	err      error
}

func (s *Session) WithProtocol(id string) *Session {
	if s.err != nil {
		return s
	}
	return s.ex.WithProtocol(id)
}

func (s *Session) WithAttachment(entries ...Entry) *Session {
	if s.err == nil {
		s.ex.Attach(entries...)
	}
	return s
}

func (s *Session) Do(ctx context.Context, actions ...Action) *Session {
	for _, a := range actions {
		if s.err != nil {
			return s
		}

		if messages.NormalizeType(a.Protocol) != s.protocol.ID() {
			s.err = fmt.Errorf(`action %s of %s on %s - %w`, a.Name, a.Protocol, s.protocol.ID(), domain.ErrProtocolNotBound)
			return s
		}

		if err := a.Run(ctx, s.ex); err != nil {
			s.err = fmt.Errorf(`%s failed - %w`, a.Name, err)
			s.ex.engine.log.Debug(fmt.Sprintf(`exchange %s aborted - %v`, s.ex.id, s.err))
		}
	}
	return s
}

func (s *Session) Err() error {
	return s.err
}

func (s *Session) Exchange() *Exchange {
	return s.ex
}

// IsTimeout reports whether the error was caused by an await timing out
func IsTimeout(err error) bool {
	return errors.Is(err, domain.ErrTimeout)
}
