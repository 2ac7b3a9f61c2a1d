package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/YasiruR/didcomm-engine/crypto"
	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testProtocol = messages.PrefixDIDComm + `test/1.0`

type testProto struct {
	err     error
	handled []string
	mu      sync.Mutex
}

func (p *testProto) ID() string      { return testProtocol }
func (p *testProto) Roles() []string { return []string{`tester`} }

func (p *testProto) HandleInbound(_ context.Context, _ *Exchange, msg models.EndpointMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handled = append(p.handled, msg.ID)
	return p.err
}

type sent struct {
	data     []byte
	endpoint string
}

type captureClient struct {
	out []sent
	err error
}

func (c *captureClient) Send(_ context.Context, _ string, data []byte, endpoint string) error {
	if c.err != nil {
		return c.err
	}
	c.out = append(c.out, sent{data: data, endpoint: endpoint})
	return nil
}

func newTestEngine(proto Protocol, client *captureClient, timeout time.Duration) *Engine {
	return NewEngine(Config{
		Packer:    crypto.NewPacker(crypto.NewEncryptor(), log.NewLogger(false)),
		Client:    client,
		Protocols: NewProtocols(proto),
		Logger:    log.NewLogger(false),
		Timeout:   timeout,
	})
}

func testMsg(t *testing.T, id, name, thid string) models.EndpointMessage {
	body := map[string]interface{}{`@id`: id, `@type`: testProtocol + `/` + name}
	if thid != `` {
		body[`~thread`] = map[string]string{`thid`: thid}
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	m, err := models.ParseEndpointMessage(raw)
	require.NoError(t, err)
	return m
}

func TestAttachments_SameNameDifferentTypes(t *testing.T) {
	e := newTestEngine(&testProto{}, &captureClient{}, time.Second)
	strKey := NewKey[string](`value`)
	intKey := NewKey[int](`value`)

	ex := e.NewExchange(strKey.Bind(`text`), intKey.Bind(42))

	s, ok := strKey.From(ex)
	assert.True(t, ok)
	assert.Equal(t, `text`, s)

	i, ok := intKey.From(ex)
	assert.True(t, ok)
	assert.Equal(t, 42, i)

	_, ok = NewKey[bool](`value`).From(ex)
	assert.False(t, ok)
}

func TestAttachments_NilWallet(t *testing.T) {
	e := newTestEngine(&testProto{}, &captureClient{}, time.Second)
	ex := e.NewExchange(WalletKey.Bind(nil))

	_, ok := WalletKey.From(ex)
	assert.False(t, ok)

	_, err := Wallet(ex)
	assert.ErrorIs(t, err, domain.ErrWallet)
}

func TestExchange_Disown(t *testing.T) {
	e := newTestEngine(&testProto{}, &captureClient{}, time.Second)
	ex := e.NewExchange()
	ex.Own(`vk-1`)
	ex.Own(`vk-2`)

	ex.Disown(`vk-1`)
	_, ok := e.Registry().Lookup(`vk-1`)
	assert.False(t, ok)
	owner, ok := e.Registry().Lookup(`vk-2`)
	assert.True(t, ok)
	assert.Same(t, ex, owner)
	assert.Equal(t, []string{`vk-2`}, ex.Verkeys())
}

func TestSession_UnboundProtocol(t *testing.T) {
	e := newTestEngine(&testProto{}, &captureClient{}, time.Second)
	ran := false
	other := Action{Protocol: messages.ProtocolTrustPing, Name: `ping`, Run: func(context.Context, *Exchange) error {
		ran = true
		return nil
	}}

	err := e.NewExchange().WithProtocol(testProtocol).Do(context.Background(), other).Err()
	assert.ErrorIs(t, err, domain.ErrProtocolNotBound)
	assert.False(t, ran)

	err = e.NewExchange().WithProtocol(messages.ProtocolTrustPing).Err()
	assert.ErrorIs(t, err, domain.ErrUnsupportedProtocol)
}

func TestSession_ErrorIsSticky(t *testing.T) {
	e := newTestEngine(&testProto{}, &captureClient{}, time.Second)
	failure := errors.New(`failed`)
	var calls []string
	action := func(name string, err error) Action {
		return Action{Protocol: testProtocol, Name: name, Run: func(context.Context, *Exchange) error {
			calls = append(calls, name)
			return err
		}}
	}

	s := e.NewExchange().WithProtocol(testProtocol).
		Do(context.Background(), action(`first`, nil), action(`second`, failure)).
		Do(context.Background(), action(`third`, nil)).
		WithProtocol(testProtocol)

	assert.ErrorIs(t, s.Err(), failure)
	assert.Equal(t, []string{`first`, `second`}, calls)
}

func TestExchange_AwaitTimeout(t *testing.T) {
	e := newTestEngine(&testProto{}, &captureClient{}, 50*time.Millisecond)
	ex := e.NewExchange()

	start := time.Now()
	_, err := ex.Await(context.Background(), ByType(testProtocol+`/reply`))
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.True(t, IsTimeout(err))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestExchange_DeliverBeforeAwait(t *testing.T) {
	proto := &testProto{}
	e := newTestEngine(proto, &captureClient{}, time.Second)
	ex := e.NewExchange()

	require.NoError(t, ex.Deliver(context.Background(), testMsg(t, `m1`, `reply`, `th1`)))

	got, err := ex.Await(context.Background(), ByThread(testProtocol+`/reply`, `th1`))
	require.NoError(t, err)
	assert.Equal(t, `m1`, got.ID)
	assert.Equal(t, []string{`m1`}, proto.handled)
	assert.Len(t, ex.History(), 1)
}

func TestExchange_DeliverResolvesWaiter(t *testing.T) {
	e := newTestEngine(&testProto{}, &captureClient{}, time.Second)
	ex := e.NewExchange()

	done := make(chan models.EndpointMessage)
	go func() {
		m, err := ex.Await(context.Background(), ByType(testProtocol+`/reply`))
		assert.NoError(t, err)
		done <- m
	}()

	// waiting for the waiter to be registered
	require.Eventually(t, func() bool {
		ex.mu.Lock()
		defer ex.mu.Unlock()
		return len(ex.waiters) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, ex.Deliver(context.Background(), testMsg(t, `m2`, `reply`, ``)))
	assert.Equal(t, `m2`, (<-done).ID)
}

func TestExchange_HandlerErrorReachesWaiter(t *testing.T) {
	failure := errors.New(`rejected`)
	e := newTestEngine(&testProto{err: failure}, &captureClient{}, time.Second)
	ex := e.NewExchange()

	errs := make(chan error)
	go func() {
		_, err := ex.Await(context.Background(), ByType(testProtocol+`/reply`))
		errs <- err
	}()

	require.Eventually(t, func() bool {
		ex.mu.Lock()
		defer ex.mu.Unlock()
		return len(ex.waiters) == 1
	}, time.Second, time.Millisecond)

	assert.ErrorIs(t, ex.Deliver(context.Background(), testMsg(t, `m3`, `reply`, ``)), failure)
	assert.ErrorIs(t, <-errs, failure)
}

func TestExchange_UnsupportedMessageType(t *testing.T) {
	e := newTestEngine(&testProto{}, &captureClient{}, time.Second)
	ex := e.NewExchange()

	raw := []byte(`{"@id":"x","@type":"https://didcomm.org/unknown/1.0/msg"}`)
	m, err := models.ParseEndpointMessage(raw)
	require.NoError(t, err)
	assert.ErrorIs(t, ex.Deliver(context.Background(), m), domain.ErrUnsupportedMessageType)
}

func TestExchange_CloseReleasesRegistrations(t *testing.T) {
	e := newTestEngine(&testProto{}, &captureClient{}, time.Second)
	ex := e.NewExchange()
	ex.Own(`vk1`)

	got, ok := e.Registry().Lookup(`vk1`)
	require.True(t, ok)
	assert.Equal(t, ex, got)

	errs := make(chan error)
	go func() {
		_, err := ex.Await(context.Background(), ByType(testProtocol+`/reply`))
		errs <- err
	}()
	require.Eventually(t, func() bool {
		ex.mu.Lock()
		defer ex.mu.Unlock()
		return len(ex.waiters) == 1
	}, time.Second, time.Millisecond)

	ex.Close()
	assert.ErrorIs(t, <-errs, domain.ErrExchangeClosed)
	_, ok = e.Registry().Lookup(`vk1`)
	assert.False(t, ok)
}

func TestExchange_Send(t *testing.T) {
	client := &captureClient{}
	e := newTestEngine(&testProto{}, client, time.Second)
	km := crypto.NewKeyManager()
	sender, err := km.CreateKey()
	require.NoError(t, err)
	rec, err := km.CreateKey()
	require.NoError(t, err)

	ex := e.NewExchange()
	msg := map[string]interface{}{`@id`: `m1`, `@type`: testProtocol + `/hello`}
	out, err := ex.Send(context.Background(), Outbound{Message: msg, Sender: &sender, RecipientKeys: []string{rec.Verkey}, Endpoint: `http://peer`})
	require.NoError(t, err)
	assert.Equal(t, models.Outbound, out.Direction)
	require.Len(t, client.out, 1)
	assert.Equal(t, `http://peer`, client.out[0].endpoint)

	unpacked, err := crypto.NewPacker(crypto.NewEncryptor(), log.NewLogger(false)).Unpack(client.out[0].data, km)
	require.NoError(t, err)
	assert.Equal(t, sender.Verkey, unpacked.SenderVerkey)

	client.err = &domain.TransportError{Endpoint: `http://peer`, Status: 500}
	_, err = ex.Send(context.Background(), Outbound{Message: msg, RecipientKeys: []string{rec.Verkey}, Endpoint: `http://peer`})
	var terr *domain.TransportError
	assert.True(t, errors.As(err, &terr))
	assert.Len(t, ex.History(), 2)
}

func TestExchange_SendWrapsForRoutingKeys(t *testing.T) {
	client := &captureClient{}
	e := newTestEngine(&testProto{}, client, time.Second)
	km := crypto.NewKeyManager()
	rec, err := km.CreateKey()
	require.NoError(t, err)
	mediator, err := km.CreateKey()
	require.NoError(t, err)

	ex := e.NewExchange()
	msg := map[string]interface{}{`@id`: `m1`, `@type`: testProtocol + `/hello`}
	_, err = ex.Send(context.Background(), Outbound{Message: msg, RecipientKeys: []string{rec.Verkey}, RoutingKeys: []string{mediator.Verkey}, Endpoint: `http://mediator`})
	require.NoError(t, err)

	packer := crypto.NewPacker(crypto.NewEncryptor(), log.NewLogger(false))
	recs, err := packer.Recipients(client.out[0].data)
	require.NoError(t, err)
	assert.Equal(t, []string{mediator.Verkey}, recs)

	outer, err := packer.Unpack(client.out[0].data, km)
	require.NoError(t, err)
	var fwd messages.Forward
	require.NoError(t, json.Unmarshal(outer.Message, &fwd))
	assert.Equal(t, messages.ForwardV1, fwd.Type)
	assert.Equal(t, rec.Verkey, fwd.To)
}

func TestRegistry_Concurrent(t *testing.T) {
	e := newTestEngine(&testProto{}, &captureClient{}, time.Second)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ex := e.NewExchange()
			vk := string(rune('a' + i%26))
			ex.Own(vk + ex.ID())
			_, ok := e.Registry().Lookup(vk + ex.ID())
			assert.True(t, ok)
			ex.Close()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, e.Registry().Len())
}

func TestProtocols_Features(t *testing.T) {
	p := NewProtocols(&testProto{})
	assert.Equal(t, []messages.Feature{{Id: testProtocol, Roles: []string{`tester`}}}, p.Features())

	_, err := p.ByMessageType(messages.PrefixLegacy + `test/1.0/hello`)
	assert.NoError(t, err)
}
