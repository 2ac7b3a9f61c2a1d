package mock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAgent struct {
	conns   map[string]models.Connection
	sent    []string
	offered []messages.Attribute
}

func (f *fakeAgent) Invite(_ context.Context, opts models.InviteOptions) (models.Invitation, error) {
	return models.Invitation{ID: `inv1`, Label: opts.Label, URL: `http://agent.test?oob=abc`}, nil
}

func (f *fakeAgent) Accept(_ context.Context, url string) (models.Connection, error) {
	if strings.Contains(url, `used`) {
		return models.Connection{}, domain.ErrInvitationConsumed
	}
	return models.Connection{ID: `c1`, State: models.ConnActive}, nil
}

func (f *fakeAgent) Ping(_ context.Context, connID string) (time.Duration, error) {
	if _, ok := f.conns[connID]; !ok {
		return 0, fmt.Errorf(`connection %s - %w`, connID, domain.ErrRecordNotFound)
	}
	return 1500 * time.Microsecond, nil
}

func (f *fakeAgent) SendMessage(_ context.Context, _, content string) error {
	f.sent = append(f.sent, content)
	return nil
}

func (f *fakeAgent) Query(context.Context, string, string) ([]messages.Feature, error) {
	return nil, fmt.Errorf(`waiting for disclose - %w`, domain.ErrTimeout)
}

func (f *fakeAgent) OfferCredential(_ context.Context, _ string, attrs []messages.Attribute) error {
	f.offered = attrs
	return nil
}

func (f *fakeAgent) RequestProof(_ context.Context, _ string, attrs []string) (map[string]string, error) {
	return map[string]string{attrs[0]: `msc`}, nil
}

func (f *fakeAgent) Connection(id string) (models.Connection, error) {
	c, ok := f.conns[id]
	if !ok {
		return models.Connection{}, domain.ErrRecordNotFound
	}
	return c, nil
}

func (f *fakeAgent) Connections() []models.Connection {
	var conns []models.Connection
	for _, c := range f.conns {
		conns = append(conns, c)
	}
	return conns
}

func newTestServer(t *testing.T, agent *fakeAgent, stop func() error) *httptest.Server {
	srv := httptest.NewServer(Handler(agent, stop, log.NewLogger(false)))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path, body string) *http.Response {
	res, err := http.Post(srv.URL+path, domain.MediaTypJSON, bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func TestControl_Endpoints(t *testing.T) {
	agent := &fakeAgent{conns: map[string]models.Connection{`c1`: {ID: `c1`, State: models.ConnActive}}}
	srv := newTestServer(t, agent, func() error { return nil })

	res := post(t, srv, InvEndpoint, `{"label":"alice","multi_use":true}`)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var inv models.Invitation
	require.NoError(t, json.NewDecoder(res.Body).Decode(&inv))
	assert.Equal(t, `alice`, inv.Label)

	res = post(t, srv, ConnectEndpoint, `http://agent.test?oob=abc`)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res = post(t, srv, PingEndpoint, `{"connection_id":"c1"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var ping resPing
	require.NoError(t, json.NewDecoder(res.Body).Decode(&ping))
	assert.Equal(t, 1.5, ping.LatencyMs)

	res = post(t, srv, MessageEndpoint, `{"connection_id":"c1","content":"hi"}`)
	assert.Equal(t, http.StatusAccepted, res.StatusCode)
	assert.Equal(t, []string{`hi`}, agent.sent)

	res = post(t, srv, CredentialEndpoint, `{"connection_id":"c1","attributes":[{"name":"degree","value":"msc"}]}`)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, []messages.Attribute{{Name: `degree`, Value: `msc`}}, agent.offered)

	res = post(t, srv, ProofEndpoint, `{"connection_id":"c1","attributes":["degree"]}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var pr resProof
	require.NoError(t, json.NewDecoder(res.Body).Decode(&pr))
	assert.Equal(t, map[string]string{`degree`: `msc`}, pr.Revealed)

	getRes, err := http.Get(srv.URL + ConnectionsEndpoint + `/c1`)
	require.NoError(t, err)
	defer getRes.Body.Close()
	assert.Equal(t, http.StatusOK, getRes.StatusCode)
}

func TestControl_ErrorStatus(t *testing.T) {
	agent := &fakeAgent{conns: map[string]models.Connection{}}
	srv := newTestServer(t, agent, func() error { return nil })

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{`missing connection id`, PingEndpoint, `{}`, http.StatusBadRequest},
		{`malformed body`, MessageEndpoint, `{"connection_id":`, http.StatusBadRequest},
		{`empty attributes`, CredentialEndpoint, `{"connection_id":"c1","attributes":[]}`, http.StatusBadRequest},
		{`unknown connection`, PingEndpoint, `{"connection_id":"c9"}`, http.StatusNotFound},
		{`consumed invitation`, ConnectEndpoint, `http://agent.test?oob=used`, http.StatusConflict},
		{`invalid url`, ConnectEndpoint, `not a url`, http.StatusBadRequest},
		{`timeout`, QueryEndpoint, `{"connection_id":"c1","query":"*"}`, http.StatusGatewayTimeout},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			res := post(t, srv, test.path, test.body)
			assert.Equal(t, test.status, res.StatusCode)

			var e resError
			require.NoError(t, json.NewDecoder(res.Body).Decode(&e))
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestControl_Kill(t *testing.T) {
	stopped := make(chan struct{})
	srv := newTestServer(t, &fakeAgent{}, func() error {
		close(stopped)
		return nil
	})

	res := post(t, srv, KillEndpoint, ``)
	assert.Equal(t, http.StatusAccepted, res.StatusCode)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal(`agent was not stopped`)
	}
}

func TestStatus_TransportError(t *testing.T) {
	err := fmt.Errorf(`sending failed - %w`, &domain.TransportError{Endpoint: `http://peer`, Status: 500})
	assert.Equal(t, http.StatusBadGateway, status(err))
}
