// Package mock serves a control API over http to drive an agent from test
// scripts instead of the interactive cli.
package mock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/domain/services"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/tryfix/log"
)

const maxBody = 1 << 20

type mocker struct {
	agent    services.Agent
	stop     func() error
	validate *validator.Validate
	log      log.Logger
}

// Handler creates the router of the control API. stop is called on a kill
// request.
func Handler(agent services.Agent, stop func() error, logger log.Logger) http.Handler {
	m := mocker{
		agent:    agent,
		stop:     stop,
		validate: validator.New(),
		log:      logger,
	}

	r := mux.NewRouter()
	r.HandleFunc(InvEndpoint, m.handleInvite).Methods(http.MethodPost)
	r.HandleFunc(ConnectEndpoint, m.handleAccept).Methods(http.MethodPost)
	r.HandleFunc(ConnectionsEndpoint, m.handleConnections).Methods(http.MethodGet)
	r.HandleFunc(ConnectionsEndpoint+`/{id}`, m.handleConnection).Methods(http.MethodGet)
	r.HandleFunc(PingEndpoint, m.handlePing).Methods(http.MethodPost)
	r.HandleFunc(MessageEndpoint, m.handleMessage).Methods(http.MethodPost)
	r.HandleFunc(QueryEndpoint, m.handleQuery).Methods(http.MethodPost)
	r.HandleFunc(CredentialEndpoint, m.handleCredential).Methods(http.MethodPost)
	r.HandleFunc(ProofEndpoint, m.handleProof).Methods(http.MethodPost)
	r.HandleFunc(KillEndpoint, m.handleKill).Methods(http.MethodPost)
	return r
}

// Start serves the control API on the port until the server fails
func Start(port int, agent services.Agent, stop func() error, logger log.Logger) *http.Server {
	srv := &http.Server{
		Addr:              `:` + strconv.Itoa(port),
		Handler:           Handler(agent, stop, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(`mocker`, fmt.Sprintf(`http server initialization failed - %v`, err))
		}
	}()

	logger.Info(fmt.Sprintf(`mock server initialized and started listening on %d`, port))
	return srv
}

func (m *mocker) handleInvite(w http.ResponseWriter, r *http.Request) {
	var opts models.InviteOptions
	if !m.decode(w, r, &opts) {
		return
	}

	inv, err := m.agent.Invite(r.Context(), opts)
	if err != nil {
		m.fail(w, err)
		return
	}
	m.reply(w, http.StatusCreated, inv)
}

// handleAccept takes the invitation url as the raw body
func (m *mocker) handleAccept(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		m.fail(w, err)
		return
	}
	m.log.Trace(`mocker`, `received invitation`, string(data))

	rawURL := strings.TrimSpace(string(data))
	if _, err = url.ParseRequestURI(rawURL); err != nil {
		m.fail(w, fmt.Errorf(`invalid url format - %v: %w`, err, domain.ErrValidation))
		return
	}

	conn, err := m.agent.Accept(r.Context(), rawURL)
	if err != nil {
		m.fail(w, err)
		return
	}
	m.reply(w, http.StatusOK, conn)
}

func (m *mocker) handleConnections(w http.ResponseWriter, _ *http.Request) {
	conns := m.agent.Connections()
	if conns == nil {
		conns = []models.Connection{}
	}
	m.reply(w, http.StatusOK, conns)
}

func (m *mocker) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := m.agent.Connection(mux.Vars(r)[`id`])
	if err != nil {
		m.fail(w, err)
		return
	}
	m.reply(w, http.StatusOK, conn)
}

func (m *mocker) handlePing(w http.ResponseWriter, r *http.Request) {
	var req reqConnection
	if !m.decode(w, r, &req) {
		return
	}

	latency, err := m.agent.Ping(r.Context(), req.ConnectionID)
	if err != nil {
		m.fail(w, err)
		return
	}
	m.reply(w, http.StatusOK, resPing{LatencyMs: float64(latency.Microseconds()) / 1000})
}

func (m *mocker) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req reqMessage
	if !m.decode(w, r, &req) {
		return
	}

	if err := m.agent.SendMessage(r.Context(), req.ConnectionID, req.Content); err != nil {
		m.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (m *mocker) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req reqQuery
	if !m.decode(w, r, &req) {
		return
	}

	features, err := m.agent.Query(r.Context(), req.ConnectionID, req.Query)
	if err != nil {
		m.fail(w, err)
		return
	}
	m.reply(w, http.StatusOK, features)
}

func (m *mocker) handleCredential(w http.ResponseWriter, r *http.Request) {
	var req reqCredential
	if !m.decode(w, r, &req) {
		return
	}

	if err := m.agent.OfferCredential(r.Context(), req.ConnectionID, req.Attributes); err != nil {
		m.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *mocker) handleProof(w http.ResponseWriter, r *http.Request) {
	var req reqProof
	if !m.decode(w, r, &req) {
		return
	}

	revealed, err := m.agent.RequestProof(r.Context(), req.ConnectionID, req.Attributes)
	if err != nil {
		m.fail(w, err)
		return
	}
	m.reply(w, http.StatusOK, resProof{Revealed: revealed})
}

func (m *mocker) handleKill(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusAccepted)
	// stopping closes the servers hence runs after the reply is written
	go func() {
		if err := m.stop(); err != nil {
			m.log.Error(`mocker`, `terminating container failed`, err)
		}
	}()
}

func (m *mocker) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		m.fail(w, fmt.Errorf(`decoding request body failed - %v: %w`, err, domain.ErrValidation))
		return false
	}

	if err := m.validate.Struct(v); err != nil {
		m.fail(w, fmt.Errorf(`%v: %w`, err, domain.ErrValidation))
		return false
	}
	return true
}

func (m *mocker) reply(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set(`Content-Type`, domain.MediaTypJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		m.log.Error(`mocker`, `writing response failed`, err)
	}
}

func (m *mocker) fail(w http.ResponseWriter, err error) {
	m.log.Error(`mocker`, err)
	m.reply(w, status(err), resError{Error: err.Error()})
}

func status(err error) int {
	var terr *domain.TransportError
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrUnknownInvitation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidConnectionState), errors.Is(err, domain.ErrInvitationConsumed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnsupportedProtocol):
		return http.StatusNotImplemented
	case errors.Is(err, domain.ErrProblemReported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &terr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
