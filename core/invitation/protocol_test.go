package invitation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/YasiruR/didcomm-engine/core/did"
	"github.com/YasiruR/didcomm-engine/crypto"
	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/exchange"
	"github.com/YasiruR/didcomm-engine/log"
	"github.com/YasiruR/didcomm-engine/wallet"
	"github.com/YasiruR/didcomm-engine/wallet/stores"
	"github.com/stretchr/testify/require"
)

func newTestSetup(t *testing.T, label string) (*exchange.Engine, *wallet.Wallet) {
	logger := log.NewLogger(false)
	w, err := wallet.New(wallet.Config{ID: label, Label: label, Endpoint: `http://` + label + `.test`},
		crypto.NewKeyManager(), did.NewHandler(10), stores.NewMemory(), logger)
	require.NoError(t, err)

	e := exchange.NewEngine(exchange.Config{
		Packer:    crypto.NewPacker(crypto.NewEncryptor(), logger),
		Protocols: exchange.NewProtocols(New(logger)),
		Logger:    logger,
		Timeout:   time.Second,
	})
	return e, w
}

func TestCreateAndReceive(t *testing.T) {
	r := require.New(t)
	inviterEngine, inviter := newTestSetup(t, `alice`)
	inviteeEngine, invitee := newTestSetup(t, `bob`)
	p := New(log.NewLogger(false))

	ex := inviterEngine.NewExchange(exchange.WalletKey.Bind(inviter))
	err := ex.WithProtocol(messages.ProtocolOOB).
		Do(context.Background(), p.Create(models.InviteOptions{Goal: `testing`, GoalCode: `test`})).Err()
	r.NoError(err)

	created, ok := exchange.InvitationKey.From(ex)
	r.True(ok)
	r.Equal(`alice`, created.Label)
	r.Equal(models.InvCreated, created.State)
	r.True(inviter.Keys().Has(created.InvitationKey))

	owner, ok := inviterEngine.Registry().Lookup(created.InvitationKey)
	r.True(ok)
	r.Equal(ex, owner)

	rex := inviteeEngine.NewExchange(exchange.WalletKey.Bind(invitee))
	r.NoError(rex.WithProtocol(messages.ProtocolOOB).Do(context.Background(), p.Receive(created.URL)).Err())

	received, ok := exchange.InvitationKey.From(rex)
	r.True(ok)
	r.Equal(created.ID, received.ID)
	r.Equal(created.InvitationKey, received.InvitationKey)
	r.Equal(`http://alice.test`, received.ServiceEndpoint)
	r.Equal(`testing`, received.Goal)
	r.Equal(models.InvReceived, received.State)

	// receiving the same invitation again reuses the stored record
	rex2 := inviteeEngine.NewExchange(exchange.WalletKey.Bind(invitee))
	r.NoError(rex2.WithProtocol(messages.ProtocolOOB).Do(context.Background(), p.Receive(created.URL)).Err())
	r.Len(invitee.Invitations(), 1)
}

func TestCreate_WithoutWallet(t *testing.T) {
	e, _ := newTestSetup(t, `alice`)
	err := e.NewExchange().WithProtocol(messages.ProtocolOOB).
		Do(context.Background(), New(log.NewLogger(false)).Create(models.InviteOptions{})).Err()
	require.ErrorIs(t, err, domain.ErrWallet)
}

func TestParseURL(t *testing.T) {
	key, err := crypto.NewKeyManager().CreateKey()
	require.NoError(t, err)
	didKey, err := did.DIDKey(key.Verkey)
	require.NoError(t, err)

	valid := messages.Invitation{
		Id:   `inv-1`,
		Type: messages.OOBInvitationV1_1,
		Services: []messages.Service{{
			Id: inlineSvc, Type: domain.ServcDIDComm, RecipientKeys: []string{didKey}, ServiceEndpoint: `http://alice.test`,
		}},
	}
	byts, err := json.Marshal(valid)
	require.NoError(t, err)

	noServices := valid
	noServices.Services = nil
	noSvcByts, err := json.Marshal(noServices)
	require.NoError(t, err)

	tests := []struct {
		name string
		url  string
		err  error
	}{
		{name: `padded`, url: `http://alice.test?oob=` + base64.URLEncoding.EncodeToString(byts)},
		{name: `raw`, url: `http://alice.test?oob=` + base64.RawURLEncoding.EncodeToString(byts)},
		{name: `legacy parameter`, url: `http://alice.test?c_i=` + base64.URLEncoding.EncodeToString(byts)},
		{name: `missing parameter`, url: `http://alice.test?x=1`, err: domain.ErrValidation},
		{name: `not json`, url: `http://alice.test?oob=` + base64.URLEncoding.EncodeToString([]byte(`invitation`)), err: domain.ErrValidation},
		{name: `no services`, url: `http://alice.test?oob=` + base64.URLEncoding.EncodeToString(noSvcByts), err: domain.ErrValidation},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			inv, err := ParseURL(tc.url)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, valid.Id, inv.Id)

			rec, err := Record(inv)
			require.NoError(t, err)
			require.Equal(t, key.Verkey, rec.InvitationKey)
		})
	}
}
