package credential_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/YasiruR/didcomm-engine/core/connection/connectiontest"
	"github.com/YasiruR/didcomm-engine/core/credential"
	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/exchange"
	"github.com/YasiruR/didcomm-engine/log"
	"github.com/YasiruR/didcomm-engine/wallet/stores"
	"github.com/stretchr/testify/require"
)

var attrs = []messages.Attribute{{Name: `name`, Value: `bob`}, {Name: `degree`, Value: `msc`}}

type refusingIssuer struct {
	*credential.AttributeFormat
}

func (refusingIssuer) Issue(models.Connection, messages.Attachment, messages.Attachment) (messages.AttachFormat, messages.Attachment, error) {
	return messages.AttachFormat{}, messages.Attachment{}, errors.New(`issuer is out of service`)
}

func TestIssueCredential(t *testing.T) {
	r := require.New(t)
	logger := log.NewLogger(false)
	holderFormat := credential.NewAttributeFormat(stores.NewMemory())
	issuerProto := credential.New(credential.NewAttributeFormat(stores.NewMemory()), nil, nil, logger)
	holderProto := credential.New(nil, holderFormat, nil, logger)

	net := connectiontest.NewNetwork()
	alice := net.AddNode(t, `alice`, 2*time.Second, issuerProto)
	bob := net.AddNode(t, `bob`, 2*time.Second, holderProto)
	aliceEx, bobEx := connectiontest.Connect(t, alice, bob)

	r.NoError(aliceEx.WithProtocol(messages.ProtocolCredential).
		Do(context.Background(), issuerProto.Offer(attrs, `degree`), issuerProto.AwaitAck()).Err())

	r.NoError(bobEx.WithProtocol(messages.ProtocolCredential).
		Do(context.Background(), holderProto.AwaitCredential()).Err())

	cred, ok := credential.CredentialKey.From(bobEx)
	r.True(ok)
	r.Equal(map[string]string{`name`: `bob`, `degree`: `msc`}, cred.Attributes)

	bobConn, ok := exchange.ConnectionKey.From(bobEx)
	r.True(ok)
	r.Equal(bobConn.TheirDid, cred.IssuerDid)
	r.Equal(bobConn.MyDid, cred.SubjectDid)

	held, err := holderFormat.Credentials()
	r.NoError(err)
	r.Len(held, 1)

	var types []string
	for _, m := range aliceEx.History() {
		if messages.Family(m.Type) == messages.ProtocolCredential {
			types = append(types, m.Type)
		}
	}
	r.Equal([]string{messages.CredentialOfferV2, messages.CredentialRequestV2, messages.CredentialIssueV2, messages.CredentialAckV2}, types)
}

func TestIssueCredential_AbandonedByIssuer(t *testing.T) {
	r := require.New(t)
	logger := log.NewLogger(false)
	issuerProto := credential.New(refusingIssuer{credential.NewAttributeFormat(stores.NewMemory())}, nil, nil, logger)
	holderProto := credential.New(nil, credential.NewAttributeFormat(stores.NewMemory()), nil, logger)

	net := connectiontest.NewNetwork()
	alice := net.AddNode(t, `alice`, 2*time.Second, issuerProto)
	bob := net.AddNode(t, `bob`, 2*time.Second, holderProto)
	aliceEx, bobEx := connectiontest.Connect(t, alice, bob)

	r.NoError(aliceEx.WithProtocol(messages.ProtocolCredential).
		Do(context.Background(), issuerProto.Offer(attrs, ``)).Err())

	err := bobEx.WithProtocol(messages.ProtocolCredential).
		Do(context.Background(), holderProto.AwaitCredential()).Err()
	r.ErrorIs(err, domain.ErrProblemReported)

	_, ok := credential.CredentialKey.From(bobEx)
	r.False(ok)
}

func TestIssueCredential_RequiresHolderRole(t *testing.T) {
	r := require.New(t)
	logger := log.NewLogger(false)
	issuerProto := credential.New(credential.NewAttributeFormat(stores.NewMemory()), nil, nil, logger)

	net := connectiontest.NewNetwork()
	alice := net.AddNode(t, `alice`, 2*time.Second, issuerProto)
	bob := net.AddNode(t, `bob`, 2*time.Second, credential.New(credential.NewAttributeFormat(stores.NewMemory()), nil, nil, logger))
	aliceEx, _ := connectiontest.Connect(t, alice, bob)

	r.NoError(aliceEx.WithProtocol(messages.ProtocolCredential).
		Do(context.Background(), issuerProto.Offer(attrs, ``)).Err())

	select {
	case err := <-bob.Errs:
		r.ErrorIs(err, domain.ErrUnsupportedMessageType)
	case <-time.After(2 * time.Second):
		t.Fatal(`offer was accepted without the holder role`)
	}
}

func TestOfferRequiresActiveConnection(t *testing.T) {
	logger := log.NewLogger(false)
	issuerProto := credential.New(credential.NewAttributeFormat(stores.NewMemory()), nil, nil, logger)
	net := connectiontest.NewNetwork()
	alice := net.AddNode(t, `alice`, time.Second, issuerProto)

	conn := models.Connection{ID: `c1`, State: models.ConnRequest, MyVerkey: `vk`}
	require.NoError(t, alice.Wallet.SaveConnection(conn))

	err := alice.Exchange(conn).WithProtocol(messages.ProtocolCredential).
		Do(context.Background(), issuerProto.Offer(attrs, ``)).Err()
	require.ErrorIs(t, err, domain.ErrInvalidConnectionState)
}
