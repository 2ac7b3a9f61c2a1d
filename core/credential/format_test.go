package credential

import (
	"testing"
	"time"

	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/wallet/stores"
	"github.com/stretchr/testify/require"
)

func TestAttributeFormat_Issuance(t *testing.T) {
	r := require.New(t)
	issuer := NewAttributeFormat(stores.NewMemory())
	holder := NewAttributeFormat(stores.NewMemory())
	issuerConn := models.Connection{ID: `c1`, MyDid: `did:peer:issuer`, TheirDid: `did:peer:holder`}
	holderConn := models.Connection{ID: `c2`, MyDid: `did:peer:holder`, TheirDid: `did:peer:issuer`}

	_, offer, err := issuer.Offer([]messages.Attribute{{Name: `name`, Value: `bob`}, {Name: `degree`, Value: `msc`}})
	r.NoError(err)

	_, req, err := holder.Request(holderConn, offer)
	r.NoError(err)

	format, att, err := issuer.Issue(issuerConn, offer, req)
	r.NoError(err)
	r.Equal(messages.FormatPlainAttrs, format.Format)
	r.Equal(att.Id, format.AttachId)

	cred, err := holder.Store(holderConn, `th1`, att)
	r.NoError(err)
	r.Equal(map[string]string{`name`: `bob`, `degree`: `msc`}, cred.Attributes)
	r.Equal(`did:peer:issuer`, cred.IssuerDid)
	r.Equal(`th1`, cred.ThreadID)

	held, err := holder.Credentials()
	r.NoError(err)
	r.Equal([]Credential{cred}, held)
}

func TestAttributeFormat_Rejects(t *testing.T) {
	f := NewAttributeFormat(stores.NewMemory())
	conn := models.Connection{ID: `c1`, MyDid: `did:peer:a`, TheirDid: `did:peer:b`}

	tests := []struct {
		name string
		run  func() error
	}{
		{`empty offer`, func() error {
			_, _, err := f.Offer(nil)
			return err
		}},
		{`duplicate attributes`, func() error {
			_, _, err := f.Offer([]messages.Attribute{{Name: `a`}, {Name: `a`}})
			return err
		}},
		{`attribute not offered`, func() error {
			_, offer, err := f.Offer([]messages.Attribute{{Name: `a`, Value: `1`}})
			require.NoError(t, err)
			req, err := EncodeAttachment(attributeRequest{HolderDid: `did:peer:b`, Attributes: []string{`a`, `b`}})
			require.NoError(t, err)
			_, _, err = f.Issue(conn, offer, req)
			return err
		}},
		{`request of another holder`, func() error {
			_, offer, err := f.Offer([]messages.Attribute{{Name: `a`, Value: `1`}})
			require.NoError(t, err)
			req, err := EncodeAttachment(attributeRequest{HolderDid: `did:peer:c`, Attributes: []string{`a`}})
			require.NoError(t, err)
			_, _, err = f.Issue(conn, offer, req)
			return err
		}},
		{`credential of another issuer`, func() error {
			att, err := EncodeAttachment(Credential{ID: `x`, IssuerDid: `did:peer:c`, SubjectDid: `did:peer:a`, Attributes: map[string]string{`a`: `1`}, IssuedAt: time.Now()})
			require.NoError(t, err)
			_, err = f.Store(conn, `th`, att)
			return err
		}},
		{`not base64`, func() error {
			_, err := f.Store(conn, `th`, messages.Attachment{Id: `x`, Data: messages.AttachData{Base64: `%%%`}})
			return err
		}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.ErrorIs(t, test.run(), domain.ErrValidation)
		})
	}
}
