package proof

import (
	"fmt"

	"github.com/YasiruR/didcomm-engine/core/credential"
	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Verifier builds presentation requests and checks the presentations
// received for them
type Verifier interface {
	Request(attrs []string) (messages.AttachFormat, messages.Attachment, error)
	// Verify returns the revealed attribute values
	Verify(conn models.Connection, request, presentation messages.Attachment) (map[string]string, error)
}

// Prover presents held credentials for a request
type Prover interface {
	Present(conn models.Connection, request messages.Attachment) (messages.AttachFormat, messages.Attachment, error)
}

// CredentialSource lists the credentials a prover can present from
type CredentialSource interface {
	Credentials() ([]credential.Credential, error)
}

type attributeRequest struct {
	Nonce      string   `json:"nonce" validate:"required"`
	Attributes []string `json:"attributes" validate:"required,min=1"`
}

type revealed struct {
	Value        string `json:"value"`
	CredentialID string `json:"credential_id" validate:"required"`
	IssuerDid    string `json:"issuer_did" validate:"required"`
}

type attributePresentation struct {
	Nonce      string              `json:"nonce" validate:"required"`
	HolderDid  string              `json:"holder_did" validate:"required"`
	Attributes map[string]revealed `json:"attributes" validate:"required,min=1,dive"`
}

// AttributeProof presents and verifies plain attribute credentials. Each
// requested attribute is revealed from the latest credential containing it.
type AttributeProof struct {
	source CredentialSource
}

// NewAttributeProof creates the format. A nil source can only verify.
func NewAttributeProof(src CredentialSource) *AttributeProof {
	return &AttributeProof{source: src}
}

func (a *AttributeProof) Request(attrs []string) (messages.AttachFormat, messages.Attachment, error) {
	if len(attrs) == 0 {
		return messages.AttachFormat{}, messages.Attachment{}, fmt.Errorf(`no attributes requested - %w`, domain.ErrValidation)
	}

	return encode(attributeRequest{Nonce: uuid.New().String(), Attributes: lo.Uniq(attrs)})
}

func (a *AttributeProof) Present(conn models.Connection, request messages.Attachment) (messages.AttachFormat, messages.Attachment, error) {
	if a.source == nil {
		return messages.AttachFormat{}, messages.Attachment{}, fmt.Errorf(`no credentials to present from - %w`, domain.ErrValidation)
	}

	var req attributeRequest
	if err := credential.DecodeAttachment(request, &req); err != nil {
		return messages.AttachFormat{}, messages.Attachment{}, err
	}

	creds, err := a.source.Credentials()
	if err != nil {
		return messages.AttachFormat{}, messages.Attachment{}, err
	}

	pres := attributePresentation{Nonce: req.Nonce, HolderDid: conn.MyDid, Attributes: map[string]revealed{}}
	for _, name := range req.Attributes {
		cred, _, ok := lo.FindLastIndexOf(creds, func(c credential.Credential) bool {
			_, ok := c.Attributes[name]
			return ok
		})
		if !ok {
			return messages.AttachFormat{}, messages.Attachment{}, fmt.Errorf(`no credential with attribute %s - %w`, name, domain.ErrValidation)
		}
		pres.Attributes[name] = revealed{Value: cred.Attributes[name], CredentialID: cred.ID, IssuerDid: cred.IssuerDid}
	}

	return encode(pres)
}

func (a *AttributeProof) Verify(conn models.Connection, request, presentation messages.Attachment) (map[string]string, error) {
	var req attributeRequest
	if err := credential.DecodeAttachment(request, &req); err != nil {
		return nil, err
	}

	var pres attributePresentation
	if err := credential.DecodeAttachment(presentation, &pres); err != nil {
		return nil, err
	}

	if pres.Nonce != req.Nonce {
		return nil, fmt.Errorf(`presentation nonce does not match the request - %w`, domain.ErrValidation)
	}

	if pres.HolderDid != conn.TheirDid {
		return nil, fmt.Errorf(`presentation of %s received from %s - %w`, pres.HolderDid, conn.TheirDid, domain.ErrValidation)
	}

	if missing := lo.Without(req.Attributes, lo.Keys(pres.Attributes)...); len(missing) > 0 {
		return nil, fmt.Errorf(`attributes %v were not presented - %w`, missing, domain.ErrValidation)
	}

	return lo.MapValues(lo.PickByKeys(pres.Attributes, req.Attributes), func(r revealed, _ string) string {
		return r.Value
	}), nil
}

func encode(v interface{}) (messages.AttachFormat, messages.Attachment, error) {
	att, err := credential.EncodeAttachment(v)
	if err != nil {
		return messages.AttachFormat{}, messages.Attachment{}, err
	}
	return messages.AttachFormat{AttachId: att.Id, Format: messages.FormatPlainAttrs}, att, nil
}
