package credential

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/YasiruR/didcomm-engine/domain/models"
	"github.com/YasiruR/didcomm-engine/wallet/stores"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const bucketCredentials = `credentials`

// Credential is a set of attributes issued by one party of a connection to
// the other one
type Credential struct {
	ID         string            `json:"id" validate:"required"`
	ThreadID   string            `json:"thread_id,omitempty"`
	IssuerDid  string            `json:"issuer_did" validate:"required"`
	SubjectDid string            `json:"subject_did" validate:"required"`
	Attributes map[string]string `json:"attributes" validate:"required,min=1"`
	IssuedAt   time.Time         `json:"issued_at"`
}

// Issuer builds the format specific attachments of the issuer role
type Issuer interface {
	Offer(attrs []messages.Attribute) (messages.AttachFormat, messages.Attachment, error)
	// Issue must only issue what was offered on the thread
	Issue(conn models.Connection, offer, request messages.Attachment) (messages.AttachFormat, messages.Attachment, error)
}

// Holder builds the format specific attachments of the holder role and keeps
// the issued credentials
type Holder interface {
	Request(conn models.Connection, offer messages.Attachment) (messages.AttachFormat, messages.Attachment, error)
	Store(conn models.Connection, thid string, cred messages.Attachment) (Credential, error)
}

type attributeOffer struct {
	Attributes []messages.Attribute `json:"attributes" validate:"required,min=1,dive"`
}

type attributeRequest struct {
	HolderDid  string   `json:"holder_did" validate:"required"`
	Attributes []string `json:"attributes" validate:"required,min=1"`
}

// AttributeFormat issues credentials as plain attribute sets. The channel
// is authenticated by the connection, hence the attributes are not signed.
// Credentials held are persisted in the wallet store.
type AttributeFormat struct {
	store stores.Store
	mu    sync.Mutex
}

func NewAttributeFormat(s stores.Store) *AttributeFormat {
	return &AttributeFormat{store: s}
}

func (a *AttributeFormat) Offer(attrs []messages.Attribute) (messages.AttachFormat, messages.Attachment, error) {
	if len(attrs) == 0 {
		return messages.AttachFormat{}, messages.Attachment{}, fmt.Errorf(`no attributes to offer - %w`, domain.ErrValidation)
	}

	names := lo.Map(attrs, func(a messages.Attribute, _ int) string { return a.Name })
	if len(lo.Uniq(names)) != len(names) {
		return messages.AttachFormat{}, messages.Attachment{}, fmt.Errorf(`duplicate attributes in %v - %w`, names, domain.ErrValidation)
	}

	return encode(attributeOffer{Attributes: attrs})
}

func (a *AttributeFormat) Request(conn models.Connection, offer messages.Attachment) (messages.AttachFormat, messages.Attachment, error) {
	var o attributeOffer
	if err := DecodeAttachment(offer, &o); err != nil {
		return messages.AttachFormat{}, messages.Attachment{}, err
	}

	return encode(attributeRequest{
		HolderDid:  conn.MyDid,
		Attributes: lo.Map(o.Attributes, func(a messages.Attribute, _ int) string { return a.Name }),
	})
}

func (a *AttributeFormat) Issue(conn models.Connection, offer, request messages.Attachment) (messages.AttachFormat, messages.Attachment, error) {
	var o attributeOffer
	if err := DecodeAttachment(offer, &o); err != nil {
		return messages.AttachFormat{}, messages.Attachment{}, err
	}

	var r attributeRequest
	if err := DecodeAttachment(request, &r); err != nil {
		return messages.AttachFormat{}, messages.Attachment{}, err
	}

	if r.HolderDid != conn.TheirDid {
		return messages.AttachFormat{}, messages.Attachment{}, fmt.Errorf(`request from %s on connection with %s - %w`, r.HolderDid, conn.TheirDid, domain.ErrValidation)
	}

	offered := lo.SliceToMap(o.Attributes, func(a messages.Attribute) (string, string) { return a.Name, a.Value })
	if missing := lo.Without(r.Attributes, lo.Keys(offered)...); len(missing) > 0 {
		return messages.AttachFormat{}, messages.Attachment{}, fmt.Errorf(`attributes %v were not offered - %w`, missing, domain.ErrValidation)
	}

	return encode(Credential{
		ID:         uuid.New().String(),
		IssuerDid:  conn.MyDid,
		SubjectDid: conn.TheirDid,
		Attributes: lo.PickByKeys(offered, r.Attributes),
		IssuedAt:   time.Now().UTC(),
	})
}

func (a *AttributeFormat) Store(conn models.Connection, thid string, att messages.Attachment) (Credential, error) {
	var cred Credential
	if err := DecodeAttachment(att, &cred); err != nil {
		return Credential{}, err
	}

	if cred.IssuerDid != conn.TheirDid || cred.SubjectDid != conn.MyDid {
		return Credential{}, fmt.Errorf(`credential %s was not issued on connection %s - %w`, cred.ID, conn.ID, domain.ErrValidation)
	}
	cred.ThreadID = thid

	data, err := json.Marshal(cred)
	if err != nil {
		return Credential{}, fmt.Errorf(`marshalling credential failed - %v`, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err = a.store.Put(bucketCredentials, cred.ID, data); err != nil {
		return Credential{}, err
	}
	return cred, nil
}

// Credentials returns the credentials held, oldest first
func (a *AttributeFormat) Credentials() ([]Credential, error) {
	vals, err := a.store.List(bucketCredentials)
	if err != nil {
		return nil, err
	}

	creds := make([]Credential, 0, len(vals))
	for _, v := range vals {
		var c Credential
		if err = json.Unmarshal(v, &c); err != nil {
			return nil, fmt.Errorf(`unmarshalling credential failed - %v: %w`, err, domain.ErrWallet)
		}
		creds = append(creds, c)
	}

	sort.SliceStable(creds, func(i, j int) bool { return creds[i].IssuedAt.Before(creds[j].IssuedAt) })
	return creds, nil
}

func encode(v interface{}) (messages.AttachFormat, messages.Attachment, error) {
	att, err := EncodeAttachment(v)
	if err != nil {
		return messages.AttachFormat{}, messages.Attachment{}, err
	}
	return messages.AttachFormat{AttachId: att.Id, Format: messages.FormatPlainAttrs}, att, nil
}

// EncodeAttachment embeds v as a base64 encoded json attachment
func EncodeAttachment(v interface{}) (messages.Attachment, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return messages.Attachment{}, fmt.Errorf(`marshalling attachment failed - %v`, err)
	}

	return messages.Attachment{
		Id:       uuid.New().String(),
		MimeType: messages.MimeTypeJSON,
		Data:     messages.AttachData{Base64: base64.StdEncoding.EncodeToString(data)},
	}, nil
}

// DecodeAttachment reads a json attachment into v and validates it
func DecodeAttachment(att messages.Attachment, v interface{}) error {
	data, err := base64.StdEncoding.DecodeString(att.Data.Base64)
	if err != nil {
		if data, err = base64.RawURLEncoding.DecodeString(att.Data.Base64); err != nil {
			return fmt.Errorf(`decoding attachment %s failed - %v: %w`, att.Id, err, domain.ErrValidation)
		}
	}

	if err = json.Unmarshal(data, v); err != nil {
		return fmt.Errorf(`unmarshalling attachment %s failed - %v: %w`, att.Id, err, domain.ErrValidation)
	}

	if err = validate.Struct(v); err != nil {
		return fmt.Errorf(`invalid attachment %s - %v: %w`, att.Id, err, domain.ErrValidation)
	}
	return nil
}
