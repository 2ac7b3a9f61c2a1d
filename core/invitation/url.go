package invitation

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/go-playground/validator/v10"
)

const (
	paramOOB = `oob`
	// used by agents implementing RFC-0160
	paramLegacy = `c_i`
)

var validate = validator.New()

// Encode returns the invitation url as <endpoint>?oob=<base64url(json)>
func Encode(endpoint string, inv messages.Invitation) (string, error) {
	byts, err := json.Marshal(inv)
	if err != nil {
		return ``, fmt.Errorf(`marshalling invitation failed - %v`, err)
	}

	return endpoint + `?` + paramOOB + `=` + base64.URLEncoding.EncodeToString(byts), nil
}

// ParseURL extracts and validates the invitation of an invitation url
func ParseURL(rawURL string) (messages.Invitation, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return messages.Invitation{}, fmt.Errorf(`parsing invitation url failed - %v: %w`, err, domain.ErrValidation)
	}

	encInv := u.Query().Get(paramOOB)
	if encInv == `` {
		encInv = u.Query().Get(paramLegacy)
	}
	if encInv == `` {
		return messages.Invitation{}, fmt.Errorf(`url does not contain an invitation - %w`, domain.ErrValidation)
	}

	return Parse(encInv)
}

// Parse decodes a base64url encoded invitation. Both padded and unpadded
// forms are accepted.
func Parse(encInv string) (messages.Invitation, error) {
	byts, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encInv, `=`))
	if err != nil {
		if byts, err = base64.StdEncoding.DecodeString(encInv); err != nil {
			return messages.Invitation{}, fmt.Errorf(`base64 decoding invitation failed - %v: %w`, err, domain.ErrValidation)
		}
	}

	var inv messages.Invitation
	if err = json.Unmarshal(byts, &inv); err != nil {
		return messages.Invitation{}, fmt.Errorf(`received content is not a valid invitation - %v: %w`, err, domain.ErrValidation)
	}

	if err = validate.Struct(inv); err != nil {
		return messages.Invitation{}, fmt.Errorf(`invalid invitation %s - %v: %w`, inv.Id, err, domain.ErrValidation)
	}

	if typ := messages.NormalizeType(inv.Type); typ != messages.OOBInvitationV1_1 && typ != messages.OOBInvitationV1 {
		return messages.Invitation{}, fmt.Errorf(`unsupported invitation type %s - %w`, inv.Type, domain.ErrUnsupportedMessageType)
	}

	return inv, nil
}
