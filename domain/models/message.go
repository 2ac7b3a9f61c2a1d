package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/messages"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

var validate = validator.New()

// Message is what a server hands over to a registered handler
type Message struct {
	Type  string
	Data  []byte
	Reply chan []byte
}

type Direction int

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Outbound {
		return `outbound`
	}
	return `inbound`
}

// EndpointMessage is a plaintext DIDComm message as it was sent or received
// by an exchange. It is never mutated once created.
type EndpointMessage struct {
	Type            string
	ID              string
	ThreadID        string
	ParentThreadID  string
	Body            map[string]interface{}
	Headers         map[string]string
	Raw             []byte
	Direction       Direction
	SenderVerkey    string
	RecipientVerkey string
	Time            time.Time
}

// ParseEndpointMessage reads the headers of a plaintext message. A message
// without a thread decorator starts its own thread.
func ParseEndpointMessage(raw []byte) (EndpointMessage, error) {
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return EndpointMessage{}, fmt.Errorf(`unmarshalling plaintext message failed - %w`, domain.ErrUnsupportedMessageType)
	}

	typ, _ := body[`@type`].(string)
	if typ == `` {
		return EndpointMessage{}, fmt.Errorf(`message does not contain a type - %w`, domain.ErrUnsupportedMessageType)
	}

	m := EndpointMessage{
		Type:    messages.NormalizeType(typ),
		Body:    body,
		Headers: map[string]string{},
		Raw:     raw,
		Time:    time.Now(),
	}
	m.ID, _ = body[`@id`].(string)

	if th, ok := body[`~thread`].(map[string]interface{}); ok {
		m.ThreadID, _ = th[`thid`].(string)
		m.ParentThreadID, _ = th[`pthid`].(string)
	}
	if m.ThreadID == `` {
		m.ThreadID = m.ID
	}

	return m, nil
}

// NewEndpointMessage converts a typed message into its plaintext form
func NewEndpointMessage(msg interface{}, dir Direction) (EndpointMessage, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return EndpointMessage{}, fmt.Errorf(`marshalling message failed - %v`, err)
	}

	m, err := ParseEndpointMessage(raw)
	if err != nil {
		return EndpointMessage{}, err
	}
	m.Direction = dir
	return m, nil
}

// Decode converts the body into a typed message using its json tags and
// validates the required fields of struct messages
func (m EndpointMessage) Decode(out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          `json`,
		WeaklyTypedInput: true,
		Squash:           true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf(`creating decoder failed - %v`, err)
	}

	if err = dec.Decode(m.Body); err != nil {
		return fmt.Errorf(`decoding %s failed - %v: %w`, m.Type, err, domain.ErrValidation)
	}

	if err = validate.Struct(out); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return nil
		}
		return fmt.Errorf(`invalid %s message %s - %v: %w`, m.Type, m.ID, err, domain.ErrValidation)
	}
	return nil
}

// WithTransport returns a copy carrying the envelope keys it was received with
func (m EndpointMessage) WithTransport(sender, recipient string) EndpointMessage {
	m.SenderVerkey = sender
	m.RecipientVerkey = recipient
	headers := make(map[string]string, len(m.Headers))
	for k, v := range m.Headers {
		headers[k] = v
	}
	m.Headers = headers
	return m
}

// Unpacked is the output of opening an envelope
type Unpacked struct {
	Message         []byte
	SenderVerkey    string
	RecipientVerkey string
}
