package exchange

import (
	"time"

	"github.com/YasiruR/didcomm-engine/domain/services"
	"github.com/google/uuid"
	"github.com/tryfix/log"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultInboxSize = 64
)

type Config struct {
	Packer    services.Packer
	Client    services.Client
	Registry  *Registry
	Protocols *Protocols
	Logger    log.Logger
	// Timeout bounds every Await unless the caller's context expires earlier
	Timeout time.Duration
	// InboxSize is the number of unclaimed inbound messages kept per exchange
	InboxSize int
}

// Engine creates exchanges sharing the same collaborators
type Engine struct {
	packer    services.Packer
	client    services.Client
	registry  *Registry
	protocols *Protocols
	log       log.Logger
	timeout   time.Duration
	inboxSize int
}

func NewEngine(cfg Config) *Engine {
	e := &Engine{
		packer:    cfg.Packer,
		client:    cfg.Client,
		registry:  cfg.Registry,
		protocols: cfg.Protocols,
		log:       cfg.Logger,
		timeout:   cfg.Timeout,
		inboxSize: cfg.InboxSize,
	}

	if e.registry == nil {
		e.registry = NewRegistry()
	}
	if e.protocols == nil {
		e.protocols = NewProtocols()
	}
	if e.timeout <= 0 {
		e.timeout = defaultTimeout
	}
	if e.inboxSize <= 0 {
		e.inboxSize = defaultInboxSize
	}

	return e
}

func (e *Engine) NewExchange(entries ...Entry) *Exchange {
	ex := &Exchange{
		id:          uuid.New().String(),
		engine:      e,
		attachments: map[attachmentKey]interface{}{},
	}
	ex.Attach(entries...)
	return ex
}

func (e *Engine) Registry() *Registry {
	return e.registry
}

func (e *Engine) Protocols() *Protocols {
	return e.protocols
}

func (e *Engine) Timeout() time.Duration {
	return e.timeout
}
