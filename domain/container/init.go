package container

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/YasiruR/didcomm-engine/domain/services"
	"github.com/YasiruR/didcomm-engine/wallet"
	"github.com/YasiruR/didcomm-engine/wallet/stores"
	"github.com/tryfix/log"
)

const (
	TransportHTTP = `http`
	TransportZMQ  = `zmq`
)

// Config is the agent configuration. Values are read from the config file,
// DIDCOMM_* environment variables and flags in that order of precedence.
type Config struct {
	Label         string        `yaml:"label" env:"DIDCOMM_LABEL" validate:"required"`
	Hostname      string        `yaml:"hostname" env:"DIDCOMM_HOSTNAME" validate:"required"`
	Port          int           `yaml:"port" env:"DIDCOMM_PORT" validate:"required,min=1,max=65535"`
	Transport     string        `yaml:"transport" env:"DIDCOMM_TRANSPORT" validate:"oneof=http zmq"`
	PubPort       int           `yaml:"pub_port" env:"DIDCOMM_PUB_PORT" validate:"min=0,max=65535,nefield=Port"`
	MockPort      int           `yaml:"mock_port" env:"DIDCOMM_MOCK_PORT" validate:"min=0,max=65535,nefield=Port"`
	Compress      bool          `yaml:"compress" env:"DIDCOMM_COMPRESS"`
	CryptoBackend string        `yaml:"crypto_backend" env:"DIDCOMM_CRYPTO_BACKEND" validate:"oneof=nacl sodium"`
	StorePath     string        `yaml:"store_path" env:"DIDCOMM_STORE_PATH"`
	AwaitTimeout  time.Duration `yaml:"await_timeout" env:"DIDCOMM_AWAIT_TIMEOUT" validate:"min=0"`
	SendTimeout   time.Duration `yaml:"send_timeout" env:"DIDCOMM_SEND_TIMEOUT" validate:"min=0"`
	Interactive   bool          `yaml:"interactive" env:"DIDCOMM_INTERACTIVE"`
	Verbose       bool          `yaml:"verbose" env:"DIDCOMM_VERBOSE"`
}

// Endpoint is the service endpoint published in invitations and did docs
func (c *Config) Endpoint() string {
	if c.Transport == TransportZMQ {
		return `tcp://` + c.Hostname + `:` + strconv.Itoa(c.Port)
	}
	return `http://` + c.Hostname + `:` + strconv.Itoa(c.Port)
}

// PubEndpoint is the address events are published on, empty if disabled
func (c *Config) PubEndpoint() string {
	if c.PubPort == 0 {
		return ``
	}
	return `tcp://*:` + strconv.Itoa(c.PubPort)
}

type Container struct {
	Cfg        *Config
	KeyManager services.KeyManager
	Packer     services.Packer
	DIDUtils   services.DIDUtils
	Store      stores.Store
	Wallet     *wallet.Wallet
	Client     services.Client
	Server     services.Server
	Notifier   services.Notifier
	Prober     services.Agent
	Log        log.Logger
	closers    []func() error
	stopOnce   sync.Once
	done       chan struct{}
}

func New(cfg *Config, logger log.Logger) *Container {
	return &Container{Cfg: cfg, Log: logger, done: make(chan struct{})}
}

// OnStop registers a function called on shutdown. Functions are called in
// the reverse order of registration.
func (c *Container) OnStop(fn func() error) {
	c.closers = append(c.closers, fn)
}

// Done is closed once the container has been stopped
func (c *Container) Done() <-chan struct{} {
	return c.done
}

func (c *Container) Stop() (err error) {
	c.stopOnce.Do(func() {
		defer close(c.done)
		if c.Server != nil {
			if serr := c.Server.Stop(); serr != nil {
				err = fmt.Errorf(`server shutdown failed - %v`, serr)
			}
		}

		for i := len(c.closers) - 1; i >= 0; i-- {
			if cerr := c.closers[i](); cerr != nil {
				c.Log.Error(fmt.Sprintf(`closing agent resources failed - %v`, cerr))
			}
		}

		if c.Wallet != nil {
			if werr := c.Wallet.Close(); werr != nil {
				err = fmt.Errorf(`wallet shutdown failed - %v`, werr)
			}
		}
		if err != nil {
			return
		}

		c.Log.Info(`graceful shutdown of agent completed successfully`)
	})
	return err
}
