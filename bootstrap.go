package main

import (
	"fmt"
	"strconv"

	"github.com/YasiruR/didcomm-engine/core/did"
	"github.com/YasiruR/didcomm-engine/crypto"
	"github.com/YasiruR/didcomm-engine/crypto/sodium"
	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/container"
	"github.com/YasiruR/didcomm-engine/domain/services"
	"github.com/YasiruR/didcomm-engine/log"
	"github.com/YasiruR/didcomm-engine/pubsub"
	"github.com/YasiruR/didcomm-engine/reqrep"
	zmqrr "github.com/YasiruR/didcomm-engine/reqrep/zmq"
	"github.com/YasiruR/didcomm-engine/wallet"
	"github.com/YasiruR/didcomm-engine/wallet/stores"
	zmq "github.com/pebbe/zmq4"
)

const didCacheSize = 256

// initContainer wires the agent components. Resources opened before a
// failure are released through the closers of the container.
func initContainer(cfg *container.Config) (*container.Container, error) {
	logger := log.NewLogger(cfg.Verbose)
	c := container.New(cfg, logger)
	if err := wire(c); err != nil {
		if serr := c.Stop(); serr != nil {
			logger.Error(fmt.Sprintf(`releasing agent resources failed - %v`, serr))
		}
		return nil, err
	}
	return c, nil
}

func wire(c *container.Container) (err error) {
	cfg, logger := c.Cfg, c.Log

	var enc services.Encryptor = crypto.NewEncryptor()
	if cfg.CryptoBackend == domain.CryptoBackendSodium {
		enc = sodium.NewEncryptor()
	}
	c.Packer = crypto.NewPacker(enc, logger)
	c.KeyManager = crypto.NewKeyManager()
	c.DIDUtils = did.NewHandler(didCacheSize)

	var store stores.Store = stores.NewMemory()
	if cfg.StorePath != `` {
		if store, err = stores.NewBadger(cfg.StorePath); err != nil {
			return fmt.Errorf(`opening store failed - %v`, err)
		}
	}
	c.Store = store
	c.OnStop(store.Close)

	c.Wallet, err = wallet.New(wallet.Config{ID: cfg.Label, Label: cfg.Label, Endpoint: cfg.Endpoint()}, c.KeyManager, c.DIDUtils, c.Store, logger)
	if err != nil {
		return fmt.Errorf(`initializing wallet failed - %v`, err)
	}

	var zmqCtx *zmq.Context
	if cfg.Transport == container.TransportZMQ || cfg.PubPort != 0 {
		if zmqCtx, err = zmq.NewContext(); err != nil {
			return fmt.Errorf(`creating zmq context failed - %v`, err)
		}
		c.OnStop(zmqCtx.Term)
	}

	ccfg := reqrep.ClientConfig{Timeout: cfg.SendTimeout, Compress: cfg.Compress}
	if zmqCtx != nil {
		zmqClient := zmqrr.NewClient(zmqCtx, logger)
		c.OnStop(zmqClient.Close)
		ccfg.ZMQ = zmqClient
	}
	if c.Client, err = reqrep.NewClient(ccfg, logger); err != nil {
		return err
	}

	hub := reqrep.NewHub(logger)
	if c.Server, err = server(cfg, zmqCtx, hub, logger); err != nil {
		return fmt.Errorf(`initializing %s server failed - %v`, cfg.Transport, err)
	}

	var pub *pubsub.Publisher
	if cfg.PubPort != 0 {
		if pub, err = pubsub.NewPublisher(zmqCtx, cfg.PubEndpoint(), cfg.Compress, logger); err != nil {
			return err
		}
		c.OnStop(pub.Close)
	}
	c.Notifier = pubsub.NewNotifier(c.Wallet.ID(), hub, pub, logger)

	return nil
}

func server(cfg *container.Config, zmqCtx *zmq.Context, hub *reqrep.Hub, logger *log.Logger) (services.Server, error) {
	if cfg.Transport == container.TransportZMQ {
		s, err := zmqrr.NewServer(zmqCtx, `tcp://*:`+strconv.Itoa(cfg.Port), logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	s, err := reqrep.NewHTTP(cfg.Port, hub, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}
