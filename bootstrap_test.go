package main

import (
	"net"
	"testing"
	"time"

	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/container"
	"github.com/YasiruR/didcomm-engine/wallet/stores"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	l, err := net.Listen(`tcp`, `:0`)
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T) *container.Config {
	return &container.Config{
		Label:         `alice`,
		Hostname:      `localhost`,
		Port:          freePort(t),
		Transport:     container.TransportHTTP,
		CryptoBackend: domain.CryptoBackendNacl,
		StorePath:     t.TempDir(),
		AwaitTimeout:  time.Second,
		SendTimeout:   time.Second,
	}
}

func TestInitContainer_Stop(t *testing.T) {
	r := require.New(t)
	cfg := testConfig(t)

	c, err := initContainer(cfg)
	r.NoError(err)
	r.NotNil(c.Wallet)
	r.NotNil(c.Notifier)

	r.NoError(c.Stop())
	<-c.Done()

	// the store is released on shutdown
	store, err := stores.NewBadger(cfg.StorePath)
	r.NoError(err)
	r.NoError(store.Close())
}

func TestInitContainer_ReleasesStoreOnFailure(t *testing.T) {
	r := require.New(t)
	busy, err := net.Listen(`tcp4`, `0.0.0.0:0`)
	r.NoError(err)
	defer busy.Close()

	cfg := testConfig(t)
	cfg.PubPort = busy.Addr().(*net.TCPAddr).Port

	_, err = initContainer(cfg)
	r.Error(err)

	store, err := stores.NewBadger(cfg.StorePath)
	r.NoError(err)
	r.NoError(store.Close())
}
