package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Netflix/go-env"
	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/YasiruR/didcomm-engine/domain/container"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultAwaitTimeout = 10 * time.Second
	defaultSendTimeout  = 5 * time.Second
)

var validate = validator.New()

func defaultConfig() *container.Config {
	return &container.Config{
		Hostname:      `localhost`,
		Transport:     container.TransportHTTP,
		CryptoBackend: domain.CryptoBackendNacl,
		AwaitTimeout:  defaultAwaitTimeout,
		SendTimeout:   defaultSendTimeout,
		Interactive:   true,
	}
}

// ParseArgs builds the agent config. Defaults are overridden by the yaml
// file, then by DIDCOMM_* variables (optionally read from a dotenv file)
// and finally by the flags set explicitly.
func ParseArgs(args []string) (*container.Config, error) {
	fs := flag.NewFlagSet(`didcomm-engine`, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	cfgFile := fs.String(`config`, ``, `path of a yaml config file`)
	envFile := fs.String(`env`, `.env`, `path of a dotenv file, ignored if missing`)
	label := fs.String(`label`, ``, `agent's name`)
	hostname := fs.String(`host`, ``, `hostname used in the service endpoint`)
	port := fs.Int(`port`, 0, `port of the inbound transport`)
	transport := fs.String(`transport`, ``, `inbound transport (http or zmq)`)
	pubPort := fs.Int(`pub`, 0, `port to publish events over zmq, disabled if zero`)
	mockPort := fs.Int(`mock`, 0, `port of the control api, disabled if zero`)
	compress := fs.Bool(`compress`, false, `compress outbound http bodies and published events with zstd`)
	backend := fs.String(`crypto`, ``, `crypto backend (nacl or sodium)`)
	storePath := fs.String(`store`, ``, `directory of the badger store, in-memory if empty`)
	awaitTimeout := fs.Duration(`timeout`, 0, `time to wait for a reply of the other party`)
	interactive := fs.Bool(`interactive`, true, `runs the interactive command prompt`)
	verbose := fs.Bool(`v`, false, `logging`)

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf(`parsing flags failed - %v`, err)
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf(`loading env file %s failed - %v`, *envFile, err)
	}

	cfg := defaultConfig()
	if *cfgFile != `` {
		if err := LoadFile(*cfgFile, cfg); err != nil {
			return nil, err
		}
	}

	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return nil, fmt.Errorf(`reading environment failed - %v`, err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case `label`:
			cfg.Label = *label
		case `host`:
			cfg.Hostname = *hostname
		case `port`:
			cfg.Port = *port
		case `transport`:
			cfg.Transport = *transport
		case `pub`:
			cfg.PubPort = *pubPort
		case `mock`:
			cfg.MockPort = *mockPort
		case `compress`:
			cfg.Compress = *compress
		case `crypto`:
			cfg.CryptoBackend = *backend
		case `store`:
			cfg.StorePath = *storePath
		case `timeout`:
			cfg.AwaitTimeout = *awaitTimeout
		case `interactive`:
			cfg.Interactive = *interactive
		case `v`:
			cfg.Verbose = *verbose
		}
	})

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf(`invalid config - %v`, err)
	}
	return cfg, nil
}

// LoadFile reads a yaml config file over the values of cfg
func LoadFile(path string, cfg *container.Config) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf(`reading config file failed - %v`, err)
	}

	if err = yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf(`parsing config file %s failed - %v`, path, err)
	}
	return nil
}
