// Package engine orchestrates one browsing request end to end: resolve
// credentials, raise an SSH tunnel when asked, construct the provider driver,
// run exactly one operation, and tear everything down on every exit path.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vantage-db/vantage/internal/driver"
	"github.com/vantage-db/vantage/internal/secrets"
	"github.com/vantage-db/vantage/internal/tunnel"
)

// ErrBadDescriptor is returned when a descriptor fails validation before any
// resource is acquired.
var ErrBadDescriptor = errors.New("invalid connection descriptor")

// forwarder is the slice of tunnel.Tunnel the engine needs; tests substitute
// their own handles.
type forwarder interface {
	LocalPort() int
	Close() error
}

// Engine serves browsing operations. It holds no per-request state: every
// call acquires and releases its own tunnel and driver, so concurrent
// requests need no synchronization.
type Engine struct {
	cipher *secrets.Cipher
	log    *slog.Logger

	// Seams for tests; production wiring uses the package defaults.
	newDriver  func(driver.Provider, driver.Config) (driver.Driver, error)
	openTunnel func(tunnel.Config) (forwarder, error)
	probe      func(tunnel.Config) error
}

// New wires an engine against the real driver and tunnel implementations.
func New(cipher *secrets.Cipher, log *slog.Logger) *Engine {
	return &Engine{
		cipher:    cipher,
		log:       log,
		newDriver: driver.New,
		openTunnel: func(cfg tunnel.Config) (forwarder, error) {
			return tunnel.Open(cfg)
		},
		probe: tunnel.Probe,
	}
}

// TestConnection resolves the descriptor and runs the trivial version query.
// Failures of any stage are reported in the result, never as an error.
func (e *Engine) TestConnection(ctx context.Context, desc ConnectionDescriptor) driver.TestConnectionResult {
	var result driver.TestConnectionResult
	err := e.withDriver(ctx, desc, func(d driver.Driver) error {
		result = d.TestConnection(ctx)
		return nil
	})
	if err != nil {
		return driver.TestConnectionResult{Success: false, Error: Describe(err)}
	}
	return result
}

// TestTunnel authenticates against the descriptor's SSH endpoint without
// forwarding anything. The handshake is capped at ten seconds.
func (e *Engine) TestTunnel(desc ConnectionDescriptor) error {
	if !desc.tunnelEnabled() {
		return fmt.Errorf("%w: sshTunnel is not enabled", ErrBadDescriptor)
	}
	cfg, err := e.tunnelConfig(desc)
	if err != nil {
		return err
	}
	return e.probe(cfg)
}

// Schema introspects the full reachable catalog.
func (e *Engine) Schema(ctx context.Context, desc ConnectionDescriptor) ([]driver.TableSchema, error) {
	var schemas []driver.TableSchema
	err := e.withDriver(ctx, desc, func(d driver.Driver) error {
		var opErr error
		schemas, opErr = d.Schema(ctx)
		return opErr
	})
	return schemas, err
}

// Tables lists base tables with estimated row counts.
func (e *Engine) Tables(ctx context.Context, desc ConnectionDescriptor) ([]driver.TableInfo, error) {
	var tables []driver.TableInfo
	err := e.withDriver(ctx, desc, func(d driver.Driver) error {
		var opErr error
		tables, opErr = d.ListTables(ctx)
		return opErr
	})
	return tables, err
}

// Query serves one paginated table read.
func (e *Engine) Query(ctx context.Context, desc ConnectionDescriptor, params driver.QueryParams) (*driver.QueryResult, error) {
	var result *driver.QueryResult
	err := e.withDriver(ctx, desc, func(d driver.Driver) error {
		var opErr error
		result, opErr = d.Query(ctx, params)
		return opErr
	})
	return result, err
}

// Execute runs guarded raw SQL.
func (e *Engine) Execute(ctx context.Context, desc ConnectionDescriptor, query string) (*driver.RawQueryResult, error) {
	var result *driver.RawQueryResult
	err := e.withDriver(ctx, desc, func(d driver.Driver) error {
		var opErr error
		result, opErr = d.ExecuteRaw(ctx, query)
		return opErr
	})
	return result, err
}

// withDriver runs fn against a fully resolved driver. Teardown is guaranteed
// on every path and ordered driver first, tunnel second. If tunnel setup
// fails the driver is never constructed and only the tunnel attempt is
// unwound.
func (e *Engine) withDriver(ctx context.Context, desc ConnectionDescriptor, fn func(driver.Driver) error) error {
	cfg, tun, err := e.connect(desc)
	if err != nil {
		return err
	}

	drv, err := e.newDriver(desc.Provider, cfg)
	if err != nil {
		if tun != nil {
			if cerr := tun.Close(); cerr != nil {
				e.log.Warn("failed to close tunnel", "error", cerr)
			}
		}
		return err
	}

	defer func() {
		if cerr := drv.Close(); cerr != nil {
			e.log.Warn("failed to close driver", "error", cerr)
		}
		if tun != nil {
			if cerr := tun.Close(); cerr != nil {
				e.log.Warn("failed to close tunnel", "error", cerr)
			}
		}
	}()

	return fn(drv)
}

// connect resolves secrets and, when asked, raises the tunnel, returning the
// driver config rewritten to the forwarded endpoint.
func (e *Engine) connect(desc ConnectionDescriptor) (driver.Config, forwarder, error) {
	if desc.Host == "" {
		return driver.Config{}, nil, fmt.Errorf("%w: host is required", ErrBadDescriptor)
	}

	password, err := e.resolveSecret(desc.Password)
	if err != nil {
		return driver.Config{}, nil, err
	}

	port := desc.Port
	if port == 0 {
		port = driver.DefaultPort(desc.Provider)
	}

	cfg := driver.Config{
		Host:     desc.Host,
		Port:     port,
		Database: desc.Database,
		Username: desc.Username,
		Password: password,
		SSL:      desc.SSLEnabled,
	}

	if !desc.tunnelEnabled() {
		return cfg, nil, nil
	}

	tcfg, err := e.tunnelConfig(desc)
	if err != nil {
		return driver.Config{}, nil, err
	}
	tcfg.TargetHost = desc.Host
	tcfg.TargetPort = port

	tun, err := e.openTunnel(tcfg)
	if err != nil {
		return driver.Config{}, nil, fmt.Errorf("tunnel setup failed: %w", err)
	}

	e.log.Debug("tunnel open", "ssh_host", tcfg.Host, "local_port", tun.LocalPort())

	cfg.Host = "127.0.0.1"
	cfg.Port = tun.LocalPort()
	return cfg, tun, nil
}

func (e *Engine) tunnelConfig(desc ConnectionDescriptor) (tunnel.Config, error) {
	t := desc.SSHTunnel
	if t.Host == "" || t.Username == "" || t.PrivateKey == "" {
		return tunnel.Config{}, fmt.Errorf("%w: ssh tunnel requires host, username, and privateKey", ErrBadDescriptor)
	}

	key, err := e.resolveSecret(t.PrivateKey)
	if err != nil {
		return tunnel.Config{}, err
	}
	passphrase, err := e.resolveSecret(t.Passphrase)
	if err != nil {
		return tunnel.Config{}, err
	}

	return tunnel.Config{
		Host:       t.Host,
		Port:       t.Port,
		Username:   t.Username,
		PrivateKey: key,
		Passphrase: passphrase,
	}, nil
}

// resolveSecret decrypts envelope-form values and passes plaintext through
// untouched, so descriptors work whether the caller stores secrets encrypted
// or resolves them itself.
func (e *Engine) resolveSecret(value string) (string, error) {
	if value == "" || !secrets.IsEnvelope(value) {
		return value, nil
	}
	plaintext, err := e.cipher.Decrypt(value)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt stored secret: %w", err)
	}
	return plaintext, nil
}
