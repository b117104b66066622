// Package tunnel opens ephemeral SSH local-forward tunnels so the engine can
// reach databases on private networks. Every tunnel is request-scoped: the
// caller owns the handle and must close it exactly once.
package tunnel

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// ErrInvalidKey is returned when the supplied private key does not decode as
// a recognized PEM private-key block.
var ErrInvalidKey = errors.New("private key is not a valid PEM private key")

// handshakeTimeout caps the TCP connect plus SSH handshake. A session that
// has not authenticated by then is treated as failed, never left hanging.
const handshakeTimeout = 10 * time.Second

// Config describes one forwarding request: the SSH endpoint to authenticate
// against and the remote target to forward to.
type Config struct {
	Host       string
	Port       int
	Username   string
	PrivateKey string
	Passphrase string

	TargetHost string
	TargetPort int
}

func (c Config) sshAddr() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", port))
}

func (c Config) targetAddr() string {
	return net.JoinHostPort(c.TargetHost, fmt.Sprintf("%d", c.TargetPort))
}

// Tunnel is an open local-forward listener bound to an OS-assigned port.
type Tunnel struct {
	client    *ssh.Client
	listener  net.Listener
	localPort int

	closeOnce sync.Once
	closeErr  error
}

// Open authenticates to the SSH host and binds a listener on 127.0.0.1 with
// an ephemeral port. Each accepted connection is forwarded over the session
// to the configured target. There is no retry: listener or auth failures are
// returned as-is.
func Open(cfg Config) (*Tunnel, error) {
	client, err := dial(cfg)
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to bind local listener: %w", err)
	}

	t := &Tunnel{
		client:    client,
		listener:  listener,
		localPort: listener.Addr().(*net.TCPAddr).Port,
	}
	go t.serve(cfg.targetAddr())
	return t, nil
}

// Probe authenticates against the SSH host and disconnects without opening a
// listener. It is used by connection tests to fail fast on bad SSH
// credentials before any database work happens.
func Probe(cfg Config) error {
	client, err := dial(cfg)
	if err != nil {
		return err
	}
	return client.Close()
}

// LocalPort reports the ephemeral port the listener is bound to.
func (t *Tunnel) LocalPort() int {
	return t.localPort
}

// Close shuts the listener and the SSH session. It is safe to call more than
// once; only the first call does the work.
func (t *Tunnel) Close() error {
	t.closeOnce.Do(func() {
		lerr := t.listener.Close()
		cerr := t.client.Close()
		if lerr != nil {
			t.closeErr = lerr
		} else if cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			t.closeErr = cerr
		}
	})
	return t.closeErr
}

func (t *Tunnel) serve(targetAddr string) {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			// Listener closed during teardown.
			return
		}
		go t.forward(conn, targetAddr)
	}
}

func (t *Tunnel) forward(local net.Conn, targetAddr string) {
	remote, err := t.client.Dial("tcp", targetAddr)
	if err != nil {
		local.Close()
		return
	}

	done := make(chan struct{}, 2)
	go pipe(remote, local, done)
	go pipe(local, remote, done)
	<-done

	local.Close()
	remote.Close()
}

func pipe(dst io.Writer, src io.Reader, done chan<- struct{}) {
	io.Copy(dst, src)
	done <- struct{}{}
}

// dial performs the TCP connect and SSH handshake with a hard deadline: the
// absence of an authenticated session within handshakeTimeout is a failure.
func dial(cfg Config) (*ssh.Client, error) {
	signer, err := parseKey(cfg.PrivateKey, cfg.Passphrase)
	if err != nil {
		return nil, err
	}

	clientConfig := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         handshakeTimeout,
	}

	conn, err := net.DialTimeout("tcp", cfg.sshAddr(), handshakeTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to reach SSH host %s: %w", cfg.sshAddr(), err)
	}

	// Bound the handshake as well; ClientConfig.Timeout only covers the dial.
	if err := conn.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set handshake deadline: %w", err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, cfg.sshAddr(), clientConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SSH handshake with %s failed: %w", cfg.sshAddr(), err)
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		sshConn.Close()
		return nil, fmt.Errorf("failed to clear handshake deadline: %w", err)
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

func parseKey(pemKey, passphrase string) (ssh.Signer, error) {
	if passphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase([]byte(pemKey), []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return signer, nil
	}

	signer, err := ssh.ParsePrivateKey([]byte(pemKey))
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("%w: key is encrypted and no passphrase was supplied", ErrInvalidKey)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return signer, nil
}
