package tunnel

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// generateKeyPEM returns an ed25519 private key encoded as PKCS8 PEM together
// with its SSH public key.
func generateKeyPEM(t *testing.T) (string, ssh.PublicKey) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)

	return string(pemBytes), sshPub
}

// startSSHServer runs a minimal SSH server that accepts the given public key
// and services direct-tcpip channels. It shuts down with the test.
func startSSHServer(t *testing.T, authorized ssh.PublicKey) string {
	t.Helper()

	hostPEM, _ := generateKeyPEM(t)
	hostSigner, err := ssh.ParsePrivateKey([]byte(hostPEM))
	require.NoError(t, err)

	config := &ssh.ServerConfig{
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), authorized.Marshal()) {
				return nil, nil
			}
			return nil, errors.New("unknown public key")
		},
	}
	config.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go serveSSHConn(conn, config)
		}
	}()

	return listener.Addr().String()
}

type directTCPIPMsg struct {
	DestAddr   string
	DestPort   uint32
	OriginAddr string
	OriginPort uint32
}

func serveSSHConn(conn net.Conn, config *ssh.ServerConfig) {
	sshConn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		return
	}
	defer sshConn.Close()
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "direct-tcpip" {
			newChan.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}

		var msg directTCPIPMsg
		if err := ssh.Unmarshal(newChan.ExtraData(), &msg); err != nil {
			newChan.Reject(ssh.ConnectionFailed, "bad channel payload")
			continue
		}

		target, err := net.Dial("tcp", net.JoinHostPort(msg.DestAddr, strconv.Itoa(int(msg.DestPort))))
		if err != nil {
			newChan.Reject(ssh.ConnectionFailed, err.Error())
			continue
		}

		ch, chReqs, err := newChan.Accept()
		if err != nil {
			target.Close()
			continue
		}
		go ssh.DiscardRequests(chReqs)

		go func() {
			defer ch.Close()
			defer target.Close()
			go io.Copy(ch, target)
			io.Copy(target, ch)
		}()
	}
}

// startEchoServer runs a TCP server that echoes everything back.
func startEchoServer(t *testing.T) (string, int) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				io.Copy(conn, conn)
			}()
		}
	}()

	addr := listener.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	require.NoError(t, err)
	return tcpAddr.IP.String(), tcpAddr.Port
}

func TestOpenForwardsTraffic(t *testing.T) {
	keyPEM, pub := generateKeyPEM(t)
	sshAddr := startSSHServer(t, pub)
	sshHost, sshPort := splitHostPort(t, sshAddr)
	targetHost, targetPort := startEchoServer(t)

	tun, err := Open(Config{
		Host:       sshHost,
		Port:       sshPort,
		Username:   "browse",
		PrivateKey: keyPEM,
		TargetHost: targetHost,
		TargetPort: targetPort,
	})
	require.NoError(t, err)
	defer tun.Close()

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(tun.LocalPort())))
	require.NoError(t, err)
	defer conn.Close()

	payload := []byte("SELECT 1")
	_, err = conn.Write(payload)
	require.NoError(t, err)

	got := make([]byte, len(payload))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestCloseRefusesNewConnections(t *testing.T) {
	keyPEM, pub := generateKeyPEM(t)
	sshAddr := startSSHServer(t, pub)
	sshHost, sshPort := splitHostPort(t, sshAddr)
	targetHost, targetPort := startEchoServer(t)

	tun, err := Open(Config{
		Host:       sshHost,
		Port:       sshPort,
		Username:   "browse",
		PrivateKey: keyPEM,
		TargetHost: targetHost,
		TargetPort: targetPort,
	})
	require.NoError(t, err)

	localAddr := net.JoinHostPort("127.0.0.1", strconv.Itoa(tun.LocalPort()))
	require.NoError(t, tun.Close())

	_, err = net.DialTimeout("tcp", localAddr, time.Second)
	assert.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	keyPEM, pub := generateKeyPEM(t)
	sshAddr := startSSHServer(t, pub)
	sshHost, sshPort := splitHostPort(t, sshAddr)

	tun, err := Open(Config{
		Host:       sshHost,
		Port:       sshPort,
		Username:   "browse",
		PrivateKey: keyPEM,
		TargetHost: "127.0.0.1",
		TargetPort: 1,
	})
	require.NoError(t, err)

	assert.NoError(t, tun.Close())
	assert.NoError(t, tun.Close())
}

func TestProbeAuthenticatesOnly(t *testing.T) {
	keyPEM, pub := generateKeyPEM(t)
	sshAddr := startSSHServer(t, pub)
	sshHost, sshPort := splitHostPort(t, sshAddr)

	err := Probe(Config{
		Host:       sshHost,
		Port:       sshPort,
		Username:   "browse",
		PrivateKey: keyPEM,
	})
	assert.NoError(t, err)
}

func TestProbeRejectsUnknownKey(t *testing.T) {
	_, authorized := generateKeyPEM(t)
	sshAddr := startSSHServer(t, authorized)
	sshHost, sshPort := splitHostPort(t, sshAddr)

	otherPEM, _ := generateKeyPEM(t)
	err := Probe(Config{
		Host:       sshHost,
		Port:       sshPort,
		Username:   "browse",
		PrivateKey: otherPEM,
	})
	assert.Error(t, err)
}

func TestOpenRejectsMalformedKey(t *testing.T) {
	_, err := Open(Config{
		Host:       "127.0.0.1",
		Port:       22,
		Username:   "browse",
		PrivateKey: "not a pem block",
		TargetHost: "127.0.0.1",
		TargetPort: 5432,
	})
	assert.ErrorIs(t, err, ErrInvalidKey)
}
