package engine

import "github.com/vantage-db/vantage/internal/driver"

// TunnelConfig describes the optional SSH hop in a stored descriptor.
// PrivateKey and Passphrase arrive as cipher envelopes when they were stored
// encrypted, or as plaintext when the caller already resolved them.
type TunnelConfig struct {
	Enabled    bool   `json:"enabled"`
	Host       string `json:"host"`
	Port       int    `json:"port,omitempty"`
	Username   string `json:"username"`
	PrivateKey string `json:"privateKey"`
	Passphrase string `json:"passphrase,omitempty"`
}

// ConnectionDescriptor is the caller-supplied connection record. Nothing in
// it is persisted here; each request rebuilds its resources from scratch.
type ConnectionDescriptor struct {
	Provider   driver.Provider `json:"provider"`
	Host       string          `json:"host"`
	Port       int             `json:"port,omitempty"`
	Database   string          `json:"database"`
	Username   string          `json:"username"`
	Password   string          `json:"password"`
	SSLEnabled bool            `json:"sslEnabled"`
	SSHTunnel  *TunnelConfig   `json:"sshTunnel,omitempty"`
}

// tunnelEnabled reports whether this descriptor asks for SSH forwarding.
func (d ConnectionDescriptor) tunnelEnabled() bool {
	return d.SSHTunnel != nil && d.SSHTunnel.Enabled
}
