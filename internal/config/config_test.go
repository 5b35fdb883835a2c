package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/tunrelay/internal/transport"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestDefaults(t *testing.T) {
	s := Default(RoleServer)
	assert.Equal(t, "0.0.0.0:12345", s.Listen)
	assert.Equal(t, "10.8.0.1/24", s.Address)
	assert.Empty(t, s.Route)
	assert.Equal(t, transport.TCP, s.Transport)
	assert.Equal(t, "tun0", s.TUN)
	assert.Equal(t, 1500, s.MTU)
	assert.True(t, s.Provision)

	c := Default(RoleClient)
	assert.Equal(t, "10.8.0.2/24", c.Address)
	assert.Equal(t, "0.0.0.0/0", c.Route)
	assert.Equal(t, "10.8.0.1", c.Gateway)
}

func TestValidate(t *testing.T) {
	server := Default(RoleServer)
	server.Key = testKey
	client := Default(RoleClient)
	client.Server = "203.0.113.7:12345"
	client.Passphrase = "correct horse"

	require.NoError(t, server.Validate())
	require.NoError(t, client.Validate())

	tests := []struct {
		name   string
		base   Config
		mutate func(*Config)
		want   string
	}{
		{"bad role", server, func(c *Config) { c.Role = "host" }, "invalid role"},
		{"bad listen", server, func(c *Config) { c.Listen = "12345" }, "invalid -listen"},
		{"no server", client, func(c *Config) { c.Server = "" }, "missing -server"},
		{"server without port", client, func(c *Config) { c.Server = "203.0.113.7" }, "invalid -server"},
		{"bad transport", server, func(c *Config) { c.Transport = "udp" }, "unknown transport"},
		{"no key", server, func(c *Config) { c.Key = "" }, "no key"},
		{"short key", server, func(c *Config) { c.Key = "abcd" }, "invalid key length"},
		{"empty tun", server, func(c *Config) { c.TUN = "" }, "missing -tun"},
		{"tiny mtu", server, func(c *Config) { c.MTU = 100 }, "invalid -mtu"},
		{"zero outbox", server, func(c *Config) { c.OutboxSize = 0 }, "invalid -outbox"},
		{"bad addr", server, func(c *Config) { c.Address = "10.8.0.1" }, "invalid -addr"},
		{"bad route", client, func(c *Config) { c.Route = "default" }, "invalid -route"},
		{"bad gateway", client, func(c *Config) { c.Gateway = "gw" }, "invalid -gateway"},
		{"bad metrics", server, func(c *Config) { c.MetricsAddr = "9100" }, "invalid -metrics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.base
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), "got %q", err)
		})
	}
}

func TestValidateSkipsAddressesWithoutProvisioning(t *testing.T) {
	c := Default(RoleClient)
	c.Server = "vpn.example.com"
	c.Transport = transport.WebSocket
	c.Passphrase = "pw"
	c.Provision = false
	c.Address = "not a prefix"

	assert.NoError(t, c.Validate())
}

func TestGatewayFromKeyAndPassphrase(t *testing.T) {
	a := Config{Key: testKey}
	gwA, err := a.NewGateway()
	require.NoError(t, err)

	sealed, err := gwA.Encrypt([]byte("packet"))
	require.NoError(t, err)

	b := Config{Key: testKey, Passphrase: "ignored when a key is set"}
	gwB, err := b.NewGateway()
	require.NoError(t, err)
	plain, err := gwB.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("packet"), plain)

	p1, err := Config{Passphrase: "shared"}.NewGateway()
	require.NoError(t, err)
	p2, err := Config{Passphrase: "shared"}.NewGateway()
	require.NoError(t, err)
	sealed, err = p1.Encrypt([]byte("x"))
	require.NoError(t, err)
	_, err = p2.Decrypt(sealed)
	assert.NoError(t, err)

	_, err = Config{}.NewGateway()
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestProvisionConfig(t *testing.T) {
	c := Default(RoleClient)
	pc := c.ProvisionConfig()
	assert.Equal(t, "tun0", pc.Name)
	assert.Equal(t, 1500, pc.MTU)
	assert.Equal(t, "10.8.0.2/24", pc.Address)
	assert.Equal(t, "0.0.0.0/0", pc.Route)
	assert.Equal(t, "10.8.0.1", pc.Gateway)
}
