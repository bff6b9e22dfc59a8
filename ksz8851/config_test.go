package ksz8851

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/soypat/lneto/phy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseMAC(t *testing.T) {
	m, err := ParseMAC("02:00:5E:10:20:30")
	require.NoError(t, err)
	assert.Equal(t, testMAC, m)
	assert.Equal(t, "02:00:5e:10:20:30", m.String())
	assert.False(t, m.IsMulticast())

	_, err = ParseMAC("02:00:5e:10:20")
	assert.Error(t, err)
	_, err = ParseMAC("00:00:00:00:fe:80:00:00:00:00:00:00:02:00:5e:10:00:00:00:01")
	assert.Error(t, err, "infiniband addresses are not accepted")
}

func TestParseConfig(t *testing.T) {
	raw := []byte(`
mac: 02:00:5e:10:20:30
filter:
  broadcast: false
  multicast:
    - 01:00:5e:00:00:fb
rx_frame_threshold: 4
flow_control:
  enabled: false
  high_watermark: 0x300
checksum:
  rx_check: true
verify_fcs: true
`)
	cfg, err := ParseConfig(raw)
	require.NoError(t, err)
	assert.Equal(t, testMAC, cfg.MAC)
	assert.False(t, cfg.Filter.Broadcast)
	assert.Equal(t, []MAC{{0x01, 0x00, 0x5e, 0x00, 0x00, 0xfb}}, cfg.Filter.Multicast)
	assert.Equal(t, uint8(4), cfg.RxFrameThreshold)
	assert.False(t, cfg.FlowControl.Enabled)
	assert.Equal(t, uint16(0x300), cfg.FlowControl.HighWatermark)
	assert.True(t, cfg.Checksum.RxCheck)
	assert.True(t, cfg.VerifyFCS)

	// keys missing from the file keep their defaults
	def := DefaultConfig(MAC{})
	assert.Equal(t, def.InterruptMask, cfg.InterruptMask)
	assert.Equal(t, def.Advertisement, cfg.Advertisement)
	assert.True(t, cfg.IPHeaderOffset)
	assert.True(t, cfg.TxDoneInterrupt)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"multicast station address", func(c *Config) { c.MAC = MAC{0x01, 0, 0, 0, 0, 1} }},
		{"unicast in multicast list", func(c *Config) { c.Filter.Multicast = []MAC{testMAC} }},
		{"zero frame threshold", func(c *Config) { c.RxFrameThreshold = 0 }},
		{"watermark out of range", func(c *Config) { c.FlowControl.LowWatermark = 0x1000 }},
		{"advertisement without speeds", func(c *Config) { c.Advertisement = phy.NewANAR().WithPause(true, false) }},
	}
	require.NoError(t, DefaultConfig(testMAC).Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(testMAC)
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfig(t *testing.T) {
	cfg := DefaultConfig(testMAC)
	cfg.Filter.Promiscuous = true
	raw, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ksz8851.yaml")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	_, err = ParseConfig([]byte("mac: [1, 2"))
	assert.Error(t, err)
	_, err = ParseConfig([]byte("mac: 01:00:5e:00:00:01"))
	assert.Error(t, err)
}
