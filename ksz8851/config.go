package ksz8851

import (
	"fmt"
	"net"
	"os"

	"github.com/soypat/lneto/ethernet"
	"github.com/soypat/lneto/phy"
	"gopkg.in/yaml.v3"
)

// MAC is an IEEE 802 hardware address. It marshals as aa:bb:cc:dd:ee:ff.
type MAC [6]byte

func ParseMAC(s string) (MAC, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return MAC{}, fmt.Errorf("ksz8851: %w", err)
	}
	if len(hw) != 6 {
		return MAC{}, fmt.Errorf("ksz8851: %q is not a 48-bit address", s)
	}
	return MAC(hw), nil
}

func (m MAC) String() string {
	return string(ethernet.AppendAddr(nil, m))
}

func (m MAC) MarshalText() ([]byte, error) {
	return ethernet.AppendAddr(nil, m), nil
}

func (m *MAC) UnmarshalText(text []byte) error {
	v, err := ParseMAC(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m MAC) IsZero() bool { return m == MAC{} }

// IsMulticast reports whether the group bit is set.
func (m MAC) IsMulticast() bool { return m[0]&1 != 0 }

// Filter selects which destination addresses the chip accepts.
type Filter struct {
	Broadcast    bool  `yaml:"broadcast"`
	AllMulticast bool  `yaml:"all_multicast"`
	Promiscuous  bool  `yaml:"promiscuous"`
	Multicast    []MAC `yaml:"multicast,omitempty"`
}

// FlowControl enables 802.3x pause frames. Zero watermarks keep the chip
// defaults.
type FlowControl struct {
	Enabled          bool   `yaml:"enabled"`
	LowWatermark     uint16 `yaml:"low_watermark,omitempty"`
	HighWatermark    uint16 `yaml:"high_watermark,omitempty"`
	OverrunWatermark uint16 `yaml:"overrun_watermark,omitempty"`
}

// Checksum controls IP/TCP/UDP/ICMP checksum offload.
type Checksum struct {
	TxGenerate bool `yaml:"tx_generate"`
	RxCheck    bool `yaml:"rx_check"`
}

type Config struct {
	MAC              MAC         `yaml:"mac"`
	Filter           Filter      `yaml:"filter"`
	InterruptMask    IRQ         `yaml:"interrupt_mask"`
	RxFrameThreshold uint8       `yaml:"rx_frame_threshold"`
	FlowControl      FlowControl `yaml:"flow_control"`
	IPHeaderOffset   bool        `yaml:"ip_header_offset"`
	Checksum         Checksum    `yaml:"checksum"`
	VerifyFCS        bool        `yaml:"verify_fcs"`
	TxDoneInterrupt  bool        `yaml:"tx_done_interrupt"`
	Advertisement    phy.ANAR    `yaml:"advertisement"`
}

// DefaultConfig accepts unicast to mac and broadcast, with flow control and
// all 10/100 modes advertised.
func DefaultConfig(mac MAC) Config {
	return Config{
		MAC:              mac,
		Filter:           Filter{Broadcast: true},
		InterruptMask:    DefaultIRQMask,
		RxFrameThreshold: 1,
		FlowControl:      FlowControl{Enabled: true},
		IPHeaderOffset:   true,
		TxDoneInterrupt:  true,
		Advertisement:    phy.NewANAR().With10M().With100M().WithPause(true, false),
	}
}

func (c Config) Validate() error {
	if c.MAC.IsMulticast() {
		return fmt.Errorf("ksz8851: station address %s is a group address", c.MAC)
	}
	for _, m := range c.Filter.Multicast {
		if !m.IsMulticast() {
			return fmt.Errorf("ksz8851: %s in multicast list is not a group address", m)
		}
	}
	if c.RxFrameThreshold == 0 {
		return fmt.Errorf("ksz8851: rx frame threshold must be at least 1")
	}
	for _, w := range []uint16{c.FlowControl.LowWatermark, c.FlowControl.HighWatermark, c.FlowControl.OverrunWatermark} {
		if w > uint16(fieldWatermark.Mask()) {
			return fmt.Errorf("ksz8851: flow control watermark %d out of range", w)
		}
	}
	if c.Advertisement != 0 && c.Advertisement&phy.ANARSpeedMask == 0 {
		return fmt.Errorf("ksz8851: advertisement %#04x has no speed bits", uint16(c.Advertisement))
	}
	return nil
}

// LoadConfig reads a YAML configuration. Keys missing from the file keep
// their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("ksz8851: read config: %w", err)
	}
	return ParseConfig(raw)
}

func ParseConfig(raw []byte) (Config, error) {
	cfg := DefaultConfig(MAC{})
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("ksz8851: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
