package seriallink

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by New for zero-valued Config fields.
const (
	DefaultBaudRate         = 115200
	DefaultDelimiter        = "\n"
	DefaultQueueCapacity    = 1
	DefaultOutboundCapacity = 256
	DefaultReconnectDelay   = time.Second
	DefaultReadTimeout      = 200 * time.Millisecond
)

// Config holds the settings for a Link. The zero value of every field
// except PortName is usable; New replaces zero values with the defaults
// above. Validation happens in Start so a Link can be constructed from a
// partially filled Config and corrected before running.
type Config struct {
	// PortName selects the device and the transport. A plain path such as
	// /dev/ttyUSB0 or COM3 opens a serial port. The prefixes tcp://,
	// ws://, wss:// and termios:// select the corresponding transport
	// instead.
	PortName string
	// BaudRate is the serial line rate. Ignored by network transports.
	BaudRate int
	// Delimiter terminates a line on the wire. It is stripped from
	// received lines and appended to sent ones.
	Delimiter string
	// QueueCapacity bounds the inbound message queue.
	QueueCapacity int
	// OutboundCapacity bounds the queue of lines waiting to be sent.
	OutboundCapacity int
	// Overflow selects which message a full inbound queue discards.
	Overflow OverflowPolicy
	// Delivery is the drain policy used by Tick.
	Delivery DeliveryPolicy
	// ReconnectDelay is the pause before a reconnection attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the exponential growth of the reconnection
	// pause. Values at or below ReconnectDelay disable the growth and
	// every pause equals ReconnectDelay.
	MaxReconnectDelay time.Duration
	// ReadTimeout bounds a single blocking read. It is the longest the
	// worker stays unresponsive to a stop request, so keep it small.
	ReadTimeout time.Duration
	// DTR asserts the DTR control line after opening a serial port.
	DTR bool
	// RTS asserts the RTS control line after opening a serial port.
	RTS bool
}

// configYAML is the file representation of Config. Durations are plain
// millisecond integers, policies are spelled as strings.
type configYAML struct {
	PortName            string         `yaml:"port_name"`
	BaudRate            int            `yaml:"baud_rate"`
	Delimiter           string         `yaml:"delimiter"`
	QueueCapacity       int            `yaml:"queue_capacity"`
	OutboundCapacity    int            `yaml:"outbound_capacity"`
	Overflow            OverflowPolicy `yaml:"overflow_policy"`
	Delivery            DeliveryPolicy `yaml:"delivery_policy"`
	ReconnectDelayMS    int64          `yaml:"reconnect_delay_ms"`
	MaxReconnectDelayMS int64          `yaml:"max_reconnect_delay_ms"`
	ReadTimeoutMS       int64          `yaml:"read_timeout_ms"`
	DTR                 bool           `yaml:"dtr"`
	RTS                 bool           `yaml:"rts"`
}

// LoadConfig reads a YAML configuration file. Missing fields stay zero and
// receive defaults when the Config is passed to New.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// UnmarshalYAML decodes the millisecond duration fields of configYAML into
// time.Duration values.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw configYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*c = Config{
		PortName:          raw.PortName,
		BaudRate:          raw.BaudRate,
		Delimiter:         raw.Delimiter,
		QueueCapacity:     raw.QueueCapacity,
		OutboundCapacity:  raw.OutboundCapacity,
		Overflow:          raw.Overflow,
		Delivery:          raw.Delivery,
		ReconnectDelay:    time.Duration(raw.ReconnectDelayMS) * time.Millisecond,
		MaxReconnectDelay: time.Duration(raw.MaxReconnectDelayMS) * time.Millisecond,
		ReadTimeout:       time.Duration(raw.ReadTimeoutMS) * time.Millisecond,
		DTR:               raw.DTR,
		RTS:               raw.RTS,
	}
	return nil
}

// MarshalYAML encodes the Config in the same shape LoadConfig reads.
func (c Config) MarshalYAML() (interface{}, error) {
	return configYAML{
		PortName:            c.PortName,
		BaudRate:            c.BaudRate,
		Delimiter:           c.Delimiter,
		QueueCapacity:       c.QueueCapacity,
		OutboundCapacity:    c.OutboundCapacity,
		Overflow:            c.Overflow,
		Delivery:            c.Delivery,
		ReconnectDelayMS:    c.ReconnectDelay.Milliseconds(),
		MaxReconnectDelayMS: c.MaxReconnectDelay.Milliseconds(),
		ReadTimeoutMS:       c.ReadTimeout.Milliseconds(),
		DTR:                 c.DTR,
		RTS:                 c.RTS,
	}, nil
}

func (p *OverflowPolicy) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	switch s {
	case "", "drop_oldest":
		*p = DropOldest
	case "drop_newest":
		*p = DropNewest
	default:
		return fmt.Errorf("unknown overflow policy %q", s)
	}
	return nil
}

func (p OverflowPolicy) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

func (p *DeliveryPolicy) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	switch s {
	case "", "only_oldest":
		*p = OnlyOldest
	case "only_newest":
		*p = OnlyNewest
	case "all_messages":
		*p = AllMessages
	default:
		return fmt.Errorf("unknown delivery policy %q", s)
	}
	return nil
}

func (p DeliveryPolicy) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

// withDefaults returns a copy of c with zero values replaced.
func (c Config) withDefaults() Config {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.Delimiter == "" {
		c.Delimiter = DefaultDelimiter
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.OutboundCapacity == 0 {
		c.OutboundCapacity = DefaultOutboundCapacity
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = c.ReconnectDelay
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	return c
}

func (c Config) validate() error {
	if c.PortName == "" {
		return fmt.Errorf("%w: port name must not be empty", ErrInvalidConfig)
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("%w: baud rate must be positive, got %d", ErrInvalidConfig, c.BaudRate)
	}
	if c.Delimiter == "" {
		return fmt.Errorf("%w: delimiter must not be empty", ErrInvalidConfig)
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("%w: queue capacity must be at least 1, got %d", ErrInvalidConfig, c.QueueCapacity)
	}
	if c.OutboundCapacity < 1 {
		return fmt.Errorf("%w: outbound capacity must be at least 1, got %d", ErrInvalidConfig, c.OutboundCapacity)
	}
	if c.Overflow != DropOldest && c.Overflow != DropNewest {
		return fmt.Errorf("%w: unknown overflow policy %d", ErrInvalidConfig, c.Overflow)
	}
	if c.Delivery != OnlyOldest && c.Delivery != OnlyNewest && c.Delivery != AllMessages {
		return fmt.Errorf("%w: unknown delivery policy %d", ErrInvalidConfig, c.Delivery)
	}
	if c.ReconnectDelay < 0 {
		return fmt.Errorf("%w: reconnect delay must not be negative, got %v", ErrInvalidConfig, c.ReconnectDelay)
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		return fmt.Errorf("%w: max reconnect delay %v is below reconnect delay %v", ErrInvalidConfig, c.MaxReconnectDelay, c.ReconnectDelay)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("%w: read timeout must be positive, got %v", ErrInvalidConfig, c.ReadTimeout)
	}
	return nil
}
