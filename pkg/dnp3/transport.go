package dnp3

import (
	"fmt"
	"strings"
	"time"

	"avaneesh/dnp3-outstation/pkg/channel"
	"avaneesh/dnp3-outstation/pkg/outstation"
)

// Transport selects the physical channel masters connect over
type Transport string

const (
	TransportTCP    Transport = "tcp"
	TransportQUIC   Transport = "quic"
	TransportSerial Transport = "serial"
)

// Transports lists the supported transports
var Transports = []Transport{TransportTCP, TransportQUIC, TransportSerial}

// ParseTransport resolves a transport name, case-insensitively
func ParseTransport(s string) (Transport, error) {
	t := Transport(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Transports {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown transport %q", s)
}

// ListenerOptions configure the listener built by ListenFunc. TCP and QUIC
// bind the outstation's listen address and port; serial ignores both.
type ListenerOptions struct {
	Transport Transport `json:"transport"`

	// TCP and QUIC
	ReadTimeout  time.Duration `json:"readTimeout,omitempty"`
	WriteTimeout time.Duration `json:"writeTimeout,omitempty"`
	KeepAlive    time.Duration `json:"keepAlive,omitempty"`

	// Serial
	SerialDevice string        `json:"serialDevice,omitempty"`
	BaudRate     int           `json:"baudRate,omitempty"`
	DataBits     int           `json:"dataBits,omitempty"`
	Parity       string        `json:"parity,omitempty"`
	StopBits     int           `json:"stopBits,omitempty"`
	RetryDelay   time.Duration `json:"retryDelay,omitempty"`
}

// ListenFunc returns the outstation.ListenFunc for opts
func ListenFunc(opts ListenerOptions) (outstation.ListenFunc, error) {
	switch opts.Transport {
	case TransportTCP, "":
		return func(cfg outstation.Config) (channel.Listener, error) {
			return channel.ListenTCP(channel.TCPChannelConfig{
				Address:      cfg.Address(),
				ReadTimeout:  opts.ReadTimeout,
				WriteTimeout: opts.WriteTimeout,
				KeepAlive:    opts.KeepAlive,
			})
		}, nil
	case TransportQUIC:
		return func(cfg outstation.Config) (channel.Listener, error) {
			return channel.ListenQUIC(channel.QUICChannelConfig{
				Address:      cfg.Address(),
				ReadTimeout:  opts.ReadTimeout,
				WriteTimeout: opts.WriteTimeout,
				IdleTimeout:  opts.KeepAlive,
			})
		}, nil
	case TransportSerial:
		if opts.SerialDevice == "" {
			return nil, fmt.Errorf("serial transport needs a device")
		}
		return func(outstation.Config) (channel.Listener, error) {
			return channel.ListenSerial(channel.SerialChannelConfig{
				Device:     opts.SerialDevice,
				BaudRate:   opts.BaudRate,
				DataBits:   opts.DataBits,
				Parity:     opts.Parity,
				StopBits:   opts.StopBits,
				RetryDelay: opts.RetryDelay,
			})
		}, nil
	}
	return nil, fmt.Errorf("unknown transport %q", opts.Transport)
}
