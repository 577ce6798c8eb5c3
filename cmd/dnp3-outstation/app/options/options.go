package options

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"avaneesh/dnp3-outstation/pkg/agent"
	"avaneesh/dnp3-outstation/pkg/dnp3"
)

const (
	_defaultWait       = 15 * time.Second
	_defaultMQTTPrefix = "dnp3/outstation"
)

// MQTTOptions connect the bus bridge; an empty broker disables it
type MQTTOptions struct {
	Broker   string `json:"broker,omitempty"`
	ClientID string `json:"clientID,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Prefix   string `json:"prefix"`
}

// Options are everything the outstation command can be configured with
type Options struct {
	Agent    agent.Config         `json:"agent"`
	Listener dnp3.ListenerOptions `json:"listener"`
	// ProtocolLogLevel filters the protocol stack logs: debug, info, warn or error
	ProtocolLogLevel string `json:"protocolLogLevel"`

	// HTTPAddress serves the HTTP API when set, e.g. ":8080"
	HTTPAddress string      `json:"httpAddress,omitempty"`
	MQTT        MQTTOptions `json:"mqtt"`
	// Capture writes every link frame to this pcap file when set
	Capture string `json:"capture,omitempty"`

	Wait metav1.Duration `json:"gracefulTimeout"`
	BaseOptions
}

// NewDefaultOptions serves DNP3 on 0.0.0.0:20000 over TCP with the HTTP API
// and MQTT bridge disabled
func NewDefaultOptions() *Options {
	return &Options{
		Agent:            agent.DefaultConfig(),
		Listener:         dnp3.ListenerOptions{Transport: dnp3.TransportTCP},
		ProtocolLogLevel: "info",
		MQTT:             MQTTOptions{Prefix: _defaultMQTTPrefix},
		Wait:             metav1.Duration{Duration: _defaultWait},
		BaseOptions:      NewDefaultBaseOptions(),
	}
}

// AddFlags binds the command specific flags to fs
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Agent.OutstationIP, "outstation-ip", o.Agent.OutstationIP, "Address the outstation listens on")
	fs.IntVarP(&o.Agent.Port, "port", "p", o.Agent.Port, "Port the outstation listens on")
	fs.Uint16Var(&o.Agent.MasterID, "master-id", o.Agent.MasterID, "Link address of the master")
	fs.Uint16Var(&o.Agent.OutstationID, "outstation-id", o.Agent.OutstationID, "Link address of the outstation")

	fs.StringVar((*string)(&o.Listener.Transport), "transport", string(o.Listener.Transport), fmt.Sprintf("Physical channel masters connect over: one of %v", dnp3.Transports))
	fs.StringVar(&o.Listener.SerialDevice, "serial-device", o.Listener.SerialDevice, "Serial device for --transport=serial, e.g. /dev/ttyUSB0")
	fs.IntVar(&o.Listener.BaudRate, "baud-rate", o.Listener.BaudRate, "Serial baud rate (0 = 9600)")
	fs.StringVar(&o.Listener.Parity, "parity", o.Listener.Parity, "Serial parity: N, E or O")
	fs.StringVar(&o.ProtocolLogLevel, "protocol-log-level", o.ProtocolLogLevel, "Level of the protocol stack logs: debug, info, warn or error")

	fs.StringVar(&o.HTTPAddress, "http-address", o.HTTPAddress, "Serve the HTTP API on this address, e.g. :8080; empty disables it")
	fs.StringVar(&o.MQTT.Broker, "mqtt-broker", o.MQTT.Broker, "MQTT broker URL, e.g. tcp://localhost:1883; empty disables the bus bridge")
	fs.StringVar(&o.MQTT.Prefix, "mqtt-prefix", o.MQTT.Prefix, "Root of the MQTT topics")
	fs.StringVar(&o.Capture, "capture", o.Capture, "Write every link frame to this pcap file")
	fs.DurationVar(&o.Wait.Duration, "graceful-timeout", o.Wait.Duration, "How long shutdown waits for HTTP requests to finish, e.g. 15s or 1m")
}

// MQTTClientID returns the configured client id or a generated one
func (o *Options) MQTTClientID() string {
	if o.MQTT.ClientID != "" {
		return o.MQTT.ClientID
	}
	return "dnp3-outstation-" + uuid.NewString()[:8]
}

// Validate reports every invalid option
func Validate(o *Options) []error {
	errs := o.BaseOptions.Logging.Validate()
	if _, err := dnp3.ParseTransport(string(o.Listener.Transport)); err != nil {
		errs = append(errs, err)
	} else if o.Listener.Transport == dnp3.TransportSerial && o.Listener.SerialDevice == "" {
		errs = append(errs, fmt.Errorf("--serial-device is required with --transport=serial"))
	}
	if _, err := dnp3.ParseLogLevel(o.ProtocolLogLevel); err != nil {
		errs = append(errs, err)
	}
	if o.HTTPAddress != "" {
		if _, port, err := net.SplitHostPort(o.HTTPAddress); err != nil {
			errs = append(errs, fmt.Errorf("invalid --http-address %q: %w", o.HTTPAddress, err))
		} else if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			errs = append(errs, fmt.Errorf("invalid --http-address port %q", port))
		}
	}
	if o.MQTT.Broker != "" && o.MQTT.Prefix == "" {
		errs = append(errs, fmt.Errorf("--mqtt-prefix must not be empty"))
	}
	if o.Wait.Duration < 0 {
		errs = append(errs, fmt.Errorf("--graceful-timeout must not be negative"))
	}
	return errs
}
