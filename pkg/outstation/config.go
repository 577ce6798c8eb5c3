package outstation

import (
	"fmt"
	"math"
	"net"
	"strconv"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"avaneesh/dnp3-outstation/pkg/app"
	"avaneesh/dnp3-outstation/pkg/link"
	"avaneesh/dnp3-outstation/pkg/transport"
	"avaneesh/dnp3-outstation/pkg/types"
)

// Default settings
const (
	DefaultPort               = 20000
	DefaultLocalAddress       = 1
	DefaultMasterAddress      = 2
	DefaultPointCount         = 10
	DefaultEventBufferSize    = 100
	DefaultMaxControls        = 16
	DefaultMaxFragmentSize    = 2048
	DefaultMaxLinkFailures    = 10
	DefaultUnsolicitedRetries = 3
)

// PointConfig sizes one point class
type PointConfig struct {
	Count int `json:"count"`
	// EventClass is the event class (1..3) changes are reported in, 0 for none
	EventClass uint8 `json:"eventClass"`
	// Deadband applies to analog and counter points updated in detect mode
	Deadband float64 `json:"deadband,omitempty"`
}

// Config configures an outstation. It is fixed for the lifetime of the
// Outstation built from it.
type Config struct {
	ID              string `json:"id"`
	ListenAddress   string `json:"listenAddress"`
	Port            int    `json:"port"`
	LocalAddress    uint16 `json:"localAddress"`
	MasterAddress   uint16 `json:"masterAddress"`
	AcceptAnyMaster bool   `json:"acceptAnyMaster"`

	Points          map[types.PointClass]PointConfig `json:"points"`
	EventBufferSize int                              `json:"eventBufferSize"`

	AllowUnsolicited          bool            `json:"allowUnsolicited"`
	UnsolicitedConfirmTimeout metav1.Duration `json:"unsolicitedConfirmTimeout"`
	UnsolicitedRetries        int             `json:"unsolicitedRetries"`
	SolicitedConfirmTimeout   metav1.Duration `json:"solicitedConfirmTimeout"`
	SelectTimeout             metav1.Duration `json:"selectTimeout"`
	ReassemblyTimeout         metav1.Duration `json:"reassemblyTimeout"`

	MaxControlsPerRequest int `json:"maxControlsPerRequest"`
	MaxTxFragmentSize     int `json:"maxTxFragmentSize"`
	MaxRxFragmentSize     int `json:"maxRxFragmentSize"`
	MaxLinkFailures       int `json:"maxLinkFailures"`

	// LocalControl and DeviceTrouble are reported in IIN1 of every response
	LocalControl  bool `json:"localControl,omitempty"`
	DeviceTrouble bool `json:"deviceTrouble,omitempty"`
}

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() Config {
	points := make(map[types.PointClass]PointConfig)
	for _, c := range types.AllPointClasses() {
		points[c] = PointConfig{Count: DefaultPointCount, EventClass: 1}
	}

	return Config{
		ID:                        "outstation",
		ListenAddress:             "0.0.0.0",
		Port:                      DefaultPort,
		LocalAddress:              DefaultLocalAddress,
		MasterAddress:             DefaultMasterAddress,
		Points:                    points,
		EventBufferSize:           DefaultEventBufferSize,
		AllowUnsolicited:          true,
		UnsolicitedConfirmTimeout: metav1.Duration{Duration: 5 * time.Second},
		UnsolicitedRetries:        DefaultUnsolicitedRetries,
		SolicitedConfirmTimeout:   metav1.Duration{Duration: 5 * time.Second},
		SelectTimeout:             metav1.Duration{Duration: 5 * time.Second},
		ReassemblyTimeout:         metav1.Duration{Duration: 120 * time.Second},
		MaxControlsPerRequest:     DefaultMaxControls,
		MaxTxFragmentSize:         DefaultMaxFragmentSize,
		MaxRxFragmentSize:         DefaultMaxFragmentSize,
		MaxLinkFailures:           DefaultMaxLinkFailures,
	}
}

func (c Config) clone() Config {
	points := make(map[types.PointClass]PointConfig, len(c.Points))
	for k, v := range c.Points {
		points[k] = v
	}
	c.Points = points
	return c
}

// Address returns the host:port the outstation listens on
func (c Config) Address() string {
	return net.JoinHostPort(c.ListenAddress, strconv.Itoa(c.Port))
}

// PointCount returns the configured size of a class
func (c Config) PointCount(class types.PointClass) int {
	return c.Points[class].Count
}

// Validate checks the configuration. Every problem found is reported as a
// *ConfigError inside one aggregate error.
func (c Config) Validate() error {
	errs := c.validate()
	if len(errs) == 0 {
		return nil
	}
	out := make([]error, 0, len(errs))
	for _, e := range errs {
		out = append(out, &ConfigError{Field: e.Field, Reason: e.ErrorBody()})
	}
	return utilerrors.NewAggregate(out)
}

func (c Config) validate() field.ErrorList {
	var errs field.ErrorList

	if c.ListenAddress != "" && net.ParseIP(c.ListenAddress) == nil {
		if _, err := net.LookupHost(c.ListenAddress); err != nil {
			errs = append(errs, field.Invalid(field.NewPath("listenAddress"), c.ListenAddress, "not an IP address or resolvable host"))
		}
	}
	if c.Port < 0 || c.Port > math.MaxUint16 {
		errs = append(errs, field.Invalid(field.NewPath("port"), c.Port, "must be between 0 and 65535"))
	}
	if link.IsBroadcast(c.LocalAddress) {
		errs = append(errs, field.Invalid(field.NewPath("localAddress"), c.LocalAddress, "broadcast addresses are reserved"))
	}
	if !c.AcceptAnyMaster {
		if link.IsBroadcast(c.MasterAddress) {
			errs = append(errs, field.Invalid(field.NewPath("masterAddress"), c.MasterAddress, "broadcast addresses are reserved"))
		} else if c.MasterAddress == c.LocalAddress {
			errs = append(errs, field.Invalid(field.NewPath("masterAddress"), c.MasterAddress, "must differ from localAddress"))
		}
	}

	pointsPath := field.NewPath("points")
	for class, pc := range c.Points {
		p := pointsPath.Key(class.String())
		if !class.Valid() {
			errs = append(errs, field.NotSupported(pointsPath, class.String(), pointClassNames()))
			continue
		}
		if pc.Count < 0 || pc.Count > math.MaxUint16+1 {
			errs = append(errs, field.Invalid(p.Child("count"), pc.Count, "must be between 0 and 65536"))
		}
		if pc.EventClass > 3 {
			errs = append(errs, field.Invalid(p.Child("eventClass"), pc.EventClass, "must be 0 (none) or 1..3"))
		}
		if pc.Deadband < 0 {
			errs = append(errs, field.Invalid(p.Child("deadband"), pc.Deadband, "must not be negative"))
		}
	}

	if c.EventBufferSize < 1 {
		errs = append(errs, field.Invalid(field.NewPath("eventBufferSize"), c.EventBufferSize, "must be at least 1"))
	}
	if c.UnsolicitedRetries < 0 {
		errs = append(errs, field.Invalid(field.NewPath("unsolicitedRetries"), c.UnsolicitedRetries, "must not be negative"))
	}
	for name, d := range map[string]time.Duration{
		"unsolicitedConfirmTimeout": c.UnsolicitedConfirmTimeout.Duration,
		"solicitedConfirmTimeout":   c.SolicitedConfirmTimeout.Duration,
		"selectTimeout":             c.SelectTimeout.Duration,
	} {
		if d <= 0 {
			errs = append(errs, field.Invalid(field.NewPath(name), d.String(), "must be positive"))
		}
	}
	if c.ReassemblyTimeout.Duration < 0 {
		errs = append(errs, field.Invalid(field.NewPath("reassemblyTimeout"), c.ReassemblyTimeout.Duration.String(), "must not be negative"))
	}
	if c.MaxControlsPerRequest < 1 {
		errs = append(errs, field.Invalid(field.NewPath("maxControlsPerRequest"), c.MaxControlsPerRequest, "must be at least 1"))
	}
	if c.MaxTxFragmentSize < app.MinFragmentSize || c.MaxTxFragmentSize > DefaultMaxFragmentSize {
		errs = append(errs, field.Invalid(field.NewPath("maxTxFragmentSize"), c.MaxTxFragmentSize,
			fmt.Sprintf("must be between %d and %d", app.MinFragmentSize, DefaultMaxFragmentSize)))
	}
	if c.MaxRxFragmentSize < app.RequestHeaderSize || c.MaxRxFragmentSize > transport.MaxReassemblySize {
		errs = append(errs, field.Invalid(field.NewPath("maxRxFragmentSize"), c.MaxRxFragmentSize,
			fmt.Sprintf("must be between %d and %d", app.RequestHeaderSize, transport.MaxReassemblySize)))
	}
	if c.MaxLinkFailures < 0 {
		errs = append(errs, field.Invalid(field.NewPath("maxLinkFailures"), c.MaxLinkFailures, "must not be negative"))
	}

	return errs
}

func pointClassNames() []string {
	classes := types.AllPointClasses()
	names := make([]string, len(classes))
	for i, c := range classes {
		names[i] = c.String()
	}
	return names
}

// OperateType indicates the type of operate command
type OperateType int

const (
	OperateTypeSelectBeforeOperate OperateType = iota
	OperateTypeDirectOperate
	OperateTypeDirectOperateNoAck
)

func (t OperateType) String() string {
	switch t {
	case OperateTypeSelectBeforeOperate:
		return "SelectBeforeOperate"
	case OperateTypeDirectOperate:
		return "DirectOperate"
	case OperateTypeDirectOperateNoAck:
		return "DirectOperateNoAck"
	}
	return fmt.Sprintf("OperateType(%d)", int(t))
}

// EventMode controls event generation
type EventMode int

const (
	// EventModeForce emits an event for every update
	EventModeForce EventMode = iota
	// EventModeDetect emits an event when the value moves past the deadband
	// or the flags change
	EventModeDetect
	// EventModeSuppress never emits an event
	EventModeSuppress
)
