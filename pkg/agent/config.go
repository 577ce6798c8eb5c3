package agent

import (
	"avaneesh/dnp3-outstation/pkg/outstation"
)

// Config is the agent configuration. The four top level keys are the ones
// deployments already use; Outstation carries the engine settings that have
// no top level key.
type Config struct {
	OutstationIP string `json:"outstation_ip" mapstructure:"outstation_ip"`
	Port         int    `json:"port" mapstructure:"port"`
	MasterID     uint16 `json:"master_id" mapstructure:"master_id"`
	OutstationID uint16 `json:"outstation_id" mapstructure:"outstation_id"`

	Outstation *outstation.Config `json:"outstation,omitempty" mapstructure:"-"`
}

// DefaultConfig returns {"outstation_ip": "0.0.0.0", "port": 20000,
// "master_id": 2, "outstation_id": 1}
func DefaultConfig() Config {
	return Config{
		OutstationIP: "0.0.0.0",
		Port:         outstation.DefaultPort,
		MasterID:     outstation.DefaultMasterAddress,
		OutstationID: outstation.DefaultLocalAddress,
	}
}

// OutstationConfig resolves the engine configuration: the advanced block (or
// engine defaults) with the top level keys applied on top
func (c Config) OutstationConfig() outstation.Config {
	oc := outstation.DefaultConfig()
	if c.Outstation != nil {
		oc = *c.Outstation
	}
	oc.ListenAddress = c.OutstationIP
	oc.Port = c.Port
	oc.MasterAddress = c.MasterID
	oc.LocalAddress = c.OutstationID
	return oc
}

// Validate checks the resolved engine configuration
func (c Config) Validate() error {
	return c.OutstationConfig().Validate()
}

// UpdateParams are the optional arguments of UpdateOutstation; nil fields
// keep their current value
type UpdateParams struct {
	OutstationIP *string `json:"outstation_ip,omitempty" mapstructure:"outstation_ip"`
	Port         *int    `json:"port,omitempty" mapstructure:"port"`
	MasterID     *uint16 `json:"master_id,omitempty" mapstructure:"master_id"`
	OutstationID *uint16 `json:"outstation_id,omitempty" mapstructure:"outstation_id"`
}

// Merge returns cfg with the non-nil parameters applied
func (p UpdateParams) Merge(cfg Config) Config {
	if p.OutstationIP != nil {
		cfg.OutstationIP = *p.OutstationIP
	}
	if p.Port != nil {
		cfg.Port = *p.Port
	}
	if p.MasterID != nil {
		cfg.MasterID = *p.MasterID
	}
	if p.OutstationID != nil {
		cfg.OutstationID = *p.OutstationID
	}
	return cfg
}
