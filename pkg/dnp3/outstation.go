// Package dnp3 is the entry point for programs embedding an outstation:
// it picks the transport, sets up logging and builds outstations or agents.
package dnp3

import (
	"avaneesh/dnp3-outstation/pkg/agent"
	"avaneesh/dnp3-outstation/pkg/outstation"
)

// NewOutstation builds an outstation listening on the transport chosen by lo.
// opts are applied after the listener, so WithListener in opts wins.
func NewOutstation(cfg outstation.Config, handler outstation.CommandHandler, lo ListenerOptions, log Logger, opts ...outstation.Option) (*outstation.Outstation, error) {
	all, err := withTransport(lo, opts)
	if err != nil {
		return nil, err
	}
	return outstation.New(cfg, handler, log, all...)
}

// NewAgent builds an agent whose outstations listen on the transport chosen by lo
func NewAgent(cfg agent.Config, handler outstation.CommandHandler, lo ListenerOptions, log Logger, opts ...outstation.Option) (*agent.Agent, error) {
	all, err := withTransport(lo, opts)
	if err != nil {
		return nil, err
	}
	return agent.New(cfg, handler, log, all...)
}

func withTransport(lo ListenerOptions, opts []outstation.Option) ([]outstation.Option, error) {
	listen, err := ListenFunc(lo)
	if err != nil {
		return nil, err
	}
	return append([]outstation.Option{outstation.WithListener(listen)}, opts...), nil
}
