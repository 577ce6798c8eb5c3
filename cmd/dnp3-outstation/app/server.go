package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/klog/v2"

	"avaneesh/dnp3-outstation/cmd/dnp3-outstation/app/options"
	"avaneesh/dnp3-outstation/pkg/agent"
	"avaneesh/dnp3-outstation/pkg/bus"
	"avaneesh/dnp3-outstation/pkg/capture"
	"avaneesh/dnp3-outstation/pkg/dnp3"
	"avaneesh/dnp3-outstation/pkg/outstation"
	"avaneesh/dnp3-outstation/pkg/web"
)

const (
	ComponentOutstation = "dnp3-outstation"
)

// NewOutstationCmd creates the dnp3-outstation command
func NewOutstationCmd() *cobra.Command {
	cleanFlagSet := pflag.NewFlagSet(ComponentOutstation, pflag.ContinueOnError)
	o := options.NewDefaultOptions()
	cmd := &cobra.Command{
		Use: ComponentOutstation,
		Long: `dnp3-outstation serves a DNP3 outstation with an in-memory point database.
Point values are set over the HTTP API or the MQTT bus bridge; masters poll
them, receive unsolicited events and operate the outputs.`,
		DisableFlagParsing: true,
		SilenceUsage:       true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// cobra's flag parsing is disabled
			if err := cleanFlagSet.Parse(args); err != nil {
				klog.ErrorS(err, "Failed to parse flag")
				_ = cmd.Usage()
				os.Exit(1)
			}

			if cmds := cleanFlagSet.Args(); len(cmds) > 0 {
				klog.ErrorS(nil, "Unknown command", "command", cmds[0])
				_ = cmd.Usage()
				os.Exit(1)
			}

			options.PrintHelpAndExitIfRequested(cmd, cleanFlagSet)
			options.PrintDefaultConfigAndExitIfRequested(options.NewDefaultOptions(), cleanFlagSet)

			if err := applyConfigFile(o, args); err != nil {
				return err
			}

			if errs := options.Validate(o); len(errs) != 0 {
				return utilerrors.NewAggregate(errs)
			}
			if err := o.Logging.ValidateAndApply(); err != nil {
				return err
			}
			return run(o)
		},
	}

	o.AddFlags(cleanFlagSet)
	o.AddBaseFlags(cmd, cleanFlagSet)

	return cmd
}

// applyConfigFile loads --config and parses the flags again so they take
// precedence. A file that cannot be loaded leaves the defaults in place.
func applyConfigFile(o *options.Options, args []string) error {
	if o.ConfigFile == "" {
		return nil
	}
	path := o.ConfigFile
	if err := options.LoadConfigFile(path, o); err != nil {
		klog.ErrorS(err, "Failed to load config file, using defaults", "file", path)
		*o = *options.NewDefaultOptions()
	}
	o.ConfigFile = path

	fs := pflag.NewFlagSet("", pflag.ContinueOnError)
	o.AddFlags(fs)
	o.Logging.BindLoggingFlags(fs)
	fs.StringP("config", "c", path, "")
	fs.BoolP("help", "h", false, "")
	fs.Bool("default-config", false, "")
	return fs.Parse(args)
}

func run(o *options.Options) error {
	level, _ := dnp3.ParseLogLevel(o.ProtocolLogLevel)
	log := dnp3.NewLogger(level)

	var opts []outstation.Option
	if o.Capture != "" {
		w, err := capture.Create(o.Capture)
		if err != nil {
			return err
		}
		defer func() {
			klog.InfoS("Capture closed", "file", o.Capture, "packets", w.Packets())
			_ = w.Close()
		}()
		opts = append(opts, outstation.WithFrameTap(w))
	}

	a, err := newAgent(o, log, opts)
	if err != nil {
		return err
	}
	if err := a.Start(); err != nil {
		return err
	}
	defer func() {
		if err := a.Stop(); err != nil {
			klog.ErrorS(err, "Failed to stop outstation")
		}
	}()
	cfg := a.GetOutstationConfig()
	klog.InfoS("Outstation started", "transport", o.Listener.Transport,
		"address", cfg.OutstationIP, "port", cfg.Port, "outstationID", cfg.OutstationID, "masterID", cfg.MasterID)

	if o.HTTPAddress != "" {
		stop, err := web.NewServer(o.HTTPAddress, a).Serve()
		if err != nil {
			return errors.Wrap(err, "start HTTP API")
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), o.Wait.Duration)
			defer cancel()
			stop(ctx)
		}()
	}

	if o.MQTT.Broker != "" {
		stop, err := startBridge(o, a)
		if err != nil {
			return err
		}
		defer stop()
	}

	// kill (no param) sends SIGTERM, kill -2 SIGINT; SIGKILL can't be caught
	exitCh := make(chan os.Signal, 1)
	signal.Notify(exitCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exitCh
	klog.InfoS("Shutting down", "signal", sig.String())
	return nil
}

// newAgent builds the agent from the options and falls back to the default
// agent configuration when the configured one is rejected
func newAgent(o *options.Options, log dnp3.Logger, opts []outstation.Option) (*agent.Agent, error) {
	a, err := dnp3.NewAgent(o.Agent, nil, o.Listener, log, opts...)
	if err == nil {
		return a, nil
	}
	klog.ErrorS(err, "Invalid outstation config, using defaults", "config", o.Agent)
	return dnp3.NewAgent(agent.DefaultConfig(), nil, o.Listener, log, opts...)
}

func startBridge(o *options.Options, a *agent.Agent) (func(), error) {
	client := bus.NewClient(bus.Config{
		Broker:   o.MQTT.Broker,
		ClientID: o.MQTTClientID(),
		Username: o.MQTT.Username,
		Password: o.MQTT.Password,
		Prefix:   o.MQTT.Prefix,
	})
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "connect to MQTT broker %s", o.MQTT.Broker)
	}

	bridge := bus.New(client, a, o.MQTT.Prefix)
	if err := bridge.Start(); err != nil {
		client.Disconnect(2000)
		return nil, err
	}
	return func() {
		bridge.Stop()
		client.Disconnect(2000)
	}, nil
}
