package options

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/component-base/config"
	"k8s.io/component-base/logs"
	"k8s.io/component-base/logs/registry"
	"k8s.io/klog/v2"
	"sigs.k8s.io/yaml"
)

// BaseOptions are the flags every command shares: config file and logging
type BaseOptions struct {
	ConfigFile string               `json:"-"`
	Logging    LoggingConfiguration `json:"logging"`
}

// NewDefaultBaseOptions logs text at verbosity 2
func NewDefaultBaseOptions() BaseOptions {
	return BaseOptions{Logging: NewDefaultLoggingConfiguration()}
}

// AddBaseFlags binds config, logging, help and default-config flags to fs
func (bo *BaseOptions) AddBaseFlags(cmd *cobra.Command, fs *pflag.FlagSet) {
	bo.addConfigFile(fs)
	bo.Logging.BindLoggingFlags(fs)
	addHelpAndUsage(cmd, fs)
	fs.Bool("default-config", false, "print the default configuration as YAML and exit")
}

func (bo *BaseOptions) addConfigFile(fs *pflag.FlagSet) {
	fs.StringVarP(&bo.ConfigFile, "config", "c", bo.ConfigFile, "Load the initial configuration from this YAML file. Command-line flags override values from the file. If the file cannot be used the built-in defaults apply.")
}

// LoggingConfiguration is the klog setup shared with component-base
type LoggingConfiguration struct {
	config.LoggingConfiguration
}

// NewDefaultLoggingConfiguration logs text at verbosity 2
func NewDefaultLoggingConfiguration() LoggingConfiguration {
	return LoggingConfiguration{
		config.LoggingConfiguration{
			Format:    "text",
			Verbosity: 2,
		},
	}
}

// Validate checks the format and verbosity without touching klog
func (l *LoggingConfiguration) Validate() []error {
	errs := logs.ValidateLoggingConfiguration(&l.LoggingConfiguration, nil)
	if len(errs) == 0 {
		return nil
	}
	return errs.ToAggregate().Errors()
}

// ValidateAndApply configures klog and starts its periodic flush. Call it
// once per process.
func (l *LoggingConfiguration) ValidateAndApply() error {
	o := logs.NewOptions()
	o.Config.Format = l.Format
	o.Config.Verbosity = l.Verbosity
	o.Config.VModule = l.VModule
	return o.ValidateAndApply()
}

type marshalLoggingConfig struct {
	Format    string                      `json:"format"`
	Verbosity config.VerbosityLevel       `json:"verbosity"`
	VModule   config.VModuleConfiguration `json:"vmodule,omitempty"`
}

func (l *LoggingConfiguration) MarshalJSON() ([]byte, error) {
	return json.Marshal(&marshalLoggingConfig{
		Format:    l.Format,
		Verbosity: l.Verbosity,
		VModule:   l.VModule,
	})
}

func (l *LoggingConfiguration) UnmarshalJSON(data []byte) error {
	in := &marshalLoggingConfig{}
	if err := json.Unmarshal(data, in); err != nil {
		return err
	}
	l.Format = in.Format
	l.Verbosity = in.Verbosity
	l.VModule = in.VModule
	return nil
}

// BindLoggingFlags adds --v, --vmodule and --logging-format; the other
// component-base logging flags are hidden
func (l *LoggingConfiguration) BindLoggingFlags(fs *pflag.FlagSet) {
	visible := map[string]bool{
		"v":              true,
		"vmodule":        true,
		"logging-format": true,
	}

	logsFs := pflag.NewFlagSet("", pflag.ContinueOnError)
	logs.BindLoggingFlags(&l.LoggingConfiguration, logsFs)
	logsFs.VisitAll(func(f *pflag.Flag) {
		if visible[f.Name] {
			if f.Name == "logging-format" {
				formats := fmt.Sprintf(`"%s"`, strings.Join(registry.LogRegistry.List(), `", "`))
				f.Usage = fmt.Sprintf("Sets the log format. Permitted formats: %s.", formats)
			}
			return
		}
		f.Hidden = true
	})
	fs.AddFlagSet(logsFs)
}

// PrintHelpAndExitIfRequested prints the usage when --help is set
func PrintHelpAndExitIfRequested(cmd *cobra.Command, fs *pflag.FlagSet) {
	help, err := fs.GetBool("help")
	if err != nil {
		klog.InfoS(`"help" flag is non-bool, programmer error, please correct`)
		os.Exit(1)
	}
	if help {
		_ = cmd.Help()
		os.Exit(0)
	}
}

// PrintDefaultConfigAndExitIfRequested prints cfg as YAML when
// --default-config is set
func PrintDefaultConfigAndExitIfRequested(cfg interface{}, fs *pflag.FlagSet) {
	show, err := fs.GetBool("default-config")
	if err != nil {
		klog.InfoS(`"default-config" flag is non-bool, programmer error, please correct`)
		os.Exit(1)
	}
	if !show {
		return
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		klog.ErrorS(err, "Failed to marshal default config to yaml")
		os.Exit(1)
	}
	fmt.Println("# Default configuration. Save it, edit it and pass it with --config.")
	fmt.Printf("\n%v\n", string(data))
	os.Exit(0)
}

func addHelpAndUsage(cmd *cobra.Command, fs *pflag.FlagSet) {
	fs.BoolP("help", "h", false, fmt.Sprintf("help for %s", cmd.Name()))

	// cobra's default usage and help funcs would add its global flags to fs
	const usageFmt = "Usage:\n  %s\n\nFlags:\n%s"
	cmd.SetUsageFunc(func(cmd *cobra.Command) error {
		_, _ = fmt.Fprintf(cmd.OutOrStderr(), usageFmt, cmd.UseLine(), fs.FlagUsagesWrapped(2))
		return nil
	})
	cmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n"+usageFmt, cmd.Long, cmd.UseLine(), fs.FlagUsagesWrapped(2))
	})
}

// LoadConfigFile reads the YAML file at path into out
func LoadConfigFile(path string, out interface{}) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, out)
}
