package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "roundtrip",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Broker connection flags
	flags.StringSliceP("bootstrap-server", "b", nil, "Broker address (repeatable)")
	flags.StringSlice("producer-override", nil, "Producer client property in key=value form (repeatable)")
	flags.StringSlice("consumer-override", nil, "Consumer client property in key=value form (repeatable)")
	flags.StringSlice("common-override", nil, "Client property applied to all roles in key=value form (repeatable)")

	// Workload flags
	flags.Int64P("max-messages", "n", 10000, "Total unique messages to round-trip")
	flags.IntP("rate", "r", 0, "Target messages per second")
	flags.StringSliceP("topic", "t", nil, "Active topic as name:partitions[:replication] (repeatable)")
	flags.String("throttle-model", "windowed", "Throttle model: 'windowed' or 'uniform'")
	flags.String("consumer-mode", string(ConsumerModeAssign), "Consumer variant: 'assign' or 'group'")
	flags.String("group-id", "", "Consumer group id (group mode only)")
	flags.String("value-generator", string(ValueGeneratorConstant), "Value generator: 'constant' or 'uniformRandom'")
	flags.Int("value-size", 64, "Message value size in bytes")
	flags.Int64("seed", 0, "Base seed for the uniformRandom value generator")

	// Output flags
	flags.Duration("status-interval", 30*time.Second, "Interval between status pushes")
	flags.String("status-file", "", "Append status snapshots as JSON lines to this file")
	flags.Bool("json-output", false, "Emit JSON formatted final report")
	flags.String("report-file", "", "Also write the final JSON report to this file")
	flags.StringSlice("threshold", nil, "Verification threshold (repeatable, e.g. 'duplicates == 0')")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.Bool("dump-config", false, "Print the effective configuration as YAML and exit")
	flags.String("config", "", "Path to configuration file (YAML or JSON)")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP endpoint for trace export (empty disables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.String("tracing-service-name", "", "Service name reported on spans")
	flags.Bool("tracing-insecure", false, "Disable TLS for OTLP export")
	flags.Float64("tracing-sample-rate", 1.0, "Trace sampling rate between 0.0 and 1.0")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config,
// overriding values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("bootstrap-server") {
		val, err := fs.GetStringSlice("bootstrap-server")
		if err != nil {
			return err
		}
		cfg.BootstrapServers = val
	}
	if fs.Changed("max-messages") {
		val, err := fs.GetInt64("max-messages")
		if err != nil {
			return err
		}
		cfg.MaxMessages = val
	}
	if fs.Changed("rate") {
		val, err := fs.GetInt("rate")
		if err != nil {
			return err
		}
		cfg.TargetMessagesPerSec = val
	}
	if fs.Changed("topic") {
		val, err := fs.GetStringSlice("topic")
		if err != nil {
			return err
		}
		cfg.ActiveTopics = val
	}
	if fs.Changed("throttle-model") {
		val, err := fs.GetString("throttle-model")
		if err != nil {
			return err
		}
		cfg.Throttle.Model = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("consumer-mode") {
		val, err := fs.GetString("consumer-mode")
		if err != nil {
			return err
		}
		cfg.Consumer.Mode = ConsumerMode(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("group-id") {
		val, err := fs.GetString("group-id")
		if err != nil {
			return err
		}
		cfg.Consumer.GroupID = strings.TrimSpace(val)
	}
	if fs.Changed("value-generator") {
		val, err := fs.GetString("value-generator")
		if err != nil {
			return err
		}
		cfg.Value.Generator = ValueGenerator(strings.TrimSpace(val))
	}
	if fs.Changed("value-size") {
		val, err := fs.GetInt("value-size")
		if err != nil {
			return err
		}
		cfg.Value.Size = val
	}
	if fs.Changed("seed") {
		val, err := fs.GetInt64("seed")
		if err != nil {
			return err
		}
		cfg.Value.Seed = val
	}
	if fs.Changed("status-interval") {
		val, err := fs.GetDuration("status-interval")
		if err != nil {
			return err
		}
		cfg.StatusInterval = val
	}
	if fs.Changed("status-file") {
		val, err := fs.GetString("status-file")
		if err != nil {
			return err
		}
		cfg.StatusFile = strings.TrimSpace(val)
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("report-file") {
		val, err := fs.GetString("report-file")
		if err != nil {
			return err
		}
		cfg.ReportFile = strings.TrimSpace(val)
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}
	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("dump-config") {
		val, err := fs.GetBool("dump-config")
		if err != nil {
			return err
		}
		cfg.DumpConfig = val
	}
	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("tracing-service-name") {
		val, err := fs.GetString("tracing-service-name")
		if err != nil {
			return err
		}
		cfg.Tracing.ServiceName = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}

	for flag, target := range map[string]*map[string]string{
		"common-override":   &cfg.CommonOverrides,
		"producer-override": &cfg.ProducerOverrides,
		"consumer-override": &cfg.ConsumerOverrides,
	} {
		vals, err := fs.GetStringSlice(flag)
		if err != nil {
			return err
		}
		if len(vals) == 0 {
			continue
		}
		if *target == nil {
			*target = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
				return fmt.Errorf("%s must be in key=value format: %s", flag, entry)
			}
			(*target)[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}

	return nil
}
