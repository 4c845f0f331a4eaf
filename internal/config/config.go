// Package config defines the workload configuration surface: a YAML file
// loaded through viper with command-line flag overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	BootstrapServers     []string          `mapstructure:"bootstrap_servers" yaml:"bootstrap_servers"`
	MaxMessages          int64             `mapstructure:"max_messages" yaml:"max_messages"`
	TargetMessagesPerSec int               `mapstructure:"target_messages_per_sec" yaml:"target_messages_per_sec"`
	ActiveTopics         []string          `mapstructure:"active_topics" yaml:"active_topics"`
	Throttle             ThrottleConfig    `mapstructure:"throttle" yaml:"throttle"`
	Consumer             ConsumerConfig    `mapstructure:"consumer" yaml:"consumer"`
	Value                ValueConfig       `mapstructure:"value" yaml:"value"`
	CommonOverrides      map[string]string `mapstructure:"common_overrides" yaml:"common_overrides,omitempty"`
	ProducerOverrides    map[string]string `mapstructure:"producer_overrides" yaml:"producer_overrides,omitempty"`
	ConsumerOverrides    map[string]string `mapstructure:"consumer_overrides" yaml:"consumer_overrides,omitempty"`
	StatusInterval       time.Duration     `mapstructure:"status_interval" yaml:"status_interval"`
	StatusFile           string            `mapstructure:"status_file" yaml:"status_file,omitempty"`
	JSONOutput           bool              `mapstructure:"json_output" yaml:"json_output"`
	ReportFile           string            `mapstructure:"report_file" yaml:"report_file,omitempty"`
	Thresholds           []string          `mapstructure:"thresholds" yaml:"thresholds,omitempty"`
	LogLevel             string            `mapstructure:"log_level" yaml:"log_level"`
	Tracing              TracingConfig     `mapstructure:"tracing" yaml:"tracing"`
	ConfigFile           string            `mapstructure:"-" yaml:"-"`
	DumpConfig           bool              `mapstructure:"-" yaml:"-"`
}

type ThrottleConfig struct {
	// Model is "windowed" (fixed quota per window) or "uniform" (even pacing).
	Model string `mapstructure:"model" yaml:"model"`
}

type ConsumerMode string

const (
	ConsumerModeAssign ConsumerMode = "assign"
	ConsumerModeGroup  ConsumerMode = "group"
)

type ConsumerConfig struct {
	Mode    ConsumerMode `mapstructure:"mode" yaml:"mode"`
	GroupID string       `mapstructure:"group_id" yaml:"group_id,omitempty"`
}

type ValueGenerator string

const (
	ValueGeneratorConstant      ValueGenerator = "constant"
	ValueGeneratorUniformRandom ValueGenerator = "uniformRandom"
)

type ValueConfig struct {
	Generator ValueGenerator `mapstructure:"generator" yaml:"generator"`
	Size      int            `mapstructure:"size" yaml:"size"`
	Seed      int64          `mapstructure:"seed" yaml:"seed"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Protocol    string  `mapstructure:"protocol" yaml:"protocol,omitempty"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name,omitempty"`
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
}

func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if len(c.BootstrapServers) == 0 {
		issues = append(issues, "at least one bootstrap server is required")
	}
	if c.MaxMessages <= 0 {
		issues = append(issues, "max_messages must be > 0")
	}
	if c.TargetMessagesPerSec <= 0 {
		issues = append(issues, "target_messages_per_sec must be > 0")
	}

	specs, err := ParseTopicSpecs(c.ActiveTopics)
	if err != nil {
		issues = append(issues, err.Error())
	} else {
		total := 0
		for _, spec := range specs {
			total += int(spec.Partitions)
		}
		if total == 0 {
			issues = append(issues, "at least one active topic-partition is required")
		}
	}

	switch c.Consumer.Mode {
	case ConsumerModeAssign, "":
	case ConsumerModeGroup:
		if strings.TrimSpace(c.Consumer.GroupID) == "" {
			issues = append(issues, "consumer.group_id is required in group mode")
		}
	default:
		issues = append(issues, fmt.Sprintf("unknown consumer mode %q: use \"assign\" or \"group\"", c.Consumer.Mode))
	}

	switch c.Value.Generator {
	case ValueGeneratorConstant, ValueGeneratorUniformRandom, "":
	default:
		issues = append(issues, fmt.Sprintf("unknown value generator %q", c.Value.Generator))
	}
	if c.Value.Size < 0 {
		issues = append(issues, "value.size must be >= 0")
	}
	if c.StatusInterval < 0 {
		issues = append(issues, "status_interval must be >= 0")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1.0 {
		issues = append(issues, "tracing.sample_rate must be between 0.0 and 1.0")
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// ClientOverrides merges common client properties with the role-specific
// ones; role keys win.
func (c Config) ClientOverrides(role map[string]string) map[string]string {
	merged := make(map[string]string, len(c.CommonOverrides)+len(role))
	for k, v := range c.CommonOverrides {
		merged[k] = v
	}
	for k, v := range role {
		merged[k] = v
	}
	return merged
}

// DumpYAML renders the effective configuration.
func (c Config) DumpYAML() ([]byte, error) {
	return yaml.Marshal(c)
}
