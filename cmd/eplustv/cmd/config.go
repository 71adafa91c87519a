package cmd

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/leduong/EPlusTV/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var configDumpEffective bool

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the configuration as YAML",
	Long: `Dump the default configuration values in YAML format, or with --effective
the values after the config file and environment are applied. Secrets are
redacted from effective output.

  eplustv config dump > config.yaml

Environment variables use the EPLUSTV_ prefix and underscores for nesting.
Example: scheduling.num_channels -> EPLUSTV_SCHEDULING_NUM_CHANNELS`,
	RunE: runConfigDump,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
		return nil
	},
}

func init() {
	configDumpCmd.Flags().BoolVar(&configDumpEffective, "effective", false, "dump the loaded configuration instead of defaults")
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
	configCmd.AddCommand(configValidateCmd)
}

// secretKeys are redacted when dumping effective configuration.
var secretKeys = map[string]bool{
	"service_key": true,
	"dsn":         true,
	"redis_url":   true,
}

// toMap converts a config struct to a map keyed by mapstructure tags, with
// durations in their string form.
func toMap(v any, redact bool) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		key := typ.Field(i).Tag.Get("mapstructure")
		if key == "" {
			key = strings.ToLower(typ.Field(i).Name)
		}

		switch fv := field.Interface().(type) {
		case time.Duration:
			result[key] = fv.String()
		case string:
			if redact && secretKeys[key] && fv != "" {
				result[key] = "[REDACTED]"
			} else {
				result[key] = fv
			}
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface(), redact)
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	out := cfg
	if !configDumpEffective {
		defaults, err := config.Load("")
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		out = defaults
	}

	yamlData, err := yaml.Marshal(toMap(out, configDumpEffective))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "# eplustv configuration")
	fmt.Fprintln(w, "#")
	fmt.Fprintln(w, "# Duration format: 30s, 5m, 4h")
	fmt.Fprintln(w, "# Environment variable overrides:")
	fmt.Fprintln(w, "#   EPLUSTV_SERVER_PORT, EPLUSTV_SERVER_BASE_URL")
	fmt.Fprintln(w, "#   EPLUSTV_DATABASE_DRIVER, EPLUSTV_DATABASE_DSN")
	fmt.Fprintln(w, "#   EPLUSTV_REMOTE_URL, EPLUSTV_REMOTE_SERVICE_KEY")
	fmt.Fprintln(w, "#   EPLUSTV_SCHEDULING_START_CHANNEL, EPLUSTV_SCHEDULING_NUM_CHANNELS")
	fmt.Fprintln(w)
	fmt.Fprint(w, string(yamlData))
	return nil
}
