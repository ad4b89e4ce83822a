package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables read for each key.
const EnvPrefix = "IMGSHIP"

// Config represents the imgship CLI configuration.
// Use mapstructure tags for Viper unmarshaling.
type Config struct {
	SSHCommand  string        `mapstructure:"sshcmd"`
	SSHArgs     []string      `mapstructure:"ssharg"`
	Docker      string        `mapstructure:"docker"`
	Compression string        `mapstructure:"compress"`
	Match       string        `mapstructure:"match"`
	Progress    string        `mapstructure:"progress"`
	Parallel    bool          `mapstructure:"parallel"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		SSHCommand:  "ssh",
		SSHArgs:     []string{},
		Docker:      "docker",
		Compression: "none",
		Match:       "diffid",
		Progress:    "auto",
	}
}

// Load resolves the configuration with increasing precedence: defaults, the
// config file, IMGSHIP_* environment variables, then flags that were set on
// the command line. Flags are bound by key name. A missing default config
// file is not an error; an explicit file must exist.
func Load(v *viper.Viper, flags *pflag.FlagSet, file string) (*Config, error) {
	def := Default()
	v.SetDefault("sshcmd", def.SSHCommand)
	v.SetDefault("ssharg", def.SSHArgs)
	v.SetDefault("docker", def.Docker)
	v.SetDefault("compress", def.Compression)
	v.SetDefault("match", def.Match)
	v.SetDefault("progress", def.Progress)
	v.SetDefault("parallel", def.Parallel)
	v.SetDefault("timeout", def.Timeout)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for _, key := range v.AllKeys() {
			if f := flags.Lookup(key); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", key, err)
				}
			}
		}
	}

	if err := readFile(v, file); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

func readFile(v *viper.Viper, file string) error {
	v.SetConfigType("yaml")
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", file, err)
		}
		return nil
	}

	dir, err := Dir()
	if err != nil {
		// No home directory means no default config file.
		return nil //nolint:nilerr // the default file is optional
	}
	v.SetConfigName(strings.TrimSuffix(FileName, ".yaml"))
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}
