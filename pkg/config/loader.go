package config

import (
	goflag "flag"
	"os"

	"github.com/kkyr/fig"
	"github.com/spf13/pflag"
)

const EnvPrefix = "LIVECLASS"

// LoadConfig loads the configuration file into the given struct.
// The path param specifies a custom directory of the configuration file.
// Environment variables with the LIVECLASS_ prefix override file values.
func LoadConfig(config any, path string) error {
	dirs := []string{path}
	if path == "" {
		dirs = append(dirs, ".", "configs", "../../configs")
		if home, err := os.UserHomeDir(); err == nil {
			dirs = append(dirs, home+"/.liveclass")
		}
	}
	return fig.Load(config, fig.Dirs(dirs...), fig.UseEnv(EnvPrefix))
}

// ParseFlags reads the config file and applies command-line overrides.
func (c *Config) ParseFlags() error {
	pflag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	conf := pflag.StringP("conf", "c", "", "custom config directory")
	debug := pflag.BoolP("debug", "d", false, "debug logging")
	pflag.Parse()

	if err := LoadConfig(c, *conf); err != nil {
		return err
	}
	if *debug {
		c.Debug = true
	}
	return nil
}
