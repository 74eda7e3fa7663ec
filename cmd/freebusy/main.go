package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"freebusy/internal/config"
	appLog "freebusy/internal/log"
	"freebusy/internal/model"
)

var version = "0.1.0-dev"

func main() {
	os.Exit(run())
}

func run() int {
	defer appLog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("FREEBUSY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "freebusy",
		Short:         "Answer free-text availability questions against ICS calendars",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := root.PersistentFlags()
	flags.String("config", "/etc/freebusy/config.yaml", "Path to config file")
	flags.String("timezone", "", "IANA timezone (overrides config if set)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	_ = v.BindPFlag("config", flags.Lookup("config"))
	_ = v.BindPFlag("timezone", flags.Lookup("timezone"))
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))

	root.AddCommand(newServeCmd(v), newAskCmd(v))
	return root
}

// loadConfig reads the YAML file and layers environment and flag values on
// top of it.
func loadConfig(v *viper.Viper) (*config.Config, model.Config, error) {
	path := v.GetString("config")
	conf, err := config.Load(path)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", path)
		return nil, model.Config{}, err
	}
	conf.Override(v)
	conf.Normalize()
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	engine, err := conf.Engine()
	if err != nil {
		appLog.Error("invalid config", err, "config_path", path)
		return nil, model.Config{}, err
	}
	return conf, engine, nil
}
