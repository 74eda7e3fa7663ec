package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"freebusy/internal/config"
	"freebusy/internal/ics"
	appLog "freebusy/internal/log"
	"freebusy/internal/metrics"
	"freebusy/internal/model"
	"freebusy/internal/refresh"
	"freebusy/internal/web"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP query API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, engine, err := loadConfig(v)
			if err != nil {
				return err
			}
			return serve(cmd, conf, engine)
		},
	}
	cmd.Flags().String("listen", "", "HTTP listen address (overrides config if set)")
	_ = v.BindPFlag("listen", cmd.Flags().Lookup("listen"))
	return cmd
}

func serve(cmd *cobra.Command, conf *config.Config, engine model.Config) error {
	ctx := cmd.Context()

	appLog.Info("freebusy starting",
		"version", version,
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"work_hours", engine.WorkHours.String(),
		"edge_policy", conf.EdgePolicy,
		"horizon_days", conf.HorizonDays,
		"refresh", conf.RefreshCron,
		"ics_count", len(conf.ICS),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.MustNew(reg)

	provider := newProvider(conf, engine, m)

	if len(provider.Sources()) > 0 {
		sched, err := refresh.New(conf.RefreshCron, engine.Location, provider.Refresh)
		if err != nil {
			return err
		}
		sched.OnResult = m.Refresh
		if err := sched.Start(ctx, true); err != nil {
			return err
		}
		defer sched.Stop()
	}

	srv := web.NewServer(web.Options{
		Config:   conf,
		Engine:   engine,
		Provider: provider,
		Metrics:  m,
		Version:  version,
	})
	err := srv.Run(ctx)
	appLog.Info("freebusy exiting")
	return err
}

// newProvider builds the ICS provider from the configured sources. Sources
// without an ID fall back to their name, then their URL.
func newProvider(conf *config.Config, engine model.Config, m *metrics.Metrics) *ics.Provider {
	sources := make([]ics.Source, 0, len(conf.ICS))
	for _, csrc := range conf.ICS {
		if csrc.URL == "" {
			continue
		}
		id := csrc.ID
		if id == "" {
			if csrc.Name != "" {
				id = csrc.Name
			} else {
				id = csrc.URL
			}
		}
		sources = append(sources, ics.Source{ID: id, URL: csrc.URL, Name: csrc.Name})
	}

	return ics.NewProvider(sources, ics.NewFetcher(conf.CacheDir, conf.FetchConcurrency), ics.ProviderOptions{
		Location:  engine.Location,
		TTL:       time.Duration(conf.CacheTTLSeconds) * time.Second,
		OnFailure: m.ProviderFailure,
	})
}
