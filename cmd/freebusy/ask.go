package main

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"freebusy/internal/availability"
	appLog "freebusy/internal/log"
	"freebusy/internal/model"
	"freebusy/internal/query"
)

type askFlags struct {
	now       string
	busyFile  string
	maxTokens int
}

func newAskCmd(v *viper.Viper) *cobra.Command {
	var flags askFlags
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question and print the JSON response",
		Example: `  freebusy ask "am I free tomorrow at 15:00?"
  freebusy ask --now 2025-11-09T00:00:00-06:00 --busy busy.json "any slot tomorrow morning for 45 min"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, engine, err := loadConfig(v)
			if err != nil {
				return err
			}

			now := time.Now()
			if flags.now != "" {
				now, err = time.Parse(time.RFC3339, flags.now)
				if err != nil {
					return errors.Wrap(err, "parse --now")
				}
			}
			now = now.In(engine.Loc())

			plan := query.NewPlan(strings.Join(args, " "), now, engine)

			var busy []model.BusyInterval
			switch {
			case flags.busyFile != "":
				busy, err = readBusyFile(flags.busyFile)
				if err != nil {
					return err
				}
			default:
				if span, ok := plan.Span(); ok {
					provider := newProvider(conf, engine, nil)
					busy, err = provider.ListBusyIntervals(cmd.Context(), span.Start, span.End)
					if err != nil {
						appLog.Warn("some calendar sources failed", "error", err.Error(), "intervals", len(busy))
					}
				}
			}
			busy, dropped := availability.Sanitize(busy)
			if dropped > 0 {
				appLog.Warn("dropped malformed busy intervals", "count", dropped)
			}

			resp := plan.Answer(busy, engine, flags.maxTokens)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
	cmd.Flags().StringVar(&flags.now, "now", "", "Reference time in RFC 3339 (default: current time)")
	cmd.Flags().StringVar(&flags.busyFile, "busy", "", "JSON file of busy intervals to use instead of the ICS sources")
	cmd.Flags().IntVar(&flags.maxTokens, "max-tokens", 512, "Explanation word limit")
	return cmd
}

// readBusyFile loads a JSON array of {title, start, end, all_day} objects.
func readBusyFile(path string) ([]model.BusyInterval, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read busy file")
	}
	var busy []model.BusyInterval
	if err := json.Unmarshal(data, &busy); err != nil {
		return nil, errors.Wrapf(err, "parse busy file %s", path)
	}
	return busy, nil
}
