package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"widgetd/internal/trigger"
	"widgetd/internal/weather"
)

func newEvalCmd() *cobra.Command {
	var (
		trig       string
		at         string
		horizon    time.Duration
		conditions string
		located    bool
	)
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a trigger at an instant without running the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tb, err := readJSONArg(trig)
			if err != nil {
				return err
			}
			var t trigger.Trigger
			if err := json.Unmarshal(tb, &t); err != nil {
				return err
			}

			now := time.Now()
			if at != "" {
				if now, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}

			env := trigger.Env{LocationKnown: located, Horizon: horizon}
			if conditions != "" {
				cb, err := readJSONArg(conditions)
				if err != nil {
					return err
				}
				var c weather.Conditions
				if err := json.Unmarshal(cb, &c); err != nil {
					return fmt.Errorf("--conditions: %w", err)
				}
				env.Conditions = &c
			}
			if t.NeedsWeather() && !env.LocationKnown {
				return weather.ErrNoLocation
			}

			res := trigger.Evaluate(t, now, env)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "trigger:   %s\n", t)
			fmt.Fprintf(out, "at:        %s\n", now.Format(time.RFC3339))
			fmt.Fprintf(out, "visible:   %t\n", res.Visible)
			if res.NextWake.IsZero() {
				fmt.Fprintln(out, "next_wake: none")
			} else {
				fmt.Fprintf(out, "next_wake: %s\n", res.NextWake.Format(time.RFC3339))
			}
			fmt.Fprintf(out, "deferred:  %t\n", res.Deferred)
			fmt.Fprintf(out, "expired:   %t\n", res.Expired)
			return nil
		},
	}
	cmd.Flags().StringVarP(&trig, "trigger", "t", "", "trigger JSON or @file")
	cmd.Flags().StringVar(&at, "at", "", "evaluation instant, RFC3339 (default now)")
	cmd.Flags().DurationVar(&horizon, "horizon", trigger.DefaultHorizon, "how far ahead to look for the next change")
	cmd.Flags().StringVar(&conditions, "conditions", "", "weather conditions JSON or @file")
	cmd.Flags().BoolVar(&located, "location-known", false, "treat the location as available")
	_ = cmd.MarkFlagRequired("trigger")
	return cmd
}
