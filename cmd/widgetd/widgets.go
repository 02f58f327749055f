package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"widgetd/internal/app"
	"widgetd/internal/storage"
	"widgetd/internal/trigger"
	"widgetd/internal/widget"
	logx "widgetd/pkg/logx"
)

func openStore(cfgPath string) (storage.Store, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	return app.OpenStore(cfg, logx.Nop(), false)
}

// readJSONArg accepts inline JSON or @path.
func readJSONArg(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if path, ok := strings.CutPrefix(raw, "@"); ok {
		return os.ReadFile(path)
	}
	return []byte(raw), nil
}

func newAddCmd(cfgPath *string) *cobra.Command {
	var name, trig, payload string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Store a new widget",
		Long: `Store a new widget. The daemon picks it up on its next start.

Triggers are JSON, inline or @file:
  {"kind":"always"}
  {"kind":"always_between","start":"2024-03-01T09:00:00Z","end":"2024-03-05T17:00:00Z"}
  {"kind":"composite","frame":{"hour":{"enabled":true,"start":"09:00","end":"17:00"}}}
  {"kind":"weather","weather":"raining"}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tb, err := readJSONArg(trig)
			if err != nil {
				return err
			}
			var t trigger.Trigger
			if err := json.Unmarshal(tb, &t); err != nil {
				return err
			}
			var raw json.RawMessage
			if strings.TrimSpace(payload) != "" {
				if raw, err = readJSONArg(payload); err != nil {
					return err
				}
			}
			rec, err := widget.New(name, t, raw, time.Now())
			if err != nil {
				return err
			}

			st, err := openStore(*cfgPath)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.SaveWidgets(cmd.Context(), []widget.Record{rec}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rec.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "widget name")
	cmd.Flags().StringVarP(&trig, "trigger", "t", "", "trigger JSON or @file")
	cmd.Flags().StringVarP(&payload, "payload", "p", "", "display payload JSON or @file")
	_ = cmd.MarkFlagRequired("trigger")
	return cmd
}

func newListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored widgets and whether each is visible now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(*cfgPath)
			if err != nil {
				return err
			}
			defer st.Close()
			recs, err := st.LoadWidgets(cmd.Context())
			if err != nil {
				return err
			}

			now := time.Now()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTRIGGER\tVISIBLE")
			for _, r := range recs {
				res := trigger.Evaluate(r.Trigger, now, trigger.Env{})
				visible := fmt.Sprint(res.Visible)
				if r.Trigger.NeedsWeather() {
					visible = "n/a"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Trigger, visible)
			}
			return w.Flush()
		},
	}
}

func newRemoveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>...",
		Short: "Delete stored widgets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(*cfgPath)
			if err != nil {
				return err
			}
			defer st.Close()
			for _, id := range args {
				if err := st.DeleteWidget(cmd.Context(), id); err != nil {
					return fmt.Errorf("%s: %w", id, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "removed", id)
			}
			return nil
		},
	}
}
