package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"widgetd/internal/config"
	"widgetd/internal/scheduler"
	"widgetd/internal/storage"
	"widgetd/internal/trigger"
	"widgetd/internal/weather"
)

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:   "widgetd",
		Short: "Shows and hides desktop widgets on time and weather triggers.",
		Long: `widgetd keeps a set of widgets and decides, for each one, when it should be
visible: always, between two instants, inside a recurring time frame, once,
or while the weather matches a rule. The daemon arms one timer per widget
and polls the weather on a schedule.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.json", "path to config file (json or yaml)")

	root.AddCommand(
		newRunCmd(&cfgPath),
		newAddCmd(&cfgPath),
		newListCmd(&cfgPath),
		newRemoveCmd(&cfgPath),
		newEvalCmd(),
	)
	return root
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.NewManager(path).Load()
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// explain turns the errors a user can act on into a readable sentence.
func explain(err error) string {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Sprintf("file does not exist: %v", err)
	case errors.Is(err, weather.ErrNoLocation):
		return "location unavailable: set location.latitude and location.longitude in the config to use weather triggers"
	case errors.Is(err, storage.ErrDisabled):
		return "storage is disabled: set storage.driver to file or sqlite to manage widgets from the command line"
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, scheduler.ErrNotFound):
		return fmt.Sprintf("no such widget: %v", err)
	case errors.Is(err, trigger.ErrInvalid):
		return fmt.Sprintf("invalid trigger: %v", err)
	default:
		return fmt.Sprintf("error: %v", err)
	}
}
