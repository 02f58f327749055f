package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/afero"

	"widgetd/internal/widget"
	logx "widgetd/pkg/logx"
)

// Store is the persistence API used by the scheduler and the CLI.
type Store interface {
	// LoadWidgets returns every stored record. A record that cannot be decoded
	// fails the whole load.
	LoadWidgets(ctx context.Context) ([]widget.Record, error)
	// SaveWidgets inserts or replaces the given records.
	SaveWidgets(ctx context.Context, recs []widget.Record) error
	// DeleteWidget removes one record; ErrNotFound if it does not exist.
	DeleteWidget(ctx context.Context, id string) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, ErrDisabled) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, ErrDisabled
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "memory":
		cfg.Fs = afero.NewMemMapFs()
		if strings.TrimSpace(cfg.Path) == "" {
			cfg.Path = "/widgets.json"
		}
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
