package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"widgetd/internal/config"
	"widgetd/internal/storage"
	"widgetd/internal/trigger"
	logx "widgetd/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, storePath, extra string) {
	t.Helper()
	body := fmt.Sprintf(`{
  "logging": {"level": "error", "console": true},
  "scheduler": {"horizon": "48h"},
  "weather": {"enabled": false},
  "storage": {"driver": "file", "path": %q}%s
}`, storePath, extra)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestAppPersistsWidgetsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	storePath := filepath.Join(dir, "widgets.json")
	writeConfig(t, cfgPath, storePath, "")

	a, err := NewApp(cfgPath)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	rec, err := a.Scheduler().AddWidget(context.Background(), "clock", trigger.Always(), nil)
	require.NoError(t, err)
	snap, err := a.Scheduler().Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	assert.True(t, snap.Entries[0].Visible)
	require.NoError(t, a.Stop(context.Background(), StopAppStop))

	b, err := NewApp(cfgPath)
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop(context.Background(), StopAppStop)

	snap, err = b.Scheduler().Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, rec.ID, snap.Entries[0].ID)
	assert.True(t, snap.Entries[0].Visible)
}

func TestAppStatusReport(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	writeConfig(t, cfgPath, filepath.Join(dir, "widgets.json"), "")

	a, err := NewApp(cfgPath)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop(context.Background(), StopAppStop)

	_, err = a.Scheduler().AddWidget(context.Background(), "clock", trigger.Always(), nil)
	require.NoError(t, err)

	v, err := a.report(context.Background())
	require.NoError(t, err)
	rep, ok := v.(statusReport)
	require.True(t, ok)
	assert.Len(t, rep.Scheduler.Entries, 1)
	// scheduler.errors, eventbus.log, config.reload, config.watch
	assert.GreaterOrEqual(t, rep.Tasks.Started, uint64(4))
	assert.Positive(t, rep.Tasks.Active)
}

func TestAppReloadUpdatesLocation(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	storePath := filepath.Join(dir, "widgets.json")
	writeConfig(t, cfgPath, storePath, "")

	a, err := NewApp(cfgPath)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop(context.Background(), StopAppStop)

	_, known := a.loc.LastKnown()
	require.False(t, known)

	// Let the watcher settle before rewriting.
	time.Sleep(100 * time.Millisecond)
	writeConfig(t, cfgPath, storePath, `,
  "location": {"latitude": 52.52, "longitude": 13.41}`)

	require.Eventually(t, func() bool {
		c, ok := a.loc.LastKnown()
		return ok && c.Latitude == 52.52
	}, 5*time.Second, 20*time.Millisecond)
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"scheduler": {"sweep": "every banana"}}`), 0o644))

	_, err := NewApp(cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler")
}

func TestNewAppMissingConfig(t *testing.T) {
	_, err := NewApp(filepath.Join(t.TempDir(), "absent.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestMapStorageConfig(t *testing.T) {
	cases := []struct {
		name    string
		in      config.StorageConfig
		enabled bool
		want    storage.Config
		wantErr bool
	}{
		{name: "none", in: config.StorageConfig{Driver: "none"}},
		{name: "empty"},
		{name: "file default path", in: config.StorageConfig{Driver: "File"}, enabled: true,
			want: storage.Config{Driver: "file", Path: defaultStorePath}},
		{name: "sqlite", in: config.StorageConfig{Driver: "sqlite", Path: "w.db", BusyTimeout: "3s"}, enabled: true,
			want: storage.Config{Driver: "sqlite", Path: "w.db", BusyTimeout: 3 * time.Second}},
		{name: "sqlite default busy", in: config.StorageConfig{Driver: "sqlite3", Path: "w.db"}, enabled: true,
			want: storage.Config{Driver: "sqlite3", Path: "w.db", BusyTimeout: defaultBusyTimeout}},
		{name: "sqlite without path", in: config.StorageConfig{Driver: "sqlite"}, wantErr: true},
		{name: "unknown", in: config.StorageConfig{Driver: "etcd"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, enabled, err := mapStorageConfig(&config.Config{Storage: tc.in})
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.enabled, enabled)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMapSchedulerConfig(t *testing.T) {
	cfg := &config.Config{
		Scheduler: config.SchedulerConfig{Horizon: "24h", Sweep: "@hourly"},
		Weather:   config.WeatherConfig{Enabled: true},
	}
	sc, err := mapSchedulerConfig(cfg, true)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, sc.Horizon)
	assert.Equal(t, "@hourly", sc.Sweep)
	assert.Equal(t, defaultPoll, sc.WeatherPoll)

	sc, err = mapSchedulerConfig(cfg, false)
	require.NoError(t, err)
	assert.Empty(t, sc.WeatherPoll)

	cfg.Scheduler.Horizon = "soon"
	_, err = mapSchedulerConfig(cfg, true)
	assert.Error(t, err)
}

func TestOpenStoreDisabled(t *testing.T) {
	cfg := &config.Config{}
	_, err := OpenStore(cfg, logx.Nop(), false)
	require.ErrorIs(t, err, storage.ErrDisabled)

	st, err := OpenStore(cfg, logx.Nop(), true)
	require.NoError(t, err)
	defer st.Close()
	recs, err := st.LoadWidgets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}
