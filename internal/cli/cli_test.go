package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockwatch/internal/config"
	"stockwatch/internal/models"
	"stockwatch/internal/store"
)

func newTestRoot(t *testing.T) (*cobra.Command, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Database: config.DatabaseConfig{Path: filepath.Join(dir, "cli.db")},
		Schedule: config.ScheduleConfig{IntervalMinutes: 5, SyncIntervalMinutes: 60},
		Market:   config.MarketConfig{Open: "09:00", Timezone: "Europe/Berlin"},
		Data:     config.DataConfig{HistoricalDays: 150, Windows: []int{7, 30, 90}},
		Retry:    config.RetryConfig{MaxAttempts: 3, BackoffSeconds: 5},
		Notifications: config.NotificationConfig{
			Level: "all",
		},
		Commands: config.CommandConfig{PollTimeoutSeconds: 30},
	}
	require.NoError(t, cfg.Validate())
	return NewRootCmd(cfg, zerolog.Nop()), cfg
}

func execute(t *testing.T, root *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	root, _ := newTestRoot(t)

	out, err := execute(t, root, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Stockwatch v"+Version)
}

func TestConfigValidateCommand(t *testing.T) {
	root, _ := newTestRoot(t)

	out, err := execute(t, root, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "valid")
}

func TestWatchlistCommands(t *testing.T) {
	root, _ := newTestRoot(t)

	out, err := execute(t, root, "watchlist", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "empty")

	out, err = execute(t, root, "watchlist", "add", "aapl", "--name", "Apple Inc.")
	require.NoError(t, err)
	assert.Contains(t, out, "Added AAPL")

	out, err = execute(t, root, "watchlist", "add", "AAPL")
	require.NoError(t, err)
	assert.Contains(t, out, "already on the watchlist")

	out, err = execute(t, root, "watchlist", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "Apple Inc.")

	out, err = execute(t, root, "watchlist", "remove", "AAPL")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed AAPL")

	out, err = execute(t, root, "watchlist", "remove", "AAPL")
	require.NoError(t, err)
	assert.Contains(t, out, "not on the watchlist")
}

func TestAlertsCommand_Empty(t *testing.T) {
	root, _ := newTestRoot(t)

	out, err := execute(t, root, "alerts")
	require.NoError(t, err)
	assert.Contains(t, out, "No alerts recorded")
}

func TestAveragesCommand_NoHistory(t *testing.T) {
	root, _ := newTestRoot(t)

	_, err := execute(t, root, "watchlist", "add", "AAPL")
	require.NoError(t, err)

	out, err := execute(t, root, "averages", "AAPL")
	require.NoError(t, err)
	assert.Contains(t, out, "No price history stored")
	assert.Contains(t, out, "backfill")
}

func TestAveragesCommand_WithHistory(t *testing.T) {
	root, cfg := newTestRoot(t)

	// Seed a week of closes through a second connection to the same file.
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	require.NoError(t, err)
	points := make([]models.PricePoint, 7)
	base := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	for i := range points {
		points[i] = models.PricePoint{
			Symbol:    "AAPL",
			Date:      base.AddDate(0, 0, i),
			Open:      10, High: 10, Low: 10,
			Close:     10,
			AdjClose:  10,
			Volume:    1000,
			FetchedAt: time.Now().UTC(),
		}
	}
	require.NoError(t, st.SavePricePoints(context.Background(), points))
	require.NoError(t, st.Close())

	out, err := execute(t, root, "averages", "AAPL")
	require.NoError(t, err)
	assert.Contains(t, out, "7-day")
	assert.Contains(t, out, "$10.00")
	// The longer windows average over what exists.
	assert.Contains(t, out, "90-day")
	assert.NotContains(t, out, "No price history stored")
}

func TestTableRender(t *testing.T) {
	buf := &bytes.Buffer{}
	output := &Output{writer: buf}

	table := NewTable(output, "SYMBOL", "PRICE")
	table.AddRow("AAPL", "$182.50")
	table.AddRow("T", "$15.00")
	table.Render()

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 4)
	assert.Contains(t, string(lines[0]), "SYMBOL")
	assert.Contains(t, string(lines[2]), "AAPL")
	// Columns stay aligned: both rows pad the symbol to the same width.
	assert.Equal(t, bytes.Index(lines[2], []byte("$")), bytes.Index(lines[3], []byte("$")))
}

func TestFormatSignedPercent(t *testing.T) {
	output := &Output{writer: &bytes.Buffer{}}

	assert.Equal(t, "+1.50%", output.FormatSignedPercent(1.5))
	assert.Equal(t, "-2.25%", output.FormatSignedPercent(-2.25))
	assert.Equal(t, "0.00%", output.FormatSignedPercent(0))
}
