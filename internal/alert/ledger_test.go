package alert

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockwatch/internal/models"
	"stockwatch/internal/store"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewLedger(st, zerolog.Nop())
}

func TestLedger_OncePerSession(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	sessionStart := time.Date(2024, 5, 10, 7, 0, 0, 0, time.UTC)
	cond := models.AlertCondition{Window: models.Window7, Average: 10.14, AbsDiff: 0.64, PctDiff: 6.34}

	ok, err := l.ShouldNotify(ctx, "TSLA", models.Window7, sessionStart)
	require.NoError(t, err)
	assert.True(t, ok)

	inserted, err := l.Record(ctx, "TSLA", cond, 9.5, sessionStart, sessionStart.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, inserted)

	ok, err = l.ShouldNotify(ctx, "TSLA", models.Window7, sessionStart)
	require.NoError(t, err)
	assert.False(t, ok)

	// A concurrent recorder for the same session loses.
	inserted, err = l.Record(ctx, "TSLA", cond, 9.3, sessionStart, sessionStart.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, inserted)

	// Other windows and symbols are unaffected.
	ok, err = l.ShouldNotify(ctx, "TSLA", models.Window30, sessionStart)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.ShouldNotify(ctx, "AAPL", models.Window7, sessionStart)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLedger_NewSessionResets(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	cond := models.AlertCondition{Window: models.Window7, Average: 10, AbsDiff: 1, PctDiff: 10}
	firstSession := time.Date(2024, 5, 10, 7, 0, 0, 0, time.UTC)
	nextSession := firstSession.Add(24 * time.Hour)

	inserted, err := l.Record(ctx, "TSLA", cond, 9, firstSession, firstSession.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, inserted)

	ok, err := l.ShouldNotify(ctx, "TSLA", models.Window7, nextSession)
	require.NoError(t, err)
	assert.True(t, ok)

	inserted, err = l.Record(ctx, "TSLA", cond, 9, nextSession, nextSession.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestLedger_History(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	sessionStart := time.Date(2024, 5, 10, 7, 0, 0, 0, time.UTC)
	for i, w := range models.DefaultWindows() {
		cond := models.AlertCondition{Window: w, Average: 10, AbsDiff: 1, PctDiff: 10}
		_, err := l.Record(ctx, "TSLA", cond, 9, sessionStart, sessionStart.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	records, err := l.History(ctx, "TSLA", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.Window90, records[0].Window)
	assert.Equal(t, models.Window30, records[1].Window)
}
