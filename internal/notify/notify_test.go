package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockwatch/internal/config"
	"stockwatch/internal/models"
)

// recordingChannel captures notifications for assertions.
type recordingChannel struct {
	name     string
	enabled  bool
	failures int32
	sent     []Notification
}

func (c *recordingChannel) Name() string    { return c.name }
func (c *recordingChannel) IsEnabled() bool { return c.enabled }

func (c *recordingChannel) Send(_ context.Context, n Notification) error {
	if atomic.LoadInt32(&c.failures) > 0 {
		atomic.AddInt32(&c.failures, -1)
		return assert.AnError
	}
	c.sent = append(c.sent, n)
	return nil
}

func newTestNotifier(level NotificationLevel, ch NotificationChannel) *MultiNotifier {
	mn := NewMultiNotifier(&config.NotificationConfig{Enabled: true, Level: string(level)}, config.TelegramCredentials{})
	mn.AddChannel(ch)
	return mn
}

func TestSendAlert_MessageFormat(t *testing.T) {
	ch := &recordingChannel{name: "test", enabled: true}
	mn := newTestNotifier(LevelAll, ch)

	conditions := []models.AlertCondition{
		{Window: models.Window30, Average: 12.0, AbsDiff: 3.0, PctDiff: 25.0},
		{Window: models.Window7, Average: 10.142857, AbsDiff: 0.642857, PctDiff: 6.34},
	}
	at := time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC)

	require.NoError(t, mn.SendAlert(context.Background(), "TSLA", 9.5, conditions, at))
	require.Len(t, ch.sent, 1)

	n := ch.sent[0]
	assert.Equal(t, NotificationAlert, n.Type)
	assert.Contains(t, n.Title, "TSLA")
	assert.Contains(t, n.Message, "Current Price: $9.50")
	assert.Contains(t, n.Message, "Below 30-day average $12.00")
	assert.Contains(t, n.Message, "Below 7-day average $10.14")
	assert.Contains(t, n.Message, "-6.34%")
	assert.Equal(t, at, n.Timestamp)
}

func TestSendAlert_NoConditionsNoMessage(t *testing.T) {
	ch := &recordingChannel{name: "test", enabled: true}
	mn := newTestNotifier(LevelAll, ch)

	require.NoError(t, mn.SendAlert(context.Background(), "TSLA", 9.5, nil, time.Now()))
	assert.Empty(t, ch.sent)
}

func TestLevelFilter(t *testing.T) {
	ch := &recordingChannel{name: "test", enabled: true}
	mn := newTestNotifier(LevelErrorsOnly, ch)

	require.NoError(t, mn.SendAlert(context.Background(), "TSLA", 9.5,
		[]models.AlertCondition{{Window: models.Window7, Average: 10, AbsDiff: 0.5, PctDiff: 5}}, time.Now()))
	require.NoError(t, mn.SendStartup(context.Background(), []string{"TSLA"}))
	assert.Empty(t, ch.sent)

	require.NoError(t, mn.SendError(context.Background(), assert.AnError, "cycle"))
	assert.Len(t, ch.sent, 1)
}

func TestSend_RetriesFailingChannel(t *testing.T) {
	ch := &recordingChannel{name: "flaky", enabled: true, failures: 2}
	mn := newTestNotifier(LevelAll, ch)

	err := mn.Send(context.Background(), Notification{Type: NotificationInfo, Title: "t", Message: "m"})
	require.NoError(t, err)
	assert.Len(t, ch.sent, 1)
}

func TestSend_ExhaustedRetriesCollectError(t *testing.T) {
	ch := &recordingChannel{name: "down", enabled: true, failures: 10}
	mn := newTestNotifier(LevelAll, ch)

	err := mn.Send(context.Background(), Notification{Type: NotificationInfo, Title: "t", Message: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
}

func TestWebhookNotifier(t *testing.T) {
	var received map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer srv.Close()

	wn := NewWebhookNotifier(config.WebhookConfig{Enabled: true, URL: srv.URL})
	require.True(t, wn.IsEnabled())

	err := wn.Send(context.Background(), Notification{
		Type:      NotificationAlert,
		Title:     "Price Alert: AAPL",
		Message:   "below average",
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, "alert", received["type"])
	assert.Equal(t, "Price Alert: AAPL", received["title"])
}

func TestWebhookNotifier_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	wn := NewWebhookNotifier(config.WebhookConfig{Enabled: true, URL: srv.URL})
	err := wn.Send(context.Background(), Notification{Type: NotificationInfo, Title: "t"})
	assert.Error(t, err)
}

func TestTelegramNotifier(t *testing.T) {
	var path string
	var payload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer srv.Close()

	tn := NewTelegramNotifier(config.TelegramConfig{Enabled: true},
		config.TelegramCredentials{BotToken: "123:abc", ChatID: "42"})
	tn.SetAPIBase(srv.URL)
	require.True(t, tn.IsEnabled())

	err := tn.Send(context.Background(), Notification{
		Type:    NotificationAlert,
		Title:   "Alert <b>",
		Message: "price & average",
	})
	require.NoError(t, err)
	assert.Equal(t, "/bot123:abc/sendMessage", path)
	assert.Equal(t, "42", payload["chat_id"])
	assert.Equal(t, "HTML", payload["parse_mode"])
	assert.Contains(t, payload["text"], "&lt;b&gt;")
	assert.Contains(t, payload["text"], "price &amp; average")
}

func TestTelegramNotifier_DisabledWithoutCredentials(t *testing.T) {
	tn := NewTelegramNotifier(config.TelegramConfig{Enabled: true}, config.TelegramCredentials{})
	assert.False(t, tn.IsEnabled())
	assert.NoError(t, tn.Send(context.Background(), Notification{Type: NotificationInfo}))
}
