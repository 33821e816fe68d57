package command

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockwatch/internal/config"
	"stockwatch/internal/models"
	"stockwatch/internal/store"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in     string
		action Action
		symbol string
	}{
		{"/add AAPL", ActionAdd, "AAPL"},
		{"add aapl", ActionAdd, "AAPL"},
		{"/add@stockwatch_bot brk-b", ActionAdd, "BRK-B"},
		{"/remove TSLA", ActionRemove, "TSLA"},
		{"  /list  ", ActionList, ""},
		{"/status", ActionStatus, ""},
		{"/help", ActionHelp, ""},
		{"/start", ActionHelp, ""},
	}
	for _, tc := range cases {
		cmd, err := Parse(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.action, cmd.Action, "input %q", tc.in)
		assert.Equal(t, tc.symbol, cmd.Symbol, "input %q", tc.in)
	}
}

func TestParse_Rejections(t *testing.T) {
	for _, in := range []string{"", "   ", "/add", "/remove", "/add not a symbol!", "/add " + strings.Repeat("A", 13), "/frobnicate"} {
		_, err := Parse(in)
		assert.Error(t, err, "input %q", in)
	}
}

func newTestHandler(t *testing.T) (*Handler, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "command.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewHandler(st, zerolog.Nop()), st
}

func TestHandler_AddRemoveList(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()

	reply, err := h.Handle(ctx, Command{Action: ActionList})
	require.NoError(t, err)
	assert.Contains(t, reply, "empty")

	reply, err = h.Handle(ctx, Command{Action: ActionAdd, Symbol: "AAPL"})
	require.NoError(t, err)
	assert.Contains(t, reply, "Added AAPL")

	reply, err = h.Handle(ctx, Command{Action: ActionAdd, Symbol: "AAPL"})
	require.NoError(t, err)
	assert.Contains(t, reply, "already on the watchlist")

	reply, err = h.Handle(ctx, Command{Action: ActionList})
	require.NoError(t, err)
	assert.Contains(t, reply, "AAPL")

	reply, err = h.Handle(ctx, Command{Action: ActionRemove, Symbol: "AAPL"})
	require.NoError(t, err)
	assert.Contains(t, reply, "Removed AAPL")

	reply, err = h.Handle(ctx, Command{Action: ActionRemove, Symbol: "AAPL"})
	require.NoError(t, err)
	assert.Contains(t, reply, "not on the watchlist")
}

func TestHandler_Status(t *testing.T) {
	h, st := newTestHandler(t)
	ctx := context.Background()

	_, err := h.Handle(ctx, Command{Action: ActionAdd, Symbol: "AAPL"})
	require.NoError(t, err)
	_, err = h.Handle(ctx, Command{Action: ActionAdd, Symbol: "TSLA"})
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, st.UpsertQuote(ctx, &models.Quote{
		Symbol: "AAPL", Price: 182.5, PrevClose: 180,
		MarketState: models.MarketStateRegular, ObservedAt: now, FetchedAt: now,
	}))

	reply, err := h.Handle(ctx, Command{Action: ActionStatus})
	require.NoError(t, err)
	assert.Contains(t, reply, "AAPL: $182.50")
	assert.Contains(t, reply, "TSLA: no quote yet")
}

func TestListener_DispatchesAndReplies(t *testing.T) {
	h, st := newTestHandler(t)

	var mu sync.Mutex
	var replies []string
	served := false

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			mu.Lock()
			first := !served
			served = true
			mu.Unlock()
			if first {
				fmt.Fprint(w, `{"ok":true,"result":[
					{"update_id":10,"message":{"chat":{"id":42},"text":"/add AAPL"}},
					{"update_id":11,"message":{"chat":{"id":99},"text":"/add EVIL"}},
					{"update_id":12,"message":{"chat":{"id":42},"text":"/bogus"}}
				]}`)
				return
			}
			// Later polls must carry the advanced offset.
			assert.Equal(t, "13", r.URL.Query().Get("offset"))
			fmt.Fprint(w, `{"ok":true,"result":[]}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var payload struct {
				ChatID string `json:"chat_id"`
				Text   string `json:"text"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "42", payload.ChatID)
			mu.Lock()
			replies = append(replies, payload.Text)
			mu.Unlock()
			fmt.Fprint(w, `{"ok":true}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	l := NewListener(
		config.TelegramCredentials{BotToken: "123:abc", ChatID: "42"},
		config.CommandConfig{Enabled: true, PollTimeoutSeconds: 1},
		zerolog.Nop(),
	)
	l.SetAPIBase(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		_ = l.Run(ctx)
	}()
	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		h.Serve(ctx, l.Commands(), l.Reply)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(replies) >= 2
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	<-pollDone
	<-serveDone

	// The valid command is executed by the consumer, the malformed one is
	// answered by the listener; arrival order between the two is not fixed.
	mu.Lock()
	joined := strings.Join(replies, "\n")
	mu.Unlock()
	assert.Contains(t, joined, "Added AAPL")
	assert.Contains(t, joined, "unknown command")

	// Only the authorized chat's add took effect.
	symbols, err := st.ActiveSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, symbols)
}

func TestListener_DeliversParsedCommandsOnChannel(t *testing.T) {
	served := false
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/getUpdates"))
		mu.Lock()
		first := !served
		served = true
		mu.Unlock()
		if first {
			fmt.Fprint(w, `{"ok":true,"result":[{"update_id":7,"message":{"chat":{"id":42},"text":"/add aapl"}}]}`)
			return
		}
		fmt.Fprint(w, `{"ok":true,"result":[]}`)
	}))
	defer srv.Close()

	l := NewListener(
		config.TelegramCredentials{BotToken: "123:abc", ChatID: "42"},
		config.CommandConfig{Enabled: true, PollTimeoutSeconds: 1},
		zerolog.Nop(),
	)
	l.SetAPIBase(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()

	select {
	case cmd := <-l.Commands():
		assert.Equal(t, ActionAdd, cmd.Action)
		assert.Equal(t, "AAPL", cmd.Symbol)
		assert.Equal(t, "42", cmd.ChatID)
	case <-time.After(3 * time.Second):
		t.Fatal("no command delivered on the channel")
	}

	cancel()
	<-done

	// Run closed the channel on shutdown.
	_, open := <-l.Commands()
	assert.False(t, open)
}

func TestHandlerServe_RepliesAndStopsOnClose(t *testing.T) {
	h, st := newTestHandler(t)

	var mu sync.Mutex
	var replies []string
	reply := func(_ context.Context, chatID, text string) {
		mu.Lock()
		defer mu.Unlock()
		replies = append(replies, chatID+": "+text)
	}

	commands := make(chan Command, 2)
	commands <- Command{Action: ActionAdd, Symbol: "TSLA", ChatID: "42"}
	commands <- Command{Action: ActionList, ChatID: "42"}
	close(commands)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Serve(context.Background(), commands, reply)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not stop after the channel closed")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, replies, 2)
	assert.Contains(t, replies[0], "42: Added TSLA")
	assert.Contains(t, replies[1], "TSLA")

	symbols, err := st.ActiveSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"TSLA"}, symbols)
}
