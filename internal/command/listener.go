package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"stockwatch/internal/config"
)

// Listener long-polls the Telegram getUpdates API and delivers parsed
// watchlist commands from the configured chat over the Commands channel.
// Messages from any other chat are ignored, and malformed input is answered
// directly with usage help; only valid commands reach the channel.
type Listener struct {
	apiBase     string
	botToken    string
	chatID      string
	pollTimeout time.Duration
	client      *http.Client
	logger      zerolog.Logger

	offset   int64
	commands chan Command
}

// NewListener creates a Telegram command listener.
func NewListener(creds config.TelegramCredentials, cfg config.CommandConfig, logger zerolog.Logger) *Listener {
	pollTimeout := time.Duration(cfg.PollTimeoutSeconds) * time.Second
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	return &Listener{
		apiBase:     "https://api.telegram.org",
		botToken:    creds.BotToken,
		chatID:      creds.ChatID,
		pollTimeout: pollTimeout,
		client: &http.Client{
			// Must outlive the server-side long-poll window.
			Timeout: pollTimeout + 10*time.Second,
		},
		logger:   logger.With().Str("component", "command").Logger(),
		commands: make(chan Command, 16),
	}
}

// SetAPIBase overrides the Telegram API base URL, used in tests.
func (l *Listener) SetAPIBase(base string) {
	l.apiBase = base
}

// Commands returns the channel parsed commands are delivered on. It is
// closed when Run returns.
func (l *Listener) Commands() <-chan Command {
	return l.commands
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

type updatesResponse struct {
	OK     bool     `json:"ok"`
	Result []update `json:"result"`
}

// Run polls for commands until ctx is cancelled, then closes the command
// channel. Poll failures are logged and retried after a short pause; they
// never stop the listener.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info().Msg("Telegram command listener started")
	defer close(l.commands)

	for {
		if err := ctx.Err(); err != nil {
			l.logger.Info().Msg("Telegram command listener stopped")
			return err
		}

		updates, err := l.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			l.logger.Warn().Err(err).Msg("Polling for commands failed")
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
			}
			continue
		}

		for _, u := range updates {
			l.offset = u.UpdateID + 1
			l.deliver(ctx, u)
		}
	}
}

func (l *Listener) poll(ctx context.Context) ([]update, error) {
	params := url.Values{
		"timeout":         {strconv.Itoa(int(l.pollTimeout / time.Second))},
		"allowed_updates": {`["message"]`},
	}
	if l.offset > 0 {
		params.Set("offset", strconv.FormatInt(l.offset, 10))
	}
	reqURL := fmt.Sprintf("%s/bot%s/getUpdates?%s", l.apiBase, l.botToken, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating getUpdates request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polling getUpdates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("getUpdates returned status %d", resp.StatusCode)
	}

	var parsed updatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding getUpdates response: %w", err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("getUpdates reported not ok")
	}
	return parsed.Result, nil
}

// deliver authorizes and parses one update, then hands the command to the
// channel. Execution happens in the consumer, never in the polling loop.
func (l *Listener) deliver(ctx context.Context, u update) {
	if u.Message == nil || u.Message.Text == "" {
		return
	}

	chatID := strconv.FormatInt(u.Message.Chat.ID, 10)
	if l.chatID != "" && chatID != l.chatID {
		l.logger.Warn().Str("chat_id", chatID).Msg("Ignoring command from unknown chat")
		return
	}

	cmd, err := Parse(u.Message.Text)
	if err != nil {
		l.Reply(ctx, chatID, fmt.Sprintf("%v\n\n%s", err, helpText))
		return
	}
	cmd.ChatID = chatID

	select {
	case l.commands <- cmd:
	case <-ctx.Done():
	}
}

// Reply sends a message back to the given chat.
func (l *Listener) Reply(ctx context.Context, chatID, text string) {
	payload, err := json.Marshal(map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return
	}

	reqURL := fmt.Sprintf("%s/bot%s/sendMessage", l.apiBase, l.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		l.logger.Warn().Err(err).Msg("Sending command reply failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		l.logger.Warn().Int("status", resp.StatusCode).Msg("Command reply rejected")
	}
}
