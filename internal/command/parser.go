// Package command listens for watchlist commands on the Telegram bot and
// executes them against the store.
package command

import (
	"fmt"
	"strings"
)

// Action is a supported bot command.
type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
	ActionList   Action = "list"
	ActionStatus Action = "status"
	ActionHelp   Action = "help"
)

// Command is one parsed bot command.
type Command struct {
	Action Action
	Symbol string
	ChatID string
}

// Parse parses a message text into a command. The leading slash and a
// "@botname" suffix on the action are both optional.
func Parse(text string) (Command, error) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}

	action := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if i := strings.IndexByte(action, '@'); i >= 0 {
		action = action[:i]
	}

	switch Action(action) {
	case ActionAdd, ActionRemove:
		if len(fields) < 2 {
			return Command{}, fmt.Errorf("%s requires a symbol", action)
		}
		symbol := strings.ToUpper(fields[1])
		if !validSymbol(symbol) {
			return Command{}, fmt.Errorf("invalid symbol %q", fields[1])
		}
		return Command{Action: Action(action), Symbol: symbol}, nil
	case ActionList, ActionStatus, ActionHelp:
		return Command{Action: Action(action)}, nil
	case "start":
		// Telegram sends /start when a chat begins.
		return Command{Action: ActionHelp}, nil
	default:
		return Command{}, fmt.Errorf("unknown command %q", fields[0])
	}
}

// validSymbol accepts ticker symbols like AAPL, BRK-B or ^GSPC.
func validSymbol(s string) bool {
	if len(s) == 0 || len(s) > 12 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '-' || c == '^' || c == '=':
		default:
			return false
		}
	}
	return true
}
