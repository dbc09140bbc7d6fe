// Package telegram adapts the Telegram Bot API to the bot's transport
// interfaces. Long polling is used; no webhook endpoint is needed.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/homepanel/homepanel/pkg/types"
	"go.uber.org/zap"
)

const (
	// pollTimeout is the long polling timeout in seconds
	pollTimeout = 60
	// maxMessageRunes is the Bot API limit for message text
	maxMessageRunes = 4096
)

// botAPI is the subset of tgbotapi.BotAPI the client uses
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Client sends and receives chat messages
type Client struct {
	api    botAPI
	logger *zap.Logger
}

// New connects to the Bot API with token
func New(token string, logger *zap.Logger) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Telegram: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("Authorized on Telegram", zap.String("bot", api.Self.UserName))
	return newClient(api, logger), nil
}

func newClient(api botAPI, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{api: api, logger: logger.Named("telegram")}
}

// Updates starts long polling. The returned channel closes when ctx is
// cancelled.
func (c *Client) Updates(ctx context.Context) (<-chan types.InboundEvent, error) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	u.AllowedUpdates = []string{"message", "callback_query"}
	updates := c.api.GetUpdatesChan(u)

	out := make(chan types.InboundEvent)
	go func() {
		defer close(out)
		defer c.api.StopReceivingUpdates()
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				ev, ok := ToEvent(update)
				if !ok {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Send delivers a reply. Edits that would not change the message are not
// errors.
func (c *Client) Send(ctx context.Context, reply types.Reply) error {
	if reply.AnswerCallbackID != "" {
		if _, err := c.api.Request(tgbotapi.NewCallback(reply.AnswerCallbackID, "")); err != nil {
			c.logger.Debug("callback answer failed", zap.Error(err))
		}
	}
	if reply.Text == "" {
		return nil
	}

	msg := Chattable(reply)
	var err error
	if reply.EditMessageID != 0 {
		_, err = c.api.Request(msg)
		if isNotModified(err) {
			return nil
		}
	} else {
		_, err = c.api.Send(msg)
	}
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// SetCommands registers the command menu
func (c *Client) SetCommands(ctx context.Context, cmds []types.BotCommand) error {
	list := make([]tgbotapi.BotCommand, 0, len(cmds))
	for _, cmd := range cmds {
		list = append(list, tgbotapi.BotCommand{Command: cmd.Command, Description: cmd.Description})
	}
	if _, err := c.api.Request(tgbotapi.NewSetMyCommands(list...)); err != nil {
		return fmt.Errorf("set commands: %w", err)
	}
	return nil
}

// ToEvent converts an update. Updates without a sender, such as channel
// posts, are skipped.
func ToEvent(update tgbotapi.Update) (types.InboundEvent, bool) {
	switch {
	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		if q.From == nil || q.Message == nil || q.Message.Chat == nil {
			return types.InboundEvent{}, false
		}
		return types.InboundEvent{
			ID:         int64(update.UpdateID),
			SenderID:   q.From.ID,
			ChatID:     q.Message.Chat.ID,
			MessageID:  q.Message.MessageID,
			Callback:   q.Data,
			CallbackID: q.ID,
		}, true

	case update.Message != nil:
		m := update.Message
		if m.From == nil || m.Chat == nil {
			return types.InboundEvent{}, false
		}
		ev := types.InboundEvent{
			ID:       int64(update.UpdateID),
			SenderID: m.From.ID,
			ChatID:   m.Chat.ID,
		}
		if m.IsCommand() {
			ev.Command = m.Command()
			ev.Args = m.CommandArguments()
		} else {
			word, rest, _ := strings.Cut(strings.TrimSpace(m.Text), " ")
			ev.Command = word
			ev.Args = strings.TrimSpace(rest)
		}
		return ev, true
	}
	return types.InboundEvent{}, false
}

// Chattable builds the Bot API request for a reply
func Chattable(reply types.Reply) tgbotapi.Chattable {
	text := truncate(reply.Text, maxMessageRunes)

	if reply.EditMessageID != 0 {
		edit := tgbotapi.NewEditMessageText(reply.ChatID, reply.EditMessageID, text)
		edit.ParseMode = tgbotapi.ModeHTML
		edit.DisableWebPagePreview = true
		if len(reply.Buttons) > 0 {
			markup := Keyboard(reply.Buttons)
			edit.ReplyMarkup = &markup
		}
		return edit
	}

	msg := tgbotapi.NewMessage(reply.ChatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if len(reply.Buttons) > 0 {
		msg.ReplyMarkup = Keyboard(reply.Buttons)
	}
	return msg
}

// Keyboard builds an inline keyboard. Buttons with a URL open a link.
func Keyboard(rows [][]types.Button) tgbotapi.InlineKeyboardMarkup {
	keyboard := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			} else {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
		}
		keyboard = append(keyboard, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

// truncate cuts HTML text to at most n runes. It never splits a tag or an
// entity and closes the tags left open after the cut.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	const ellipsis = "…"
	var (
		open    []string // names of open tags, innermost last
		closers int      // runes needed to close them
		count   int
		cut     int
	)
	for cut < len(s) {
		token, name, closing := nextToken(s[cut:])
		tokenRunes := utf8.RuneCountInString(token)

		stack, stackRunes := open, closers
		switch {
		case name == "":
		case closing:
			stack, stackRunes = popTag(open, name)
		default:
			stack = append(append([]string(nil), open...), name)
			stackRunes += len(name) + 3
		}

		if count+tokenRunes+1+stackRunes > n {
			break
		}
		count += tokenRunes
		cut += len(token)
		open, closers = stack, stackRunes
	}

	var b strings.Builder
	b.WriteString(s[:cut])
	b.WriteString(ellipsis)
	for i := len(open) - 1; i >= 0; i-- {
		b.WriteString("</" + open[i] + ">")
	}
	return b.String()
}

// nextToken returns the leading tag, entity or rune of s. For tags it also
// returns the lowercased tag name and whether it is a closing tag;
// self-closing tags report no name.
func nextToken(s string) (token, name string, closing bool) {
	switch s[0] {
	case '<':
		if end := strings.IndexByte(s, '>'); end > 0 {
			token = s[:end+1]
			inner := strings.TrimSpace(token[1:end])
			if strings.HasSuffix(inner, "/") {
				return token, "", false
			}
			closing = strings.HasPrefix(inner, "/")
			fields := strings.Fields(strings.TrimPrefix(inner, "/"))
			if len(fields) > 0 {
				name = strings.ToLower(fields[0])
			}
			return token, name, closing
		}
	case '&':
		if end := strings.IndexByte(s, ';'); end > 1 && end <= 10 && isEntityName(s[1:end]) {
			return s[:end+1], "", false
		}
	}
	_, size := utf8.DecodeRuneInString(s)
	return s[:size], "", false
}

func isEntityName(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c == '#' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}

// popTag closes the innermost open tag called name, and any opened inside
// it. A stray closing tag leaves the stack as it is.
func popTag(open []string, name string) ([]string, int) {
	for i := len(open) - 1; i >= 0; i-- {
		if open[i] == name {
			stack := open[:i:i]
			runes := 0
			for _, t := range stack {
				runes += len(t) + 3
			}
			return stack, runes
		}
	}
	runes := 0
	for _, t := range open {
		runes += len(t) + 3
	}
	return open, runes
}
