package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ticrm/tire-storage-api/logger"
	tele "gopkg.in/telebot.v3"
)

// Options configures the Bot API client.
type Options struct {
	Token       string
	Username    string
	APIURL      string
	SendTimeout time.Duration
}

// Bot wraps a telebot client configured for webhook delivery. Updates are
// processed synchronously by the caller through ProcessUpdate.
type Bot struct {
	tb          *tele.Bot
	log         logger.ILogger
	sendTimeout time.Duration
}

// NewBot builds an offline client: no getMe call at startup, no poller.
func NewBot(opts Options, log logger.ILogger) (*Bot, error) {
	if opts.Token == "" {
		return nil, errors.New("telegram: bot token is required")
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}

	b := &Bot{log: log, sendTimeout: opts.SendTimeout}

	tb, err := tele.NewBot(tele.Settings{
		URL:         opts.APIURL,
		Token:       opts.Token,
		Offline:     true,
		Synchronous: true,
		ParseMode:   tele.ModeHTML,
		Client:      &http.Client{Timeout: opts.SendTimeout},
		OnError:     b.onError,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	tb.Me = &tele.User{Username: opts.Username, IsBot: true}

	b.tb = tb
	return b, nil
}

func (b *Bot) onError(err error, c tele.Context) {
	fields := []logger.Field{logger.Error(err)}
	if c != nil && c.Update().ID != 0 {
		fields = append(fields, logger.Int("update_id", c.Update().ID))
	}
	b.log.Error("telegram handler failed", fields...)
}

// Handle registers a handler on the underlying client.
func (b *Bot) Handle(endpoint interface{}, h tele.HandlerFunc) {
	b.tb.Handle(endpoint, h)
}

// ProcessUpdate dispatches one update to the registered handlers and
// returns once they finished.
func (b *Bot) ProcessUpdate(u tele.Update) {
	b.tb.ProcessUpdate(u)
}

// SendMessage delivers an HTML message to a chat, bounded by ctx.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		_, err := b.tb.Send(tele.ChatID(chatID), text)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram: send to %d: %w", chatID, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("telegram: send to %d: %w", chatID, ctx.Err())
	}
}

// SetWebhook registers publicURL with the platform, protected by secret.
func (b *Bot) SetWebhook(publicURL, secret string) error {
	if publicURL == "" {
		return errors.New("telegram: webhook url is required")
	}
	err := b.tb.SetWebhook(&tele.Webhook{
		Endpoint:       &tele.WebhookEndpoint{PublicURL: publicURL},
		SecretToken:    secret,
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		return fmt.Errorf("telegram: set webhook: %w", err)
	}
	b.log.Info("telegram webhook registered", logger.String("url", publicURL))
	return nil
}
