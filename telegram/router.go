package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ticrm/tire-storage-api/logger"
	"github.com/ticrm/tire-storage-api/models"
	tele "gopkg.in/telebot.v3"
)

const handlerTimeout = 15 * time.Second

// UserStore resolves the platform sender to a user record.
type UserStore interface {
	UpsertTelegramUser(ctx context.Context, p UserProfile) (*models.User, error)
}

// OrderStore lists a chat user's open orders.
type OrderStore interface {
	ListOpenByTelegramID(ctx context.Context, telegramID int64) ([]models.Order, error)
}

type RouterOptions struct {
	AppURL       string
	SupportPhone string
	SupportEmail string
	Location     *time.Location
}

// Router maps bot commands and callback actions to handlers.
type Router struct {
	bot     *Bot
	users   UserStore
	orders  OrderStore
	opts    RouterOptions
	log     logger.ILogger
	actions map[string]tele.HandlerFunc
}

func NewRouter(bot *Bot, users UserStore, orders OrderStore, opts RouterOptions, log logger.ILogger) *Router {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	r := &Router{bot: bot, users: users, orders: orders, opts: opts, log: log}
	r.actions = map[string]tele.HandlerFunc{
		ActionSupport:  r.onSupport,
		ActionHelp:     r.onHelp,
		ActionMyOrders: r.onMyOrders,
	}

	bot.Handle("/start", r.onStart)
	bot.Handle("/menu", r.onMenu)
	bot.Handle("/help", r.onHelp)
	bot.Handle(tele.OnCallback, r.onCallback)
	return r
}

// Dispatch runs the handlers for one update and returns once they finished.
// A panicking handler is reported as an error.
func (r *Router) Dispatch(u tele.Update) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("telegram: handler panic on update %d: %v", u.ID, rec)
		}
	}()
	r.bot.ProcessUpdate(u)
	return nil
}

func senderProfile(u *tele.User) UserProfile {
	return UserProfile{ID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName}
}

func (r *Router) onStart(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if _, err := r.users.UpsertTelegramUser(ctx, senderProfile(sender)); err != nil {
		r.log.Error("failed to register bot user", logger.Int64("telegram_id", sender.ID), logger.Error(err))
		return c.Send(ErrorReplyText)
	}
	return c.Send(WelcomeMessage(sender.FirstName), StartKeyboard(r.opts.AppURL))
}

func (r *Router) onMenu(c tele.Context) error {
	return c.Send(MenuMessage, MainMenuKeyboard(r.opts.AppURL))
}

func (r *Router) onHelp(c tele.Context) error {
	return c.Send(HelpMessage)
}

func (r *Router) onSupport(c tele.Context) error {
	return c.Send(SupportMessage(r.opts.SupportPhone, r.opts.SupportEmail))
}

func (r *Router) onMyOrders(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	orders, err := r.orders.ListOpenByTelegramID(ctx, sender.ID)
	if err != nil {
		r.log.Error("failed to list orders for bot user", logger.Int64("telegram_id", sender.ID), logger.Error(err))
		return c.Send(ErrorReplyText)
	}
	return c.Send(MyOrdersMessage(orders, r.opts.Location))
}

// onCallback acknowledges the query first, then runs the named action.
// Unknown actions are ignored.
func (r *Router) onCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil {
		return nil
	}
	if err := c.Respond(); err != nil {
		r.log.Warning("failed to answer callback query", logger.String("callback_id", cb.ID), logger.Error(err))
	}

	action := callbackAction(cb.Data)
	handler, ok := r.actions[action]
	if !ok {
		r.log.Debug("ignoring unknown callback action", logger.String("action", action))
		return nil
	}
	return handler(c)
}

// callbackAction strips the unique-button marker and any payload.
func callbackAction(data string) string {
	data = strings.TrimPrefix(data, "\f")
	if i := strings.IndexByte(data, '|'); i >= 0 {
		data = data[:i]
	}
	return strings.TrimSpace(data)
}
