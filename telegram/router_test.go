package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ticrm/tire-storage-api/logger"
	"github.com/ticrm/tire-storage-api/models"
	"github.com/ticrm/tire-storage-api/tests/testutil"
	tele "gopkg.in/telebot.v3"
)

const testToken = "123456:TEST-TOKEN"

type stubUsers struct {
	mu       sync.Mutex
	profiles []UserProfile
	err      error
	panics   bool
}

func (s *stubUsers) UpsertTelegramUser(ctx context.Context, p UserProfile) (*models.User, error) {
	if s.panics {
		panic("boom")
	}
	s.mu.Lock()
	s.profiles = append(s.profiles, p)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	id := p.ID
	return &models.User{TelegramID: &id, Role: models.RoleClient}, nil
}

type stubOrders struct {
	orders []models.Order
	err    error
	asked  []int64
}

func (s *stubOrders) ListOpenByTelegramID(ctx context.Context, telegramID int64) ([]models.Order, error) {
	s.asked = append(s.asked, telegramID)
	return s.orders, s.err
}

type routerFixture struct {
	api    *testutil.FakeTelegram
	users  *stubUsers
	orders *stubOrders
	router *Router
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	api := testutil.NewFakeTelegram(t, testToken)
	bot, err := NewBot(Options{Token: testToken, Username: "ticrm_bot", APIURL: api.URL(), SendTimeout: 2 * time.Second}, logger.Nop())
	require.NoError(t, err)

	f := &routerFixture{api: api, users: &stubUsers{}, orders: &stubOrders{}}
	f.router = NewRouter(bot, f.users, f.orders, RouterOptions{
		AppURL:       "https://app.example.com/",
		SupportPhone: "+7 (495) 000-00-00",
		SupportEmail: "help@example.com",
		Location:     time.UTC,
	}, logger.Nop())
	return f
}

var sender = &tele.User{ID: 42, FirstName: "Иван", LastName: "Петров", Username: "ivan"}

func commandUpdate(text string) tele.Update {
	return tele.Update{
		ID: 1,
		Message: &tele.Message{
			ID:     10,
			Text:   text,
			Sender: sender,
			Chat:   &tele.Chat{ID: sender.ID, Type: tele.ChatPrivate},
		},
	}
}

func callbackUpdate(data string) tele.Update {
	return tele.Update{
		ID: 2,
		Callback: &tele.Callback{
			ID:     "cb-1",
			Sender: sender,
			Data:   data,
			Message: &tele.Message{
				ID:   11,
				Chat: &tele.Chat{ID: sender.ID, Type: tele.ChatPrivate},
			},
		},
	}
}

func methods(calls []testutil.TelegramCall) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Method
	}
	return out
}

func TestStartRegistersUserAndReplies(t *testing.T) {
	f := newRouterFixture(t)

	require.NoError(t, f.router.Dispatch(commandUpdate("/start")))

	require.Len(t, f.users.profiles, 1)
	assert.Equal(t, UserProfile{ID: 42, Username: "ivan", FirstName: "Иван", LastName: "Петров"}, f.users.profiles[0])

	sent := f.api.CallsTo("sendMessage")
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text(), "Иван")
	assert.Contains(t, sent[0].ReplyMarkup(), "https://app.example.com/miniapp")
	assert.Contains(t, sent[0].ReplyMarkup(), "web_app")
}

func TestStartReportsRegistrationFailure(t *testing.T) {
	f := newRouterFixture(t)
	f.users.err = errors.New("db down")

	require.NoError(t, f.router.Dispatch(commandUpdate("/start")))

	sent := f.api.CallsTo("sendMessage")
	require.Len(t, sent, 1)
	assert.Equal(t, ErrorReplyText, sent[0].Text())
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantText   string
		wantMarkup string
	}{
		{"menu", "/menu", MenuMessage, ActionMyOrders},
		{"help", "/help", HelpMessage, ""},
		{"addressed to this bot", "/help@ticrm_bot", HelpMessage, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture(t)
			require.NoError(t, f.router.Dispatch(commandUpdate(tt.text)))

			sent := f.api.CallsTo("sendMessage")
			require.Len(t, sent, 1)
			assert.Equal(t, tt.wantText, sent[0].Text())
			if tt.wantMarkup != "" {
				assert.Contains(t, sent[0].ReplyMarkup(), tt.wantMarkup)
			}
		})
	}
}

func TestUnknownInputIsIgnored(t *testing.T) {
	for _, text := range []string{"/unknown", "hello there", "/help@other_bot"} {
		t.Run(text, func(t *testing.T) {
			f := newRouterFixture(t)
			require.NoError(t, f.router.Dispatch(commandUpdate(text)))
			assert.Empty(t, f.api.Calls())
			assert.Empty(t, f.users.profiles)
		})
	}
}

func TestCallbackIsAnsweredBeforeAction(t *testing.T) {
	f := newRouterFixture(t)

	require.NoError(t, f.router.Dispatch(callbackUpdate(ActionSupport)))

	assert.Equal(t, []string{"answerCallbackQuery", "sendMessage"}, methods(f.api.Calls()))
	text := f.api.CallsTo("sendMessage")[0].Text()
	assert.Contains(t, text, "+7 (495) 000-00-00")
	assert.Contains(t, text, "help@example.com")
}

func TestCallbackHelp(t *testing.T) {
	f := newRouterFixture(t)

	require.NoError(t, f.router.Dispatch(callbackUpdate("\f"+ActionHelp+"|payload")))

	assert.Equal(t, []string{"answerCallbackQuery", "sendMessage"}, methods(f.api.Calls()))
	assert.Equal(t, HelpMessage, f.api.CallsTo("sendMessage")[0].Text())
}

func TestUnknownCallbackIsOnlyAnswered(t *testing.T) {
	f := newRouterFixture(t)

	require.NoError(t, f.router.Dispatch(callbackUpdate("delete_everything")))

	assert.Equal(t, []string{"answerCallbackQuery"}, methods(f.api.Calls()))
}

func TestCallbackStillRunsWhenAnswerFails(t *testing.T) {
	f := newRouterFixture(t)
	f.api.FailMethod("answerCallbackQuery")

	require.NoError(t, f.router.Dispatch(callbackUpdate(ActionHelp)))

	assert.Equal(t, []string{"answerCallbackQuery", "sendMessage"}, methods(f.api.Calls()))
}

func TestMyOrdersCallback(t *testing.T) {
	f := newRouterFixture(t)
	f.orders.orders = []models.Order{{
		OrderNumber: "250310-090000",
		Status:      models.OrderStatusExpiring,
		EndDate:     time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC),
		Warehouse:   "Склад 1",
		Cell:        "A-1",
	}}

	require.NoError(t, f.router.Dispatch(callbackUpdate(ActionMyOrders)))

	assert.Equal(t, []int64{42}, f.orders.asked)
	text := f.api.CallsTo("sendMessage")[0].Text()
	assert.Contains(t, text, "250310-090000")
	assert.Contains(t, text, "01.04.2025")
	assert.Contains(t, text, StatusLabel(models.OrderStatusExpiring))
}

func TestMyOrdersCallbackWithoutOrders(t *testing.T) {
	f := newRouterFixture(t)

	require.NoError(t, f.router.Dispatch(callbackUpdate(ActionMyOrders)))
	assert.Equal(t, NoOrdersText, f.api.CallsTo("sendMessage")[0].Text())

	f.api.Reset()
	f.orders.err = errors.New("db down")
	require.NoError(t, f.router.Dispatch(callbackUpdate(ActionMyOrders)))
	assert.Equal(t, ErrorReplyText, f.api.CallsTo("sendMessage")[0].Text())
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	f := newRouterFixture(t)
	f.users.panics = true

	err := f.router.Dispatch(commandUpdate("/start"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "panic"))
}

func TestCallbackAction(t *testing.T) {
	assert.Equal(t, "support", callbackAction("support"))
	assert.Equal(t, "support", callbackAction("\fsupport"))
	assert.Equal(t, "my_orders", callbackAction("\fmy_orders|42"))
	assert.Equal(t, "", callbackAction(""))
}
