package telegram

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/ticrm/tire-storage-api/models"
	tele "gopkg.in/telebot.v3"
)

const dateLayout = "02.01.2006"

// Callback actions carried in inline button data.
const (
	ActionSupport  = "support"
	ActionHelp     = "help"
	ActionMyOrders = "my_orders"
)

var statusLabels = map[string]string{
	models.OrderStatusActive:    "🟢 Активен",
	models.OrderStatusExpiring:  "🟡 Истекает",
	models.OrderStatusOverdue:   "🔴 Просрочен",
	models.OrderStatusCompleted: "✅ Завершён",
}

func StatusLabel(status string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return status
}

func FormatDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(dateLayout)
}

func WelcomeMessage(firstName string) string {
	return fmt.Sprintf("👋 Добро пожаловать, <b>%s</b>!\n\n"+
		"🚗 TiCRM - система учета хранения шин\n\n"+
		"/menu - Главное меню\n/help - Помощь", html.EscapeString(firstName))
}

const (
	MenuMessage    = "📋 Главное меню:"
	HelpMessage    = "ℹ️ Справка:\n\n🚗 Мои шины - просмотр шин на хранении\n📦 Мои заказы - активные заказы\n📞 Поддержка - связь с оператором"
	NoOrdersText   = "📭 У вас нет активных заказов."
	ErrorReplyText = "Произошла ошибка. Попробуйте позже."
)

func SupportMessage(phone, email string) string {
	return fmt.Sprintf("📞 Служба поддержки:\nТелефон: %s\nEmail: %s", html.EscapeString(phone), html.EscapeString(email))
}

// OrderCreatedMessage is sent to a client once their order is stored.
func OrderCreatedMessage(orderNumber string, endDate time.Time, loc *time.Location) string {
	return fmt.Sprintf("✅ <b>Заказ создан!</b>\n\n"+
		"Номер заказа: <code>%s</code>\n"+
		"Окончание хранения: <b>%s</b>\n\n"+
		"Мы напомним вам за 30 дней до окончания срока.", html.EscapeString(orderNumber), FormatDate(endDate, loc))
}

func StorageExpiringMessage(orderNumber string, daysLeft int) string {
	return fmt.Sprintf("⚠️ <b>Напоминание о хранении</b>\n\n"+
		"Номер заказа: <code>%s</code>\n"+
		"Осталось: <b>%s</b>\n\n"+
		"Не забудьте продлить хранение или забрать шины.", html.EscapeString(orderNumber), PluralizeDays(daysLeft))
}

// StorageOverdueMessage replaces the reminder once the storage period has ended.
func StorageOverdueMessage(orderNumber string, daysOverdue int) string {
	return fmt.Sprintf("🔴 <b>Срок хранения истёк</b>\n\n"+
		"Номер заказа: <code>%s</code>\n"+
		"Просрочено: <b>%s</b>\n\n"+
		"Свяжитесь с нами, чтобы продлить хранение или забрать шины.", html.EscapeString(orderNumber), PluralizeDays(daysOverdue))
}

func OrderCompletedMessage(orderNumber string) string {
	return fmt.Sprintf("🏁 <b>Заказ завершён</b>\n\n"+
		"Номер заказа: <code>%s</code>\n\n"+
		"Спасибо, что выбрали нас!", html.EscapeString(orderNumber))
}

// MyOrdersMessage lists a client's open orders with their derived status.
func MyOrdersMessage(orders []models.Order, loc *time.Location) string {
	if len(orders) == 0 {
		return NoOrdersText
	}
	var sb strings.Builder
	sb.WriteString("📦 <b>Ваши заказы:</b>\n")
	for _, o := range orders {
		fmt.Fprintf(&sb, "\n<code>%s</code> %s\nХранение до: <b>%s</b>, %s-%s\n",
			html.EscapeString(o.OrderNumber), StatusLabel(o.Status), FormatDate(o.EndDate, loc),
			html.EscapeString(o.Warehouse), html.EscapeString(o.Cell))
	}
	return sb.String()
}

// PluralizeDays renders "1 день", "2 дня", "5 дней".
func PluralizeDays(n int) string {
	abs := n
	if abs < 0 {
		abs = -abs
	}
	mod10, mod100 := abs%10, abs%100
	word := "дней"
	switch {
	case mod10 == 1 && mod100 != 11:
		word = "день"
	case mod10 >= 2 && mod10 <= 4 && (mod100 < 10 || mod100 >= 20):
		word = "дня"
	}
	return fmt.Sprintf("%d %s", n, word)
}

func miniAppURL(appURL string) string {
	return strings.TrimRight(appURL, "/") + "/miniapp"
}

// StartKeyboard holds a single mini-app deep link.
func StartKeyboard(appURL string) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	menu.Inline(menu.Row(menu.WebApp("🚗 Мои шины", &tele.WebApp{URL: miniAppURL(appURL)})))
	return menu
}

// MainMenuKeyboard combines the mini-app link with the callback actions.
func MainMenuKeyboard(appURL string) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	menu.Inline(
		menu.Row(menu.WebApp("🚗 Мои шины", &tele.WebApp{URL: miniAppURL(appURL)})),
		menu.Row(tele.Btn{Text: "📦 Мои заказы", Data: ActionMyOrders}),
		menu.Row(tele.Btn{Text: "📞 Поддержка", Data: ActionSupport}, tele.Btn{Text: "ℹ️ Помощь", Data: ActionHelp}),
	)
	return menu
}
