package notify

import (
	"fmt"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/skyden/vps-platform/provisioning-service/internal/config"
	"github.com/skyden/vps-platform/provisioning-service/internal/models"
)

// Notifier delivers Telegram messages to customers and to the operator
// channel. Every send is best-effort: a blocked bot or a deleted chat
// must never fail the workflow that triggered the message, so errors
// are logged at warning level and swallowed.
type Notifier struct {
	bot            *tgbotapi.BotAPI
	operatorChatID int64
	operatorTopic  int
	supportContact string
}

func New(cfg config.TelegramConfig) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.Printf("[notify] Authorized as @%s", bot.Self.UserName)
	return &Notifier{
		bot:            bot,
		operatorChatID: cfg.OperatorChatID,
		operatorTopic:  cfg.OperatorTopic,
		supportContact: cfg.SupportContact,
	}, nil
}

func (n *Notifier) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := n.bot.Send(msg); err != nil {
		log.Printf("[notify] Send to %d failed: %v", chatID, err)
	}
}

// NotifyOperator posts to the staff channel. When a forum topic id is
// configured the message replies to the topic's root message, which
// routes it into that topic.
func (n *Notifier) NotifyOperator(text string) {
	if n.operatorChatID == 0 {
		return
	}
	msg := tgbotapi.NewMessage(n.operatorChatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if n.operatorTopic != 0 {
		msg.ReplyToMessageID = n.operatorTopic
	}
	if _, err := n.bot.Send(msg); err != nil {
		log.Printf("[notify] Operator message failed: %v", err)
	}
}

// ServerReady hands the customer their credentials after provisioning.
func (n *Notifier) ServerReady(ownerID int64, vps *models.Vps) {
	text := fmt.Sprintf(
		"✅ <b>Ваш сервер готов!</b>\n\n"+
			"IP: <code>%s</code>\n"+
			"Логин: <code>root</code>\n"+
			"Пароль: <code>%s</code>\n\n"+
			"Оплачен до: %s",
		vps.IP, vps.Credential, vps.ExpiresAt.Format("02.01.2006"))
	n.send(ownerID, text)
}

// ServerRenewed confirms a successful renewal with the new expiry.
func (n *Notifier) ServerRenewed(ownerID int64, vps *models.Vps) {
	text := fmt.Sprintf(
		"🔄 <b>Сервер %s продлён.</b>\n\nНовая дата окончания: %s",
		vps.IP, vps.ExpiresAt.Format("02.01.2006"))
	n.send(ownerID, text)
}

// ProvisionFailed apologizes to the customer without leaking internals.
// The opaque code lets support correlate the complaint with the audit
// trail.
func (n *Notifier) ProvisionFailed(ownerID int64, errorCode string) {
	text := fmt.Sprintf(
		"⚠️ <b>Не удалось выдать сервер.</b>\n\n"+
			"Оплата получена, но при создании сервера произошла ошибка. "+
			"Мы уже разбираемся.\n\n"+
			"Напишите в поддержку %s и укажите код: <code>%s</code>",
		n.supportContact, errorCode)
	n.send(ownerID, text)
}

// ExpiryReminder warns that a server expires in daysLeft days.
func (n *Notifier) ExpiryReminder(ownerID int64, vps *models.Vps, daysLeft int) {
	text := fmt.Sprintf(
		"⏰ Сервер <code>%s</code> будет отключён через %d дн. (%s).\n"+
			"Продлите его, чтобы не потерять данные.",
		vps.IP, daysLeft, vps.ExpiresAt.Format("02.01.2006"))
	n.send(ownerID, text)
}

// ServerExpired tells the customer their server has been removed.
func (n *Notifier) ServerExpired(ownerID int64, vps *models.Vps) {
	text := fmt.Sprintf(
		"❌ Сервер <code>%s</code> удалён: срок оплаты истёк %s.",
		vps.IP, vps.ExpiresAt.Format("02.01.2006"))
	n.send(ownerID, text)
}

// ReferralBonus notifies a referrer about a credited bonus.
func (n *Notifier) ReferralBonus(referrerID int64, amount float64, currency string) {
	text := fmt.Sprintf(
		"🎁 Ваш реферал оплатил сервер! Бонус <b>%.2f %s</b> зачислен на баланс.",
		amount, currency)
	n.send(referrerID, text)
}

// AutoRenewed confirms an automatic balance-funded renewal.
func (n *Notifier) AutoRenewed(ownerID int64, vps *models.Vps, amount float64) {
	text := fmt.Sprintf(
		"🔄 Сервер <code>%s</code> продлён автоматически.\n"+
			"Списано %.2f RUB с бонусного баланса. Оплачен до %s.",
		vps.IP, amount, vps.ExpiresAt.Format("02.01.2006"))
	n.send(ownerID, text)
}

// OperatorSale reports a fulfilled sale to the staff channel.
func (n *Notifier) OperatorSale(p *models.Payment, vps *models.Vps) {
	kind := "Новый сервер"
	if p.RenewVpsID != nil {
		kind = "Продление"
	}
	n.NotifyOperator(fmt.Sprintf(
		"💰 <b>%s</b>\nКлиент: <code>%d</code>\nТариф: %s\nСумма: %.2f %s\nIP: <code>%s</code>\nПлатёж: <code>%s</code>",
		kind, p.OwnerID, p.TariffID, p.Amount, p.Currency, vps.IP, p.ExternalID))
}

// OperatorProvisionFailure escalates a paid-but-unfulfilled payment.
func (n *Notifier) OperatorProvisionFailure(p *models.Payment, cause error) {
	n.NotifyOperator(fmt.Sprintf(
		"🚨 <b>Сбой выдачи сервера</b>\nКлиент: <code>%d</code>\nПлатёж: <code>%s</code>\nОшибка: %v\nВремя: %s",
		p.OwnerID, p.ExternalID, cause, time.Now().Format("02.01.2006 15:04:05")))
}

// OperatorPoolLow warns when the free address count drops.
func (n *Notifier) OperatorPoolLow(free int) {
	n.NotifyOperator(fmt.Sprintf(
		"⚠️ <b>Мало свободных IP</b>\nОсталось адресов: %d", free))
}
