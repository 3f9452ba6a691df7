// Package telegram posts payment reports to an operator channel.
package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"hppgate/internal/checkout"
	"hppgate/internal/config"
	"hppgate/internal/pricing"
)

// Notifier reports committed payments to a Telegram channel. A Notifier
// without a token or channel drops every report.
type Notifier struct {
	bot     *tele.Bot
	channel tele.ChatID
	logger  *zap.Logger
}

// NewNotifier builds a Notifier. apiURL overrides the Bot API endpoint and
// may be empty.
func NewNotifier(cfg config.TelegramConfig, apiURL string, logger *zap.Logger) (*Notifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Notifier{channel: tele.ChatID(cfg.Channel), logger: logger}
	if cfg.Token == "" || cfg.Channel == 0 {
		logger.Info("telegram reports disabled")
		return n, nil
	}

	pref := tele.Settings{
		Token:   cfg.Token,
		URL:     apiURL,
		Offline: true,
		OnError: func(err error, c tele.Context) {
			logger.Error("telebot error", zap.Error(err))
		},
	}

	tb, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telebot: %w", err)
	}
	n.bot = tb
	return n, nil
}

// Enabled reports whether messages are actually sent.
func (n *Notifier) Enabled() bool {
	return n != nil && n.bot != nil
}

// PaymentCommitted posts the receipt to the report channel.
func (n *Notifier) PaymentCommitted(ctx context.Context, receipt checkout.Receipt) error {
	if !n.Enabled() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := n.bot.Send(n.channel, FormatReceipt(receipt), tele.ModeHTML); err != nil {
		return fmt.Errorf("send payment report: %w", err)
	}
	return nil
}

// FormatReceipt renders the HTML report text for a receipt.
func FormatReceipt(r checkout.Receipt) string {
	var b strings.Builder
	b.WriteString("💵 <b>New payment</b>\n\n")
	fmt.Fprintf(&b, "Payable: <code>%s</code>\n", html.EscapeString(r.Ref.String()))
	fmt.Fprintf(&b, "User ID: <code>%d</code>\n", r.UserID)
	fmt.Fprintf(&b, "Amount: %s %s\n", pricing.Format(r.Cost, r.Currency), html.EscapeString(r.Currency))
	fmt.Fprintf(&b, "Payment ID: <code>%d</code>\n", r.PaymentID)
	fmt.Fprintf(&b, "Intent: <code>%s</code>", html.EscapeString(r.IntentID))
	return b.String()
}
