package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"github.com/Freeeeeet/mentorbook/internal/model"
)

const (
	cancelPrefix = "cancel:"
	helpText     = "Commands:\n" +
		"/start &lt;code&gt; - link this chat to your account (get the code in the web app)\n" +
		"/mybookings - upcoming sessions\n" +
		"/help - this message"
)

func (c *BotController) handleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	token := startToken(update.Message.Text)
	if token == "" {
		c.reply(ctx, chatID, "Open the web app and press <b>Connect Telegram</b> to get a link code.\n\n"+helpText, nil)
		return
	}

	user, err := c.accounts.LinkTelegram(ctx, token, chatID)
	if err != nil {
		if errors.Is(err, model.ErrUnauthorized) {
			c.reply(ctx, chatID, "This link code is invalid or expired. Request a new one in the web app.", nil)
			return
		}
		c.logger.Error("Failed to link telegram chat", zap.Int64("chat_id", chatID), zap.Error(err))
		c.reply(ctx, chatID, "Something went wrong. Try again later.", nil)
		return
	}
	c.reply(ctx, chatID, fmt.Sprintf("Linked to <b>%s</b>. Booking updates will arrive here.", html.EscapeString(user.FullName)), nil)
}

func (c *BotController) handleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	c.reply(ctx, update.Message.Chat.ID, helpText, nil)
}

func (c *BotController) handleMyBookings(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	user := c.linkedUser(ctx, chatID)
	if user == nil {
		return
	}
	bookings, err := c.accounts.UpcomingBookings(ctx, user, time.Now())
	if err != nil {
		c.logger.Error("Failed to load bookings", zap.Int64("user_id", user.ID), zap.Error(err))
		c.reply(ctx, chatID, "Could not load your bookings.", nil)
		return
	}
	if len(bookings) == 0 {
		c.reply(ctx, chatID, "No upcoming sessions.", nil)
		return
	}

	loc := userLocation(user)
	for _, booking := range bookings {
		c.reply(ctx, chatID, formatBooking(booking, user.ID, loc), cancelKeyboard(booking))
	}
}

func (c *BotController) handleCancel(ctx context.Context, b *bot.Bot, update *models.Update) {
	cq := update.CallbackQuery
	if cq == nil {
		return
	}

	answer := "Booking canceled"
	defer func() {
		b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: cq.ID, Text: answer})
	}()

	bookingID, ok := parseCancelData(cq.Data)
	if !ok {
		answer = "Unknown action"
		return
	}
	user, err := c.accounts.ByTelegramChat(ctx, cq.From.ID)
	if err != nil || user == nil {
		answer = "This chat is not linked"
		return
	}

	_, err = c.bookings.Cancel(ctx, model.Principal{ID: user.ID, Role: user.Role}, bookingID, "canceled from telegram")
	if err != nil {
		if appErr, ok := model.AsAppError(err); ok {
			answer = appErr.Message
			return
		}
		c.logger.Error("Failed to cancel booking from telegram", zap.Int64("booking_id", bookingID), zap.Error(err))
		answer = "Something went wrong"
	}
}

func (c *BotController) linkedUser(ctx context.Context, chatID int64) *model.User {
	user, err := c.accounts.ByTelegramChat(ctx, chatID)
	if err != nil {
		c.logger.Error("Failed to resolve chat", zap.Int64("chat_id", chatID), zap.Error(err))
		c.reply(ctx, chatID, "Something went wrong. Try again later.", nil)
		return nil
	}
	if user == nil {
		c.reply(ctx, chatID, "This chat is not linked yet. Use /start &lt;code&gt;.", nil)
	}
	return user
}

func (c *BotController) reply(ctx context.Context, chatID int64, text string, markup models.ReplyMarkup) {
	_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   models.ParseModeHTML,
		ReplyMarkup: markup,
	})
	if err != nil {
		c.logger.Warn("Failed to send telegram reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// startToken extracts the deep-link payload from "/start <token>".
func startToken(text string) string {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

func parseCancelData(data string) (int64, bool) {
	raw, ok := strings.CutPrefix(data, cancelPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func userLocation(user *model.User) *time.Location {
	if loc, err := time.LoadLocation(user.Timezone); err == nil && user.Timezone != "" {
		return loc
	}
	return time.UTC
}

func formatBooking(b *model.Booking, viewerID int64, loc *time.Location) string {
	role := "learner"
	if b.HostID == viewerID {
		role = "host"
	}
	start := b.StartTime.In(loc)
	return fmt.Sprintf("<b>Booking #%d</b> (%s)\n%s %s-%s\nStatus: %s\nPrice: ₹%d",
		b.ID, role,
		start.Format("Mon 02 Jan"), start.Format("15:04"), b.EndTime.In(loc).Format("15:04"),
		b.Status, b.Price,
	)
}

func cancelKeyboard(b *model.Booking) models.ReplyMarkup {
	if !b.Open() {
		return nil
	}
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: fmt.Sprintf("Cancel #%d", b.ID), CallbackData: cancelPrefix + strconv.FormatInt(b.ID, 10)}},
		},
	}
}
