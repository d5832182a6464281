// Package telegram is the chat front end: account linking and a view of upcoming sessions.
package telegram

import (
	"context"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"github.com/Freeeeeet/mentorbook/internal/model"
)

// Accounts resolves chats to users.
type Accounts interface {
	LinkTelegram(ctx context.Context, linkToken string, chatID int64) (*model.User, error)
	ByTelegramChat(ctx context.Context, chatID int64) (*model.User, error)
	UpcomingBookings(ctx context.Context, user *model.User, now time.Time) ([]*model.Booking, error)
}

type Canceler interface {
	Cancel(ctx context.Context, principal model.Principal, bookingID int64, reason string) (*model.Booking, error)
}

type BotController struct {
	bot      *bot.Bot
	accounts Accounts
	bookings Canceler
	logger   *zap.Logger
}

func NewBotController(b *bot.Bot, accounts Accounts, bookings Canceler, logger *zap.Logger) *BotController {
	return &BotController{
		bot:      b,
		accounts: accounts,
		bookings: bookings,
		logger:   logger,
	}
}

// RegisterHandlers wires commands and sets the bot menu.
func (c *BotController) RegisterHandlers(ctx context.Context) error {
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, c.handleStart)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact, c.handleHelp)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/mybookings", bot.MatchTypeExact, c.handleMyBookings)
	c.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cancelPrefix, bot.MatchTypePrefix, c.handleCancel)

	return c.setCommands(ctx)
}

func (c *BotController) setCommands(ctx context.Context) error {
	_, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: []models.BotCommand{
			{Command: "start", Description: "Link your account"},
			{Command: "mybookings", Description: "Upcoming sessions"},
			{Command: "help", Description: "Show help"},
		},
	})
	if err != nil {
		c.logger.Error("Failed to set bot commands", zap.Error(err))
		return err
	}
	return nil
}

// Start blocks polling updates until ctx is done.
func (c *BotController) Start(ctx context.Context) {
	c.logger.Info("Starting telegram bot")
	c.bot.Start(ctx)
}
