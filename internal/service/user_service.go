package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/mentorbook/internal/ledger"
	"github.com/Freeeeeet/mentorbook/internal/model"
)

const telegramLinkTTL = 15 * time.Minute

// UserService links accounts to the Telegram bot.
type UserService struct {
	store  ledger.Store
	tokens *Tokens
	logger *zap.Logger
}

// NewUserService creates the account service.
func NewUserService(store ledger.Store, tokens *Tokens, logger *zap.Logger) *UserService {
	return &UserService{
		store:  store,
		tokens: tokens,
		logger: logger,
	}
}

// TelegramLinkToken issues a one-off token the user passes to the bot as /start <token>.
func (s *UserService) TelegramLinkToken(ctx context.Context, principal model.Principal) (string, error) {
	user, err := s.store.Read().Users().GetByID(ctx, principal.ID)
	if err != nil {
		return "", fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return "", model.Errorf(model.ErrNotFound, "user %d not found", principal.ID)
	}
	return s.tokens.sign(Claims{Purpose: purposeTelegramLink}, user.ID, telegramLinkTTL)
}

// LinkTelegram binds chatID to the user named by the link token.
func (s *UserService) LinkTelegram(ctx context.Context, linkToken string, chatID int64) (*model.User, error) {
	claims, userID, err := s.tokens.parse(linkToken)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != purposeTelegramLink {
		return nil, model.Errorf(model.ErrUnauthorized, "not a link token")
	}

	var user *model.User
	err = s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Repos) error {
		user, err = tx.Users().GetByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		if user == nil {
			return model.Errorf(model.ErrNotFound, "user %d not found", userID)
		}
		if err := tx.Users().SetTelegramChatID(ctx, userID, chatID); err != nil {
			return err
		}
		user.TelegramChatID = &chatID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Telegram chat linked",
		zap.Int64("user_id", user.ID),
		zap.Int64("chat_id", chatID),
	)
	return user, nil
}

// ByTelegramChat returns the linked user, or nil.
func (s *UserService) ByTelegramChat(ctx context.Context, chatID int64) (*model.User, error) {
	return s.store.Read().Users().GetByTelegramChatID(ctx, chatID)
}

// UpcomingBookings lists the user's open bookings that have not started yet.
func (s *UserService) UpcomingBookings(ctx context.Context, user *model.User, now time.Time) ([]*model.Booking, error) {
	all, err := s.store.Read().Bookings().ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	var upcoming []*model.Booking
	for _, b := range all {
		if b.Open() && b.StartTime.After(now) {
			upcoming = append(upcoming, b)
		}
	}
	return upcoming, nil
}
