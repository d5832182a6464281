package model

import "time"

type Role string

const (
	RoleLearner Role = "learner"
	RoleHost    Role = "host"
	RoleAdmin   Role = "admin"
)

type User struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name"`
	Role           Role      `json:"role"`
	Timezone       string    `json:"timezone"`
	TelegramChatID *int64    `json:"telegram_chat_id,omitempty"` // set once the user links the bot
	CreatedAt      time.Time `json:"created_at"`
}

// OAuthToken is a stored calendar grant.
type OAuthToken struct {
	UserID       int64     `json:"user_id"`
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
}

// Principal is the authenticated caller.
type Principal struct {
	ID   int64
	Role Role
}

func (p Principal) IsHost() bool {
	return p.Role == RoleHost || p.Role == RoleAdmin
}
