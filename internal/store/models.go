package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"` // Do not expose this in JSON responses
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type Profile struct {
	UserID           string    `db:"user_id" json:"user_id"`
	TotalPoints      int       `db:"total_points" json:"total_points"`
	CurrentStreak    int       `db:"current_streak" json:"current_streak"`
	LastActivityDate NullDate  `db:"last_activity_date" json:"last_activity_date"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

type Conversation struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	UserID         string    `db:"user_id" json:"-"`
	Role           string    `db:"role" json:"role"` // "user" or "assistant"
	Content        string    `db:"content" json:"content"`
	TokensUsed     *int      `db:"tokens_used" json:"tokens_used,omitempty"`
	ResponseTimeMS *int      `db:"response_time_ms" json:"response_time_ms,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

type LedgerCategory string

const (
	CategoryMessage   LedgerCategory = "message"
	CategoryStreak    LedgerCategory = "streak"
	CategoryBoost     LedgerCategory = "boost"
	CategoryStylePack LedgerCategory = "style_pack"
)

// LedgerEntry is one row of reward_transactions. Rows are never updated.
type LedgerEntry struct {
	ID          string         `db:"id" json:"id"`
	UserID      string         `db:"user_id" json:"user_id"`
	Amount      int            `db:"amount" json:"amount"`
	Category    LedgerCategory `db:"category" json:"category"`
	Description string         `db:"description" json:"description"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

type StylePack struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Description  string    `db:"description" json:"description"`
	SystemPrompt string    `db:"system_prompt" json:"system_prompt"`
	Cost         int       `db:"cost" json:"cost"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type Purchase struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	StylePackID string    `db:"style_pack_id" json:"style_pack_id"`
	PurchasedAt time.Time `db:"purchased_at" json:"purchased_at"`
}

// PurchasedStylePack joins a purchase with the pack it refers to.
type PurchasedStylePack struct {
	StylePack
	PurchasedAt time.Time `db:"purchased_at" json:"purchased_at"`
}

// ProfileUpdate is the outcome of one reward accrual, applied against the
// profile state it was computed from.
type ProfileUpdate struct {
	PointsDelta      int
	CurrentStreak    int
	LastActivityDate civil.Date
}

// NullDate is a calendar date column that may be NULL. SQLite hands dates
// back as text, lib/pq as time.Time.
type NullDate struct {
	Date  civil.Date
	Valid bool
}

func DateOf(d civil.Date) NullDate {
	return NullDate{Date: d, Valid: true}
}

func (d *NullDate) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*d = NullDate{}
		return nil
	case time.Time:
		*d = DateOf(civil.DateOf(v))
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into NullDate", value)
	}
}

func (d *NullDate) parse(s string) error {
	if len(s) > 10 {
		s = s[:10]
	}
	date, err := civil.ParseDate(s)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", s, err)
	}
	*d = DateOf(date)
	return nil
}

func (d NullDate) Value() (driver.Value, error) {
	if !d.Valid {
		return nil, nil
	}
	return d.Date.String(), nil
}

func (d NullDate) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(d.Date.String())
}

func (d *NullDate) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = NullDate{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return d.parse(s)
}
