package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrDuplicate reports a unique constraint violation.
	ErrDuplicate = errors.New("duplicate record")
	// ErrNotFound reports that an owner-scoped row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrStaleProfile reports that the profile changed since it was read.
	ErrStaleProfile = errors.New("profile changed concurrently")
	// ErrInsufficientPoints reports a purchase the balance cannot cover.
	ErrInsufficientPoints = errors.New("insufficient points")
)

type dialect struct {
	driver string
	schema string
	// nullSafeEq compares a column with a placeholder treating NULLs as equal.
	nullSafeEq string
}

var (
	sqliteDialect   = dialect{driver: "sqlite3", schema: sqliteSchema, nullSafeEq: "IS"}
	postgresDialect = dialect{driver: "postgres", schema: postgresSchema, nullSafeEq: "IS NOT DISTINCT FROM"}
)

type Store struct {
	db      *sqlx.DB
	dialect dialect
}

// Open connects to databaseURL and applies the schema. postgres:// and
// postgresql:// URLs use lib/pq, anything else is a SQLite data source.
func Open(databaseURL string) (*Store, error) {
	d, dsn := resolveDialect(databaseURL)

	db, err := sqlx.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if d.driver == sqliteDialect.driver {
		// SQLite serialises writers; one connection also keeps in-memory databases alive.
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := newStore(db, d)
	if err = s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func newStore(db *sqlx.DB, d dialect) *Store {
	return &Store{db: db, dialect: d}
}

func resolveDialect(databaseURL string) (dialect, string) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return postgresDialect, databaseURL
	}
	dsn := databaseURL
	if !strings.Contains(dsn, "_foreign_keys=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_foreign_keys=on"
	}
	return sqliteDialect, dsn
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Driver names the database/sql driver in use.
func (s *Store) Driver() string {
	return s.dialect.driver
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(s.dialect.schema)
	return err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// validID reports whether id can name a row. postgres rejects malformed UUIDs
// outright, so they are treated as absent in every dialect.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *Store) get(ctx context.Context, q sqlx.QueryerContext, dest any, query string, args ...any) (bool, error) {
	err := sqlx.GetContext(ctx, q, dest, s.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) exec(ctx context.Context, e sqlx.ExecerContext, query string, args ...any) (sql.Result, error) {
	return e.ExecContext(ctx, s.db.Rebind(query), args...)
}

// User methods
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (*User, error) {
	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.exec(ctx, s.db, "INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)",
		user.ID, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user %s: %w", email, ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

// GetUserByEmail returns nil, nil when no user has that email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	found, err := s.get(ctx, s.db, &user, "SELECT id, email, password_hash, created_at FROM users WHERE email = ?", email)
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &user, nil
}

// GetUserByID returns nil, nil when the user does not exist.
func (s *Store) GetUserByID(ctx context.Context, id string) (*User, error) {
	var user User
	found, err := s.get(ctx, s.db, &user, "SELECT id, email, password_hash, created_at FROM users WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &user, nil
}

// Profile methods
const profileColumns = "user_id, total_points, current_streak, last_activity_date, created_at, updated_at"

// GetProfile returns nil, nil when the user has no profile row.
func (s *Store) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	found, err := s.get(ctx, s.db, &p, "SELECT "+profileColumns+" FROM profiles WHERE user_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &p, nil
}

// ApplyAccrual writes a reward accrual in one transaction. The profile row is
// only updated if its streak and last activity date still match prev;
// otherwise ErrStaleProfile is returned and nothing is written. entry may be
// nil when the accrual nets to zero points.
func (s *Store) ApplyAccrual(ctx context.Context, prev Profile, upd ProfileUpdate, entry *LedgerEntry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin accrual: %w", err)
	}
	defer tx.Rollback()

	res, err := s.exec(ctx, tx,
		"UPDATE profiles SET total_points = total_points + ?, current_streak = ?, last_activity_date = ? "+
			"WHERE user_id = ? AND current_streak = ? AND last_activity_date "+s.dialect.nullSafeEq+" ?",
		upd.PointsDelta, upd.CurrentStreak, DateOf(upd.LastActivityDate),
		prev.UserID, prev.CurrentStreak, prev.LastActivityDate)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("user %s: %w", prev.UserID, ErrStaleProfile)
	}

	if entry != nil {
		if entry.UserID == "" {
			entry.UserID = prev.UserID
		}
		if err := s.insertLedgerEntry(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit accrual: %w", err)
	}
	return nil
}

// Ledger methods
func (s *Store) insertLedgerEntry(ctx context.Context, e sqlx.ExecerContext, entry *LedgerEntry) error {
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now().UTC()
	_, err := s.exec(ctx, e,
		"INSERT INTO reward_transactions (id, user_id, amount, category, description, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		entry.ID, entry.UserID, entry.Amount, entry.Category, entry.Description, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

func (s *Store) ListLedgerEntries(ctx context.Context, userID string, limit int) ([]LedgerEntry, error) {
	entries := []LedgerEntry{}
	err := s.db.SelectContext(ctx, &entries, s.db.Rebind(
		"SELECT id, user_id, amount, category, description, created_at FROM reward_transactions "+
			"WHERE user_id = ? ORDER BY created_at DESC LIMIT ?"), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	return entries, nil
}

// Conversation methods
func (s *Store) CreateConversation(ctx context.Context, userID, title string) (*Conversation, error) {
	now := time.Now().UTC()
	conv := &Conversation{ID: uuid.NewString(), UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now}
	_, err := s.exec(ctx, s.db,
		"INSERT INTO conversations (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		conv.ID, conv.UserID, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to execute conversation insert: %w", err)
	}
	return conv, nil
}

// GetConversation returns nil, nil unless the conversation exists and is owned by userID.
func (s *Store) GetConversation(ctx context.Context, conversationID, userID string) (*Conversation, error) {
	if !validID(conversationID) {
		return nil, nil
	}
	var conv Conversation
	found, err := s.get(ctx, s.db, &conv,
		"SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE id = ? AND user_id = ?",
		conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &conv, nil
}

func (s *Store) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	convs := []Conversation{}
	err := s.db.SelectContext(ctx, &convs, s.db.Rebind(
		"SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE user_id = ? ORDER BY created_at DESC"),
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	return convs, nil
}

// DeleteConversation removes the conversation and, by cascade, its messages.
func (s *Store) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	if !validID(conversationID) {
		return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	res, err := s.exec(ctx, s.db, "DELETE FROM conversations WHERE id = ? AND user_id = ?", conversationID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	return nil
}

// Message methods
const messageColumns = "id, conversation_id, user_id, role, content, tokens_used, response_time_ms, created_at"

func (s *Store) CreateMessage(ctx context.Context, msg *Message) error {
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()

	_, err := s.exec(ctx, s.db,
		"INSERT INTO messages ("+messageColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		msg.ID, msg.ConversationID, msg.UserID, msg.Role, msg.Content, msg.TokensUsed, msg.ResponseTimeMS, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to execute message insert: %w", err)
	}
	return nil
}

// GetMessages pages through a conversation oldest-first.
func (s *Store) GetMessages(ctx context.Context, conversationID, userID string, limit, offset int) ([]Message, error) {
	messages := []Message{}
	err := s.db.SelectContext(ctx, &messages, s.db.Rebind(
		"SELECT "+messageColumns+" FROM messages WHERE conversation_id = ? AND user_id = ? "+
			"ORDER BY created_at ASC LIMIT ? OFFSET ?"), conversationID, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	return messages, nil
}

// GetRecentMessages returns the last n messages of a conversation, oldest-first.
func (s *Store) GetRecentMessages(ctx context.Context, conversationID, userID string, n int) ([]Message, error) {
	messages := []Message{}
	if n <= 0 {
		return messages, nil
	}
	err := s.db.SelectContext(ctx, &messages, s.db.Rebind(
		"SELECT "+messageColumns+" FROM messages WHERE conversation_id = ? AND user_id = ? "+
			"ORDER BY created_at DESC LIMIT ?"), conversationID, userID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *Store) CountMessages(ctx context.Context, conversationID string) (int, error) {
	var n int
	if _, err := s.get(ctx, s.db, &n, "SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// Style pack methods
const stylePackColumns = "id, name, description, system_prompt, cost, is_active, created_at"

func (s *Store) ListStylePacks(ctx context.Context) ([]StylePack, error) {
	packs := []StylePack{}
	err := s.db.SelectContext(ctx, &packs, s.db.Rebind(
		"SELECT "+stylePackColumns+" FROM style_packs WHERE is_active = ? ORDER BY cost ASC, name ASC"), true)
	if err != nil {
		return nil, fmt.Errorf("failed to query style packs: %w", err)
	}
	return packs, nil
}

// GetStylePack returns nil, nil when no active pack has that ID.
func (s *Store) GetStylePack(ctx context.Context, id string) (*StylePack, error) {
	if !validID(id) {
		return nil, nil
	}
	var pack StylePack
	found, err := s.get(ctx, s.db, &pack,
		"SELECT "+stylePackColumns+" FROM style_packs WHERE id = ? AND is_active = ?", id, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get style pack: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &pack, nil
}

// UpsertStylePack inserts a pack or updates the one with the same name.
func (s *Store) UpsertStylePack(ctx context.Context, pack *StylePack) error {
	if pack.ID == "" {
		pack.ID = uuid.NewString()
	}
	if pack.CreatedAt.IsZero() {
		pack.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, s.db,
		"INSERT INTO style_packs ("+stylePackColumns+") VALUES (?, ?, ?, ?, ?, ?, ?) "+
			"ON CONFLICT (name) DO UPDATE SET description = excluded.description, "+
			"system_prompt = excluded.system_prompt, cost = excluded.cost, is_active = excluded.is_active",
		pack.ID, pack.Name, pack.Description, pack.SystemPrompt, pack.Cost, pack.IsActive, pack.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert style pack %q: %w", pack.Name, err)
	}
	return nil
}

func (s *Store) ListPurchasedStylePacks(ctx context.Context, userID string) ([]PurchasedStylePack, error) {
	packs := []PurchasedStylePack{}
	err := s.db.SelectContext(ctx, &packs, s.db.Rebind(
		"SELECT sp.id, sp.name, sp.description, sp.system_prompt, sp.cost, sp.is_active, sp.created_at, usp.purchased_at "+
			"FROM user_style_packs usp JOIN style_packs sp ON sp.id = usp.style_pack_id "+
			"WHERE usp.user_id = ? ORDER BY usp.purchased_at DESC"), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchased style packs: %w", err)
	}
	return packs, nil
}

// PurchaseStylePack links the pack to the user, deducts its cost and records a
// style_pack ledger entry, all in one transaction. A second purchase of the
// same pack fails with ErrDuplicate.
func (s *Store) PurchaseStylePack(ctx context.Context, userID string, pack StylePack) (*Purchase, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin purchase: %w", err)
	}
	defer tx.Rollback()

	purchase := &Purchase{
		ID:          uuid.NewString(),
		UserID:      userID,
		StylePackID: pack.ID,
		PurchasedAt: time.Now().UTC(),
	}
	_, err = s.exec(ctx, tx,
		"INSERT INTO user_style_packs (id, user_id, style_pack_id, purchased_at) VALUES (?, ?, ?, ?)",
		purchase.ID, purchase.UserID, purchase.StylePackID, purchase.PurchasedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("style pack %s: %w", pack.ID, ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to insert purchase: %w", err)
	}

	if pack.Cost > 0 {
		res, err := s.exec(ctx, tx,
			"UPDATE profiles SET total_points = total_points - ? WHERE user_id = ? AND total_points >= ?",
			pack.Cost, userID, pack.Cost)
		if err != nil {
			return nil, fmt.Errorf("failed to deduct points: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return nil, fmt.Errorf("style pack %s costs %d: %w", pack.ID, pack.Cost, ErrInsufficientPoints)
		}

		entry := &LedgerEntry{
			UserID:      userID,
			Amount:      -pack.Cost,
			Category:    CategoryStylePack,
			Description: fmt.Sprintf("Purchased style pack: %s", pack.Name),
		}
		if err := s.insertLedgerEntry(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit purchase: %w", err)
	}
	return purchase, nil
}
