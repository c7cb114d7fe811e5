package store

import (
	"context"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createUser(t *testing.T, s *Store, email string) *User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), email, "hash")
	require.NoError(t, err)
	return u
}

func TestResolveDialect(t *testing.T) {
	d, dsn := resolveDialect("postgres://u:p@localhost/db?sslmode=disable")
	assert.Equal(t, "postgres", d.driver)
	assert.Equal(t, "postgres://u:p@localhost/db?sslmode=disable", dsn)

	d, dsn = resolveDialect("chat.db")
	assert.Equal(t, "sqlite3", d.driver)
	assert.Equal(t, "chat.db?_foreign_keys=on", dsn)

	_, dsn = resolveDialect("file:x?mode=memory")
	assert.Equal(t, "file:x?mode=memory&_foreign_keys=on", dsn)
}

func TestCreateUserCreatesProfile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := createUser(t, s, "a@example.com")

	p, err := s.GetProfile(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 0, p.TotalPoints)
	assert.Equal(t, 0, p.CurrentStreak)
	assert.False(t, p.LastActivityDate.Valid)

	_, err = s.CreateUser(ctx, "a@example.com", "hash")
	assert.ErrorIs(t, err, ErrDuplicate)

	got, err := s.GetUserByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	missing, err := s.GetUserByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestApplyAccrual(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "a@example.com")

	p, err := s.GetProfile(ctx, u.ID)
	require.NoError(t, err)

	day := civil.Date{Year: 2026, Month: 10, Day: 16}
	entry := &LedgerEntry{Amount: 1, Category: CategoryMessage, Description: "Message reward"}
	require.NoError(t, s.ApplyAccrual(ctx, *p, ProfileUpdate{PointsDelta: 1, CurrentStreak: 1, LastActivityDate: day}, entry))

	p2, err := s.GetProfile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p2.TotalPoints)
	assert.Equal(t, 1, p2.CurrentStreak)
	assert.Equal(t, DateOf(day), p2.LastActivityDate)

	entries, err := s.ListLedgerEntries(ctx, u.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, CategoryMessage, entries[0].Category)
	assert.Equal(t, 1, entries[0].Amount)

	// p is stale now: its last activity date is still NULL.
	err = s.ApplyAccrual(ctx, *p, ProfileUpdate{PointsDelta: 1, CurrentStreak: 1, LastActivityDate: day}, &LedgerEntry{
		Amount: 1, Category: CategoryMessage, Description: "Message reward",
	})
	assert.ErrorIs(t, err, ErrStaleProfile)

	entries, err = s.ListLedgerEntries(ctx, u.ID, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// A zero-point accrual updates the profile without a ledger row.
	require.NoError(t, s.ApplyAccrual(ctx, *p2, ProfileUpdate{PointsDelta: 0, CurrentStreak: 1, LastActivityDate: day}, nil))
	entries, err = s.ListLedgerEntries(ctx, u.ID, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestConversationsAreOwnerScoped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice@example.com")
	bob := createUser(t, s, "bob@example.com")

	conv, err := s.CreateConversation(ctx, alice.ID, "hello")
	require.NoError(t, err)

	got, err := s.GetConversation(ctx, conv.ID, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hello", got.Title)

	got, err = s.GetConversation(ctx, conv.ID, bob.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	bobs, err := s.ListConversations(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, bobs)

	assert.ErrorIs(t, s.DeleteConversation(ctx, conv.ID, bob.ID), ErrNotFound)
}

func TestMessagesHistoryAndCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "a@example.com")
	conv, err := s.CreateConversation(ctx, u.ID, "t")
	require.NoError(t, err)

	for _, content := range []string{"m1", "m2", "m3", "m4"} {
		require.NoError(t, s.CreateMessage(ctx, &Message{ConversationID: conv.ID, UserID: u.ID, Role: RoleUser, Content: content}))
	}
	tokens, ms := 42, 150
	require.NoError(t, s.CreateMessage(ctx, &Message{
		ConversationID: conv.ID, UserID: u.ID, Role: RoleAssistant, Content: "m5", TokensUsed: &tokens, ResponseTimeMS: &ms,
	}))

	recent, err := s.GetRecentMessages(ctx, conv.ID, u.ID, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, []string{"m3", "m4", "m5"}, []string{recent[0].Content, recent[1].Content, recent[2].Content})
	require.NotNil(t, recent[2].TokensUsed)
	assert.Equal(t, 42, *recent[2].TokensUsed)
	assert.Nil(t, recent[0].TokensUsed)

	all, err := s.GetMessages(ctx, conv.ID, u.ID, 100, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Equal(t, "m1", all[0].Content)

	err = s.CreateMessage(ctx, &Message{ConversationID: conv.ID, UserID: u.ID, Role: "system", Content: "x"})
	assert.Error(t, err)

	require.NoError(t, s.DeleteConversation(ctx, conv.ID, u.ID))
	n, err := s.CountMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPurchaseStylePack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "a@example.com")

	pack := &StylePack{Name: "Pirate", SystemPrompt: "Arr.", Cost: 20, IsActive: true}
	require.NoError(t, s.UpsertStylePack(ctx, pack))
	free := &StylePack{Name: "Plain", SystemPrompt: "Be plain.", Cost: 0, IsActive: true}
	require.NoError(t, s.UpsertStylePack(ctx, free))

	_, err := s.PurchaseStylePack(ctx, u.ID, *pack)
	assert.ErrorIs(t, err, ErrInsufficientPoints)
	owned, err := s.ListPurchasedStylePacks(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, owned, "failed purchase must not leave a link behind")

	p, err := s.GetProfile(ctx, u.ID)
	require.NoError(t, err)
	require.NoError(t, s.ApplyAccrual(ctx, *p, ProfileUpdate{PointsDelta: 25, CurrentStreak: 1, LastActivityDate: civil.Date{Year: 2026, Month: 1, Day: 1}}, nil))

	purchase, err := s.PurchaseStylePack(ctx, u.ID, *pack)
	require.NoError(t, err)
	assert.Equal(t, pack.ID, purchase.StylePackID)

	_, err = s.PurchaseStylePack(ctx, u.ID, *pack)
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = s.PurchaseStylePack(ctx, u.ID, *free)
	require.NoError(t, err)

	p, err = s.GetProfile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, p.TotalPoints)

	entries, err := s.ListLedgerEntries(ctx, u.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, CategoryStylePack, entries[0].Category)
	assert.Equal(t, -20, entries[0].Amount)

	owned, err = s.ListPurchasedStylePacks(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, owned, 2)
}

func TestStylePackLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active := &StylePack{Name: "B", SystemPrompt: "b", Cost: 10, IsActive: true}
	cheap := &StylePack{Name: "A", SystemPrompt: "a", Cost: 10, IsActive: true}
	retired := &StylePack{Name: "Old", SystemPrompt: "o", Cost: 0, IsActive: false}
	for _, p := range []*StylePack{active, cheap, retired} {
		require.NoError(t, s.UpsertStylePack(ctx, p))
	}

	packs, err := s.ListStylePacks(ctx)
	require.NoError(t, err)
	require.Len(t, packs, 2)
	assert.Equal(t, "A", packs[0].Name)

	got, err := s.GetStylePack(ctx, active.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "b", got.SystemPrompt)

	for _, id := range []string{retired.ID, uuid.NewString(), "not-a-uuid"} {
		got, err = s.GetStylePack(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, got, id)
	}

	// Upsert by name updates the existing row.
	require.NoError(t, s.UpsertStylePack(ctx, &StylePack{Name: "B", SystemPrompt: "b2", Cost: 15, IsActive: true}))
	got, err = s.GetStylePack(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, "b2", got.SystemPrompt)
	assert.Equal(t, 15, got.Cost)
}

func TestNullDate(t *testing.T) {
	var d NullDate
	require.NoError(t, d.Scan("2026-10-16"))
	assert.Equal(t, DateOf(civil.Date{Year: 2026, Month: 10, Day: 16}), d)

	require.NoError(t, d.Scan([]byte("2026-10-15T00:00:00Z")))
	assert.Equal(t, civil.Date{Year: 2026, Month: 10, Day: 15}, d.Date)

	require.NoError(t, d.Scan(nil))
	assert.False(t, d.Valid)

	v, err := d.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	b, err := DateOf(civil.Date{Year: 2026, Month: 1, Day: 2}).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2026-01-02"`, string(b))

	require.NoError(t, d.UnmarshalJSON(b))
	assert.Equal(t, civil.Date{Year: 2026, Month: 1, Day: 2}, d.Date)
	require.NoError(t, d.UnmarshalJSON([]byte("null")))
	assert.False(t, d.Valid)

	assert.Error(t, d.Scan(12))
}
