package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog/log"

	"gwi.com/streak-chat/internal/metrics"
	"gwi.com/streak-chat/internal/store"
)

// Store is the persistence the services need; *store.Store implements it.
type Store interface {
	RewardStore

	CreateUser(ctx context.Context, email, passwordHash string) (*store.User, error)
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
	GetUserByID(ctx context.Context, id string) (*store.User, error)
	ListLedgerEntries(ctx context.Context, userID string, limit int) ([]store.LedgerEntry, error)

	CreateConversation(ctx context.Context, userID, title string) (*store.Conversation, error)
	GetConversation(ctx context.Context, conversationID, userID string) (*store.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]store.Conversation, error)
	DeleteConversation(ctx context.Context, conversationID, userID string) error

	CreateMessage(ctx context.Context, msg *store.Message) error
	GetMessages(ctx context.Context, conversationID, userID string, limit, offset int) ([]store.Message, error)
	GetRecentMessages(ctx context.Context, conversationID, userID string, n int) ([]store.Message, error)

	ListStylePacks(ctx context.Context) ([]store.StylePack, error)
	GetStylePack(ctx context.Context, id string) (*store.StylePack, error)
	ListPurchasedStylePacks(ctx context.Context, userID string) ([]store.PurchasedStylePack, error)
	PurchaseStylePack(ctx context.Context, userID string, pack store.StylePack) (*store.Purchase, error)
}

const conversationMessageLimit = 100

type ChatOptions struct {
	HistoryLimit   int
	AccrualTimeout time.Duration
	BannedWords    []string
}

type ChatService struct {
	dbStore        Store
	completer      Completer
	rewards        *RewardService
	screen         *ContentScreen
	historyLimit   int
	accrualTimeout time.Duration
	pending        sync.WaitGroup
}

func NewChatService(db Store, completer Completer, rewards *RewardService, opts ChatOptions) *ChatService {
	if opts.AccrualTimeout <= 0 {
		opts.AccrualTimeout = 10 * time.Second
	}
	return &ChatService{
		dbStore:        db,
		completer:      completer,
		rewards:        rewards,
		screen:         NewContentScreen(opts.BannedWords),
		historyLimit:   opts.HistoryLimit,
		accrualTimeout: opts.AccrualTimeout,
	}
}

type TurnRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
	StylePackID    string `json:"stylePackId,omitempty"`
	IsBoost        bool   `json:"isBoost,omitempty"`
}

type TurnResult struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversationId"`
	TokensUsed     int    `json:"tokensUsed"`
	ResponseTime   int64  `json:"responseTime"` // milliseconds
	// PointsAwarded predicts the outcome of the background accrual.
	PointsAwarded bool `json:"pointsAwarded"`

	// Accrual delivers the background accrual result; nil when no accrual ran.
	Accrual <-chan AccrualResult `json:"-"`
}

// HandleTurn answers one user message. The completion service is called
// synchronously; both messages are then stored best-effort and the reward
// accrual runs in the background.
func (s *ChatService) HandleTurn(ctx context.Context, userID string, req TurnRequest) (*TurnResult, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("%w: message cannot be empty", ErrValidation)
	}

	conversationID, err := s.resolveConversation(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	history, err := s.dbStore.GetRecentMessages(ctx, conversationID, userID, s.historyLimit)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("Failed to load history, proceeding without it")
		history = nil
	}

	turns := BuildPrompt(s.systemPrompt(ctx, req.StylePackID), history, req.Message)

	start := time.Now()
	completion, err := s.completer.Complete(ctx, turns)
	elapsed := time.Since(start)
	if err != nil {
		metrics.RecordTurn("upstream_error")
		var upstream *UpstreamError
		if !errors.As(err, &upstream) {
			err = &UpstreamError{Op: "generate", Err: err}
		}
		return nil, err
	}
	metrics.RecordCompletion(elapsed, completion.TokensUsed)

	responseMS := int(elapsed.Milliseconds())
	tokens := completion.TokensUsed
	s.persistMessage(ctx, &store.Message{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           store.RoleUser,
		Content:        req.Message,
	})
	s.persistMessage(ctx, &store.Message{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           store.RoleAssistant,
		Content:        completion.Text,
		TokensUsed:     &tokens,
		ResponseTimeMS: &responseMS,
	})

	result := &TurnResult{
		Response:       completion.Text,
		ConversationID: conversationID,
		TokensUsed:     tokens,
		ResponseTime:   elapsed.Milliseconds(),
	}

	if s.screen.Flagged(req.Message) {
		log.Info().Str("user_id", userID).Str("conversation_id", conversationID).Msg("Message flagged by content screen, no reward")
		metrics.RecordTurn("flagged")
		return result, nil
	}

	result.PointsAwarded = true
	result.Accrual = s.dispatchAccrual(userID, req.IsBoost, s.rewards.Today())
	metrics.RecordTurn("ok")
	return result, nil
}

func (s *ChatService) resolveConversation(ctx context.Context, userID string, req TurnRequest) (string, error) {
	if req.ConversationID != "" {
		conv, err := s.dbStore.GetConversation(ctx, req.ConversationID, userID)
		if err != nil {
			return "", fmt.Errorf("failed to verify conversation: %w", err)
		}
		if conv == nil {
			return "", fmt.Errorf("conversation %s: %w", req.ConversationID, ErrNotFound)
		}
		return conv.ID, nil
	}

	conv, err := s.dbStore.CreateConversation(ctx, userID, ConversationTitle(req.Message))
	if err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv.ID, nil
}

// systemPrompt resolves a style pack to its prompt. Unknown, inactive or
// unreadable packs fall back to the default persona.
func (s *ChatService) systemPrompt(ctx context.Context, stylePackID string) string {
	if stylePackID == "" {
		return DefaultSystemPrompt
	}
	pack, err := s.dbStore.GetStylePack(ctx, stylePackID)
	if err != nil {
		log.Warn().Err(err).Str("style_pack_id", stylePackID).Msg("Failed to load style pack, using default persona")
		return DefaultSystemPrompt
	}
	if pack == nil {
		log.Debug().Str("style_pack_id", stylePackID).Msg("Style pack not found, using default persona")
		return DefaultSystemPrompt
	}
	return pack.SystemPrompt
}

func (s *ChatService) persistMessage(ctx context.Context, msg *store.Message) {
	if err := s.dbStore.CreateMessage(ctx, msg); err != nil {
		metrics.RecordPersistenceFailure("message")
		log.Error().Err(err).
			Str("conversation_id", msg.ConversationID).
			Str("role", msg.Role).
			Msg("Failed to store message")
	}
}

// dispatchAccrual runs the reward accrual detached from the request. The
// returned channel receives exactly one result and is then closed.
func (s *ChatService) dispatchAccrual(userID string, isBoost bool, today civil.Date) <-chan AccrualResult {
	done := make(chan AccrualResult, 1)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer close(done)

		ctx, cancel := context.WithTimeout(context.Background(), s.accrualTimeout)
		defer cancel()

		res, err := s.rewards.Accrue(ctx, userID, isBoost, today)
		res.Err = err
		recordAccrual(res)
		if err != nil {
			metrics.RecordPersistenceFailure("reward")
			log.Error().Err(err).Str("user_id", userID).Msg("Reward accrual failed")
		} else if !res.Skipped {
			log.Debug().
				Str("user_id", userID).
				Int("points", res.Accrual.PointsToAdd).
				Int("streak", res.Accrual.Streak).
				Msg("Reward accrued")
		}
		done <- res
	}()
	return done
}

// Wait blocks until every background accrual has finished.
func (s *ChatService) Wait() {
	s.pending.Wait()
}

func (s *ChatService) ListConversations(ctx context.Context, userID string) ([]store.Conversation, error) {
	return s.dbStore.ListConversations(ctx, userID)
}

func (s *ChatService) GetConversation(ctx context.Context, conversationID, userID string) (*store.Conversation, []store.Message, error) {
	conv, err := s.dbStore.GetConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if conv == nil {
		return nil, nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}

	messages, err := s.dbStore.GetMessages(ctx, conversationID, userID, conversationMessageLimit, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get messages for conversation: %w", err)
	}
	return conv, messages, nil
}

func (s *ChatService) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	return s.dbStore.DeleteConversation(ctx, conversationID, userID)
}
