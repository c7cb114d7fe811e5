package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"gwi.com/streak-chat/internal/metrics"
	"gwi.com/streak-chat/internal/store"
)

type StylePackService struct {
	dbStore Store
}

func NewStylePackService(db Store) *StylePackService {
	return &StylePackService{dbStore: db}
}

func (s *StylePackService) List(ctx context.Context) ([]store.StylePack, error) {
	return s.dbStore.ListStylePacks(ctx)
}

func (s *StylePackService) Purchased(ctx context.Context, userID string) ([]store.PurchasedStylePack, error) {
	return s.dbStore.ListPurchasedStylePacks(ctx, userID)
}

// Purchase buys an active pack for the user. The store checks ownership and
// balance and deducts the cost in the same transaction as the link.
func (s *StylePackService) Purchase(ctx context.Context, userID, stylePackID string) (*store.Purchase, error) {
	pack, err := s.dbStore.GetStylePack(ctx, stylePackID)
	if err != nil {
		return nil, fmt.Errorf("failed to load style pack: %w", err)
	}
	if pack == nil {
		return nil, fmt.Errorf("style pack %s: %w", stylePackID, ErrNotFound)
	}

	purchase, err := s.dbStore.PurchaseStylePack(ctx, userID, *pack)
	if err != nil {
		return nil, err
	}
	metrics.RecordAccrual("purchase", string(store.CategoryStylePack), pack.Cost)
	log.Info().
		Str("user_id", userID).
		Str("style_pack", pack.Name).
		Int("cost", pack.Cost).
		Msg("Style pack purchased")
	return purchase, nil
}
