package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// MarketInput describes a new market. Two or more outcomes make it a
// multi-outcome market.
type MarketInput struct {
	Title       string
	Description string
	Category    string
	ImageURL    string
	ClosesAt    time.Time
	Outcomes    []string
	Rules       []string
}

// MarketPatch edits market metadata. Nil fields are left unchanged.
type MarketPatch struct {
	Title       *string
	Description *string
	Category    *string
	ImageURL    *string
	ClosesAt    *time.Time
}

// CreateMarket adds a market. Admin only.
func (e *Engine) CreateMarket(ctx context.Context, caller string, in MarketInput) (domain.Market, error) {
	if err := e.requireAdmin(caller); err != nil {
		return domain.Market{}, fmt.Errorf("engine: create market: %w", err)
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return domain.Market{}, fmt.Errorf("engine: create market: %w: title is required", domain.ErrInvalidInput)
	}
	if len(in.Outcomes) == 1 {
		return domain.Market{}, fmt.Errorf("engine: create market: %w: a multi-outcome market needs at least two outcomes", domain.ErrInvalidInput)
	}

	var created domain.Market
	err := e.mutate(ctx, "create market", func(doc *domain.MarketsDocument, t *txn) error {
		if !in.ClosesAt.IsZero() && !in.ClosesAt.After(t.now) {
			return fmt.Errorf("%w: close time must be in the future", domain.ErrInvalidInput)
		}
		m := domain.Market{
			ID:                      newID("mkt"),
			Title:                   in.Title,
			Description:             in.Description,
			Category:                in.Category,
			ImageURL:                in.ImageURL,
			Mode:                    domain.MarketModeSimple,
			Status:                  domain.MarketStatusActive,
			CreatedBy:               caller,
			CreatedAt:               t.now,
			ClosesAt:                in.ClosesAt.UTC(),
			TotalYesAmount:          decimal.Zero,
			TotalNoAmount:           decimal.Zero,
			TotalVolume:             decimal.Zero,
			Volume24h:               decimal.Zero,
			PlatformFeesCollected:   decimal.Zero,
			SettlementFeesCollected: decimal.Zero,
			UnclaimedPool:           decimal.Zero,
			RefundedAmount:          decimal.Zero,
			UniqueYesBettors:        []string{},
			UniqueNoBettors:         []string{},
			Bets:                    []domain.Bet{},
			Rules:                   in.Rules,
		}
		if len(in.Outcomes) > 0 {
			m.Mode = domain.MarketModeMultiOutcome
			for i, name := range in.Outcomes {
				name = strings.TrimSpace(name)
				if name == "" {
					return fmt.Errorf("%w: outcome %d has no name", domain.ErrInvalidInput, i)
				}
				m.Outcomes = append(m.Outcomes, domain.Outcome{
					ID:               fmt.Sprintf("%s_o%d", m.ID, i+1),
					Name:             name,
					TotalYesAmount:   decimal.Zero,
					TotalNoAmount:    decimal.Zero,
					UniqueYesBettors: []string{},
					UniqueNoBettors:  []string{},
				})
			}
		}
		refreshPrices(&m)
		m.Version = 1
		doc.Markets = append(doc.Markets, m)
		created = m

		t.emit(domain.ChannelMarkets, "market.created", &m, caller, m)
		t.auditf("market.created", map[string]any{
			"market_id": m.ID,
			"title":     m.Title,
			"mode":      string(m.Mode),
		})
		return nil
	})
	if err != nil {
		return domain.Market{}, err
	}

	e.logger.InfoContext(ctx, "market created",
		slog.String("market_id", created.ID),
		slog.String("mode", string(created.Mode)),
	)
	return created, nil
}

// EditMarket updates market metadata. Admin only; resolved markets are
// frozen.
func (e *Engine) EditMarket(ctx context.Context, caller, marketID string, patch MarketPatch) (domain.Market, error) {
	if err := e.requireAdmin(caller); err != nil {
		return domain.Market{}, fmt.Errorf("engine: edit market: %w", err)
	}

	var edited domain.Market
	err := e.mutate(ctx, "edit market", func(doc *domain.MarketsDocument, t *txn) error {
		m, err := findMarket(doc, marketID)
		if err != nil {
			return err
		}
		if m.Status == domain.MarketStatusResolved {
			return domain.ErrAlreadyResolved
		}
		if patch.Title != nil {
			title := strings.TrimSpace(*patch.Title)
			if title == "" {
				return fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
			}
			m.Title = title
		}
		if patch.Description != nil {
			m.Description = *patch.Description
		}
		if patch.Category != nil {
			m.Category = *patch.Category
		}
		if patch.ImageURL != nil {
			m.ImageURL = *patch.ImageURL
		}
		if patch.ClosesAt != nil {
			m.ClosesAt = patch.ClosesAt.UTC()
		}
		t.touch(m)
		edited = *m

		t.emit(domain.ChannelMarkets, "market.updated", m, caller, nil)
		t.auditf("market.updated", map[string]any{"market_id": m.ID})
		return nil
	})
	if err != nil {
		return domain.Market{}, err
	}
	return edited, nil
}

// DeleteMarket removes a market that has never taken a bet. Admin only.
func (e *Engine) DeleteMarket(ctx context.Context, caller, marketID string) error {
	if err := e.requireAdmin(caller); err != nil {
		return fmt.Errorf("engine: delete market: %w", err)
	}
	return e.mutate(ctx, "delete market", func(doc *domain.MarketsDocument, t *txn) error {
		m, err := findMarket(doc, marketID)
		if err != nil {
			return err
		}
		if len(m.Bets) > 0 {
			return domain.ErrMarketHasBets
		}
		gone := *m
		doc.Remove(marketID)

		t.emit(domain.ChannelMarkets, "market.deleted", &gone, caller, nil)
		t.auditf("market.deleted", map[string]any{"market_id": marketID, "title": gone.Title})
		return nil
	})
}

// CloseMarket stops betting on an active market. Admin only.
func (e *Engine) CloseMarket(ctx context.Context, caller, marketID string) (domain.Market, error) {
	if err := e.requireAdmin(caller); err != nil {
		return domain.Market{}, fmt.Errorf("engine: close market: %w", err)
	}

	var closed domain.Market
	err := e.mutate(ctx, "close market", func(doc *domain.MarketsDocument, t *txn) error {
		m, err := findMarket(doc, marketID)
		if err != nil {
			return err
		}
		if m.Status != domain.MarketStatusActive {
			return domain.ErrMarketInactive
		}
		closeMarket(m, t)
		closed = *m

		t.emit(domain.ChannelMarkets, "market.closed", m, caller, map[string]any{"reason": "admin"})
		t.auditf("market.closed", map[string]any{"market_id": m.ID})
		return nil
	})
	if err != nil {
		return domain.Market{}, err
	}
	return closed, nil
}

// AddNews attaches a news item to a market. Admin only.
func (e *Engine) AddNews(ctx context.Context, caller, marketID string, item domain.NewsItem) (domain.NewsItem, error) {
	if err := e.requireAdmin(caller); err != nil {
		return domain.NewsItem{}, fmt.Errorf("engine: add news: %w", err)
	}
	if strings.TrimSpace(item.Title) == "" {
		return domain.NewsItem{}, fmt.Errorf("engine: add news: %w: title is required", domain.ErrInvalidInput)
	}

	err := e.mutate(ctx, "add news", func(doc *domain.MarketsDocument, t *txn) error {
		m, err := findMarket(doc, marketID)
		if err != nil {
			return err
		}
		item.ID = newID("news")
		item.CreatedAt = t.now
		m.News = append(m.News, item)
		t.touch(m)
		t.emit(domain.ChannelMarkets, "market.news", m, caller, item)
		return nil
	})
	if err != nil {
		return domain.NewsItem{}, err
	}
	return item, nil
}

// AddRule appends a resolution rule to a market. Admin only.
func (e *Engine) AddRule(ctx context.Context, caller, marketID, rule string) error {
	if err := e.requireAdmin(caller); err != nil {
		return fmt.Errorf("engine: add rule: %w", err)
	}
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return fmt.Errorf("engine: add rule: %w: rule is empty", domain.ErrInvalidInput)
	}
	return e.mutate(ctx, "add rule", func(doc *domain.MarketsDocument, t *txn) error {
		m, err := findMarket(doc, marketID)
		if err != nil {
			return err
		}
		m.Rules = append(m.Rules, rule)
		t.touch(m)
		t.emit(domain.ChannelMarkets, "market.rules", m, caller, rule)
		return nil
	})
}

// AddComment attaches a wallet's comment to a market.
func (e *Engine) AddComment(ctx context.Context, wallet, marketID, text string) (domain.Comment, error) {
	text = strings.TrimSpace(text)
	if wallet == "" || text == "" {
		return domain.Comment{}, fmt.Errorf("engine: add comment: %w: wallet and text are required", domain.ErrInvalidInput)
	}

	var c domain.Comment
	err := e.mutate(ctx, "add comment", func(doc *domain.MarketsDocument, t *txn) error {
		m, err := findMarket(doc, marketID)
		if err != nil {
			return err
		}
		c = domain.Comment{ID: newID("cmt"), Wallet: wallet, Text: text, CreatedAt: t.now}
		m.Comments = append(m.Comments, c)
		t.touch(m)
		t.emit(domain.ChannelMarkets, "market.comment", m, wallet, c)
		return nil
	})
	if err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}
