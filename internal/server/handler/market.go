package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
	"github.com/okeymeta/probalyze-sub000/internal/service"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete engine.
type MarketService interface {
	ListMarkets(ctx context.Context) ([]domain.Market, error)
	GetMarket(ctx context.Context, id string) (domain.Market, error)
	PreviewPayout(ctx context.Context, marketID string, side domain.Side, outcomeID string, amount decimal.Decimal) (domain.Payout, error)
	CreateMarket(ctx context.Context, caller string, in service.MarketInput) (domain.Market, error)
	EditMarket(ctx context.Context, caller, marketID string, patch service.MarketPatch) (domain.Market, error)
	DeleteMarket(ctx context.Context, caller, marketID string) error
	CloseMarket(ctx context.Context, caller, marketID string) (domain.Market, error)
	ResolveMarket(ctx context.Context, caller, marketID string, outcome domain.Side) (service.Settlement, error)
	ResolveMultiOutcomeMarket(ctx context.Context, caller, marketID, outcomeID string) (service.Settlement, error)
	AddNews(ctx context.Context, caller, marketID string, item domain.NewsItem) (domain.NewsItem, error)
	AddRule(ctx context.Context, caller, marketID, rule string) error
	AddComment(ctx context.Context, wallet, marketID, text string) (domain.Comment, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Total   int             `json:"total"`
}

type createMarketRequest struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=5000"`
	Category    string    `json:"category" validate:"max=64"`
	ImageURL    string    `json:"imageUrl" validate:"omitempty,url"`
	ClosesAt    time.Time `json:"closesAt"`
	Outcomes    []string  `json:"outcomes" validate:"omitempty,min=2,max=20,dive,required,max=100"`
	Rules       []string  `json:"rules" validate:"omitempty,dive,required"`
}

type editMarketRequest struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	Category    *string    `json:"category" validate:"omitempty,max=64"`
	ImageURL    *string    `json:"imageUrl" validate:"omitempty,url"`
	ClosesAt    *time.Time `json:"closesAt"`
}

type resolveRequest struct {
	Outcome   string `json:"outcome" validate:"required_without=OutcomeID,excluded_with=OutcomeID,omitempty,oneof=yes no"`
	OutcomeID string `json:"outcomeId"`
}

type newsRequest struct {
	Title string `json:"title" validate:"required,max=200"`
	Body  string `json:"body" validate:"max=5000"`
	URL   string `json:"url" validate:"omitempty,url"`
}

type ruleRequest struct {
	Rule string `json:"rule" validate:"required,max=1000"`
}

type commentRequest struct {
	Text string `json:"text" validate:"required,max=1000"`
}

// ListMarkets returns every market.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := h.markets.ListMarkets(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "list markets", err)
		return
	}
	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{Markets: markets, Total: len(markets)})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	market, err := h.markets.GetMarket(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, market)
}

// PreviewPayout prices a hypothetical stake.
// GET /api/markets/{id}/preview?side=yes&amount=10&outcomeId=
func (h *MarketHandler) PreviewPayout(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a decimal number")
		return
	}
	side := domain.Side(q.Get("side"))
	if side == "" {
		side = domain.SideYes
	}

	payout, err := h.markets.PreviewPayout(r.Context(), pathParam(r, "id"), side, q.Get("outcomeId"), amount)
	if err != nil {
		writeServiceError(w, r, h.logger, "preview payout", err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

// CreateMarket opens a new market. Admin only.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerWallet(w, r)
	if !ok {
		return
	}
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, r, h.logger, "create market", err)
		return
	}

	m, err := h.markets.CreateMarket(r.Context(), caller, service.MarketInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
		ClosesAt:    req.ClosesAt,
		Outcomes:    req.Outcomes,
		Rules:       req.Rules,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "create market", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// EditMarket updates market metadata. Admin only.
// PUT /api/markets/{id}
func (h *MarketHandler) EditMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerWallet(w, r)
	if !ok {
		return
	}
	var req editMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, r, h.logger, "edit market", err)
		return
	}

	m, err := h.markets.EditMarket(r.Context(), caller, pathParam(r, "id"), service.MarketPatch{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
		ClosesAt:    req.ClosesAt,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "edit market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// DeleteMarket removes a market that has no bets. Admin only.
// DELETE /api/markets/{id}
func (h *MarketHandler) DeleteMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerWallet(w, r)
	if !ok {
		return
	}
	if err := h.markets.DeleteMarket(r.Context(), caller, pathParam(r, "id")); err != nil {
		writeServiceError(w, r, h.logger, "delete market", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CloseMarket stops betting on an active market. Admin only.
// POST /api/markets/{id}/close
func (h *MarketHandler) CloseMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerWallet(w, r)
	if !ok {
		return
	}
	m, err := h.markets.CloseMarket(r.Context(), caller, pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "close market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ResolveMarket settles a market. The body names either a side for a binary
// market or an outcome id for a multi-outcome one. Admin only.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerWallet(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, r, h.logger, "resolve market", err)
		return
	}

	id := pathParam(r, "id")
	var (
		st  service.Settlement
		err error
	)
	if req.OutcomeID != "" {
		st, err = h.markets.ResolveMultiOutcomeMarket(r.Context(), caller, id, req.OutcomeID)
	} else {
		st, err = h.markets.ResolveMarket(r.Context(), caller, id, domain.Side(req.Outcome))
	}
	if err != nil {
		writeServiceError(w, r, h.logger, "resolve market", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// AddNews appends a news item. Admin only.
// POST /api/markets/{id}/news
func (h *MarketHandler) AddNews(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerWallet(w, r)
	if !ok {
		return
	}
	var req newsRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, r, h.logger, "add news", err)
		return
	}

	item, err := h.markets.AddNews(r.Context(), caller, pathParam(r, "id"), domain.NewsItem{
		Title: req.Title,
		Body:  req.Body,
		URL:   req.URL,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "add news", err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// AddRule appends a resolution rule. Admin only.
// POST /api/markets/{id}/rules
func (h *MarketHandler) AddRule(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerWallet(w, r)
	if !ok {
		return
	}
	var req ruleRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, r, h.logger, "add rule", err)
		return
	}
	if err := h.markets.AddRule(r.Context(), caller, pathParam(r, "id"), req.Rule); err != nil {
		writeServiceError(w, r, h.logger, "add rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddComment posts a comment as the calling wallet.
// POST /api/markets/{id}/comments
func (h *MarketHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerWallet(w, r)
	if !ok {
		return
	}
	var req commentRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, r, h.logger, "add comment", err)
		return
	}

	c, err := h.markets.AddComment(r.Context(), caller, pathParam(r, "id"), req.Text)
	if err != nil {
		writeServiceError(w, r, h.logger, "add comment", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}
