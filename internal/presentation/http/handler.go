package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	appCatalog "github.com/Zhima-Mochi/minishop-checkout/internal/application/catalog"
	appOrder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	domainPayment "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	domainProduct "github.com/Zhima-Mochi/minishop-checkout/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

const (
	componentHTTPHandler = "http_server"
	maxBodyBytes         = 1 << 20
)

type Catalog interface {
	List(ctx context.Context) ([]*domainProduct.Product, error)
	Get(ctx context.Context, id string) (*domainProduct.Product, error)
	Create(ctx context.Context, in appCatalog.CreateInput) (*domainProduct.Product, error)
	UpdateDetails(ctx context.Context, in appCatalog.UpdateInput) (*domainProduct.Product, error)
	Delete(ctx context.Context, id string) error
}

type OrderPlacer = application.UseCase[appOrder.PlaceOrderInput, *appOrder.PlaceOrderResult]

type PaymentAudit interface {
	ListAttempts(ctx context.Context, orderID string) ([]domainPayment.Attempt, error)
	ListDiscrepancies(ctx context.Context) ([]domainPayment.Discrepancy, error)
}

type Handler struct {
	catalog  Catalog
	orders   OrderPlacer
	payments PaymentAudit
	log      observability.Logger
	tel      observability.Observability
}

func NewHandler(catalog Catalog, orders OrderPlacer, payments PaymentAudit, logger observability.Logger,
	tel observability.Observability,
) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = tel.Logger()
	}
	return &Handler{
		catalog:  catalog,
		orders:   orders,
		payments: payments,
		log:      baseLogger.With(observability.F("component", componentHTTPHandler)),
		tel:      tel,
	}
}

func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(ObservabilityMiddleware(h.log, h.tel))

	r.Get("/health", h.handleHealth)

	r.Get("/products", h.handleListProducts)
	r.Post("/product", h.handleCreateProduct)
	r.Get("/product/{id}", h.handleGetProduct)
	r.Post("/product/{id}", h.handleUpdateProduct)
	r.Delete("/product/{id}", h.handleDeleteProduct)

	r.Post("/order", h.handlePlaceOrder)
	r.Get("/order/{id}/payments", h.handleListAttempts)
	r.Get("/payments/discrepancies", h.handleListDiscrepancies)
	return r
}

type productResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Stock       int64           `json:"stock"`
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func toProductResponse(p *domainProduct.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		UnitPrice:   p.UnitPrice,
		Stock:       p.Stock,
		Version:     p.Version,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

type createProductRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
	Stock       *int64           `json:"stock"`
}

type updateProductRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
}

type placeOrderRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type placeOrderResponse struct {
	OrderID          string          `json:"order_id"`
	ProductID        string          `json:"product_id"`
	Quantity         int64           `json:"quantity"`
	Amount           decimal.Decimal `json:"amount"`
	RemainingStock   int64           `json:"remaining_stock"`
	AttemptID        string          `json:"attempt_id"`
	BankResponseCode *string         `json:"bank_response_code"`
	State            string          `json:"state"`
}

type attemptResponse struct {
	ID               string          `json:"id"`
	OrderID          string          `json:"order_id"`
	ProductID        string          `json:"product_id"`
	Amount           decimal.Decimal `json:"amount"`
	BankResponseCode *string         `json:"bank_response_code"`
	Outcome          string          `json:"outcome"`
	Reason           string          `json:"reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

type discrepancyResponse struct {
	ID               string          `json:"id"`
	OrderID          string          `json:"order_id"`
	ProductID        string          `json:"product_id"`
	Amount           decimal.Decimal `json:"amount"`
	BankResponseCode *string         `json:"bank_response_code"`
	LateOutcome      string          `json:"late_outcome"`
	RecordedOutcome  string          `json:"recorded_outcome"`
	DetectedAt       time.Time       `json:"detected_at"`
}

type errorResponse struct {
	Error     string   `json:"error"`
	Code      string   `json:"code"`
	Details   []string `json:"details,omitempty"`
	Available *int64   `json:"available,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}
	var missing []string
	if req.UnitPrice == nil {
		missing = append(missing, "unit_price is required")
	}
	if req.Stock == nil {
		missing = append(missing, "stock is required")
	}
	if len(missing) > 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Code: "invalid_request", Details: missing})
		return
	}

	p, err := h.catalog.Create(r.Context(), appCatalog.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		UnitPrice:   *req.UnitPrice,
		Stock:       *req.Stock,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(p))
}

func (h *Handler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req updateProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.UnitPrice == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Code: "invalid_request", Details: []string{"unit_price is required"}})
		return
	}

	p, err := h.catalog.UpdateDetails(r.Context(), appCatalog.UpdateInput{
		ID:          chi.URLParam(r, "id"),
		Name:        req.Name,
		Description: req.Description,
		UnitPrice:   *req.UnitPrice,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *Handler) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}

	res, err := h.orders.Execute(r.Context(), appOrder.PlaceOrderInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, placeOrderResponse{
		OrderID:          res.OrderID,
		ProductID:        res.ProductID,
		Quantity:         res.Quantity,
		Amount:           res.Amount,
		RemainingStock:   res.RemainingStock,
		AttemptID:        res.AttemptID,
		BankResponseCode: res.BankResponseCode,
		State:            res.State.String(),
	})
}

func (h *Handler) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	attempts, err := h.payments.ListAttempts(r.Context(), orderID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if len(attempts) == 0 {
		writeError(w, http.StatusNotFound, "order_not_found", fmt.Errorf("no payment attempts for order %s", orderID))
		return
	}
	out := make([]attemptResponse, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, attemptResponse{
			ID:               a.ID,
			OrderID:          a.OrderID,
			ProductID:        a.ProductID,
			Amount:           a.Amount,
			BankResponseCode: a.BankResponseCode,
			Outcome:          string(a.Outcome),
			Reason:           a.Reason,
			CreatedAt:        a.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleListDiscrepancies(w http.ResponseWriter, r *http.Request) {
	ds, err := h.payments.ListDiscrepancies(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]discrepancyResponse, 0, len(ds))
	for _, d := range ds {
		out = append(out, discrepancyResponse{
			ID:               d.ID,
			OrderID:          d.OrderID,
			ProductID:        d.ProductID,
			Amount:           d.Amount,
			BankResponseCode: d.BankResponseCode,
			LateOutcome:      string(d.LateOutcome),
			RecordedOutcome:  string(d.RecordedOutcome),
			DetectedAt:       d.DetectedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("malformed request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

// writeDomainError maps application errors to status codes. Anything unrecognised is a 500
// with a generic message; the detail goes to the log only.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		outOfStock    *appOrder.OutOfStockError
		paymentFailed *appOrder.PaymentFailedError
	)
	switch {
	case errors.As(err, &outOfStock):
		available := outOfStock.Available
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "out_of_stock", Available: &available})
	case errors.As(err, &paymentFailed):
		writeError(w, http.StatusBadGateway, "payment_failed", err)
	case errors.Is(err, appOrder.ErrProductNotFound), errors.Is(err, domainProduct.ErrNotFound):
		writeError(w, http.StatusNotFound, "product_not_found", err)
	case errors.Is(err, domainProduct.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already_exists", err)
	case errors.Is(err, appOrder.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err)
	case errors.Is(err, domainProduct.ErrNameRequired),
		errors.Is(err, domainProduct.ErrNegativePrice),
		errors.Is(err, domainProduct.ErrNegativeStock):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Code: "invalid_request", Details: messages(err)})
	case errors.Is(err, appOrder.ErrTransient),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "temporarily_unavailable", err)
	default:
		logctx.FromOr(r.Context(), h.log).Error("http_unexpected_error",
			observability.F("route", routePattern(r)),
			observability.F("error", err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", errors.New("internal server error"))
	}
}

// messages flattens a joined validation error into one message per failure.
func messages(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, messages(e)...)
		}
		return out
	}
	return []string{strings.TrimPrefix(err.Error(), "product: ")}
}
