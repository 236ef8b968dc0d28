package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/food-order-platform/internal/order/application"
	"github.com/dmehra2102/food-order-platform/internal/order/domain"
	"github.com/dmehra2102/food-order-platform/pkg/auth"
	"github.com/dmehra2102/food-order-platform/pkg/httpx"
)

type Middleware func(http.Handler) http.Handler

type Handler struct {
	log         *slog.Logger
	service     *application.Service
	tracer      trace.Tracer
	authn       Middleware
	idempotency Middleware
}

// NewHandler wires the order API. authn must put an auth.Caller on the
// request context; idempotency may be nil.
func NewHandler(log *slog.Logger, service *application.Service, authn, idempotency Middleware) *Handler {
	return &Handler{
		log:         log,
		service:     service,
		tracer:      otel.Tracer("order-http"),
		authn:       authn,
		idempotency: idempotency,
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.authn)

	r.Route("/orders", func(r chi.Router) {
		if h.idempotency != nil {
			r.With(h.idempotency).Post("/", h.placeOrder)
		} else {
			r.Post("/", h.placeOrder)
		}
		r.Get("/", h.listOrders)
		r.Get("/analytics/summary", h.analyticsSummary)
		r.Get("/{id}", h.getOrder)
		r.Put("/{id}/status", h.updateStatus)
		r.Patch("/{id}/cancel", h.cancelOrder)
	})
	return r
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (auth.Caller, bool) {
	c, ok := auth.CallerFromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
	}
	return c, ok
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PlaceOrder")
	defer span.End()

	c, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req application.PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(ctx, h.log, w, fmt.Errorf("%w: invalid body", domain.ErrInvalidRequest))
		return
	}

	o, err := h.service.PlaceOrder(ctx, c, req)
	if err != nil {
		writeError(ctx, h.log, w, err)
		return
	}
	span.SetAttributes(attribute.Int64("order.id", o.ID))

	w.Header().Set("Location", "/api/orders/"+strconv.FormatInt(o.ID, 10))
	httpx.WriteJSON(w, http.StatusCreated, toDTO(o))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListOrders")
	defer span.End()

	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	orders, err := h.service.ListOrders(ctx, c)
	if err != nil {
		writeError(ctx, h.log, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toDTOs(orders))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, err := orderID(r)
	if err != nil {
		writeError(ctx, h.log, w, err)
		return
	}
	o, err := h.service.GetOrder(ctx, c, id)
	if err != nil {
		writeError(ctx, h.log, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toDTO(o))
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateOrderStatus")
	defer span.End()

	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, err := orderID(r)
	if err != nil {
		writeError(ctx, h.log, w, err)
		return
	}
	status, err := decodeStatus(r.Body)
	if err != nil {
		writeError(ctx, h.log, w, err)
		return
	}

	o, err := h.service.UpdateOrderStatus(ctx, c, id, status)
	if err != nil {
		writeError(ctx, h.log, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toDTO(o))
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CancelOrder")
	defer span.End()

	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, err := orderID(r)
	if err != nil {
		writeError(ctx, h.log, w, err)
		return
	}
	o, err := h.service.CancelOrder(ctx, c, id)
	if err != nil {
		writeError(ctx, h.log, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toDTO(o))
}

func (h *Handler) analyticsSummary(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AnalyticsSummary")
	defer span.End()

	c, ok := h.caller(w, r)
	if !ok {
		return
	}
	from, err := parseTimeParam(r, "from")
	if err != nil {
		writeError(ctx, h.log, w, err)
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		writeError(ctx, h.log, w, err)
		return
	}

	sum, err := h.service.AnalyticsSummary(ctx, c, from, to)
	if err != nil {
		writeError(ctx, h.log, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sum)
}

func orderID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid order id %q", domain.ErrInvalidRequest, raw)
	}
	return id, nil
}

// decodeStatus accepts {"status":"COOKING"} or a bare JSON string.
func decodeStatus(body io.Reader) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("%w: unreadable body", domain.ErrInvalidRequest)
	}
	raw = bytes.TrimSpace(raw)

	var bare string
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare, nil
	}
	var obj struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || strings.TrimSpace(obj.Status) == "" {
		return "", fmt.Errorf("%w: status is required", domain.ErrInvalidRequest)
	}
	return obj.Status, nil
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05"}

func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s must be an ISO-8601 timestamp", domain.ErrInvalidRequest, name)
}
