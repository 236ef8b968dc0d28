package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmehra2102/food-order-platform/internal/order/domain"
	"github.com/dmehra2102/food-order-platform/pkg/httpx"
)

var errorMapping = []struct {
	err    error
	code   string
	status int
}{
	{domain.ErrInvalidRequest, "invalid_request", http.StatusBadRequest},
	{domain.ErrUserNotFound, "user_not_found", http.StatusNotFound},
	{domain.ErrOrderNotFound, "order_not_found", http.StatusNotFound},
	{domain.ErrPricingUnavailable, "pricing_unavailable", http.StatusUnprocessableEntity},
	{domain.ErrAccessDenied, "forbidden", http.StatusForbidden},
	{domain.ErrInvalidTransition, "invalid_transition", http.StatusConflict},
	{domain.ErrDependencyUnavailable, "dependency_unavailable", http.StatusServiceUnavailable},
}

// writeError maps workflow errors onto the error envelope. Unknown errors are
// logged and reported without detail.
func writeError(ctx context.Context, log *slog.Logger, w http.ResponseWriter, err error) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			msg := err.Error()
			if m.status == http.StatusForbidden {
				msg = "access denied"
			}
			httpx.WriteError(ctx, w, httpx.NewError(m.code, msg, m.status))
			return
		}
	}
	log.ErrorContext(ctx, "request failed", "err", err)
	httpx.WriteError(ctx, w, httpx.NewError("internal", "internal server error", http.StatusInternalServerError))
}
