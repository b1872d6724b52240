package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-seckill-orders.git/internal/seckill"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type SeckillHandler struct {
	Service *seckill.Service
	Log     *zap.Logger
}

type seckillResp struct {
	OrderID int64 `json:"order_id,string"`
}

func (h *SeckillHandler) Register(r *chi.Mux) {
	r.Post("/vouchers/{id}/seckill", h.seckill)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (h *SeckillHandler) seckill(w http.ResponseWriter, r *http.Request) {
	voucherID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid voucher id")
		return
	}
	// Authenticated buyer identity, issued upstream; trusted as given.
	userID, err := strconv.ParseInt(r.Header.Get("X-User-Id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	orderID, err := h.Service.Admit(ctx, voucherID, userID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, seckillResp{OrderID: orderID})
	case errors.Is(err, seckill.ErrVoucherNotFound):
		writeError(w, http.StatusNotFound, "voucher not found")
	case errors.Is(err, seckill.ErrSaleNotStarted):
		writeError(w, http.StatusBadRequest, "sale has not started")
	case errors.Is(err, seckill.ErrSaleEnded):
		writeError(w, http.StatusBadRequest, "sale has ended")
	case errors.Is(err, seckill.ErrStockExhausted):
		writeError(w, http.StatusConflict, "stock exhausted")
	case errors.Is(err, seckill.ErrDuplicatePurchase):
		writeError(w, http.StatusConflict, "already purchased")
	default:
		h.Log.Error("admission failed", zap.Int64("voucher_id", voucherID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
