package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-seckill-orders.git/internal/cache"
	"github.com/ariefcatur/go-seckill-orders.git/internal/orders"
	"github.com/ariefcatur/go-seckill-orders.git/internal/redisx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ShopHandler serves shop reads through the cache layer. The mutex strategy
// keeps a hot shop's expiry from stampeding the record store; misses for
// nonexistent ids are negative-cached.
type ShopHandler struct {
	Cache *cache.Client
	Repo  *orders.ShopRepo
	Log   *zap.Logger
}

func (h *ShopHandler) Register(r *chi.Mux) {
	r.Get("/shops/{id}", h.getShop)
	r.Put("/shops/{id}", h.updateShop)
}

func (h *ShopHandler) getShop(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid shop id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyShopCache, id)
	shop, err := cache.GetWithMutex(ctx, h.Cache, key, redisx.TTLShopCache,
		func(ctx context.Context) (*orders.Shop, error) {
			return h.Repo.GetByID(ctx, id)
		})
	if errors.Is(err, cache.ErrNotFound) {
		writeError(w, http.StatusNotFound, "shop not found")
		return
	}
	if err != nil {
		h.Log.Error("shop lookup failed", zap.Int64("shop_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, shop)
}

// updateShop writes the record first, then invalidates the cache entry so the
// next read rebuilds from the fresh row.
func (h *ShopHandler) updateShop(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid shop id")
		return
	}

	var shop orders.Shop
	if err := json.NewDecoder(r.Body).Decode(&shop); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	shop.ID = id

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Repo.Update(ctx, &shop); err != nil {
		h.Log.Error("shop update failed", zap.Int64("shop_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.Cache.Delete(ctx, fmt.Sprintf(redisx.KeyShopCache, id)); err != nil {
		h.Log.Warn("shop cache invalidation failed", zap.Int64("shop_id", id), zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}
