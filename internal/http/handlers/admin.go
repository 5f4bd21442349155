package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mosegray/recordvault/internal/cache"
	"github.com/mosegray/recordvault/internal/config"
	"github.com/mosegray/recordvault/internal/domain/user"
)

type UserLister interface {
	List(ctx context.Context) ([]user.User, error)
	Count(ctx context.Context) (int, error)
}

// AdminHandler serves the dashboard endpoints. Both sit behind
// RequireAuth + RequireRole("admin").
type AdminHandler struct {
	users UserLister
	// counts change slowly; a short TTL keeps dashboard polling off the DB
	countCache *cache.Cache
}

func NewAdminHandler(users UserLister) *AdminHandler {
	return &AdminHandler{
		users:      users,
		countCache: cache.New(5 * time.Second),
	}
}

func (h *AdminHandler) ListUsers(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	users, err := h.users.List(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not list users")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"users": users})
}

func (h *AdminHandler) UserCount(ctx *gin.Context) {
	if v, ok := h.countCache.Get("user_count"); ok {
		if total, ok := v.(int); ok {
			ctx.JSON(http.StatusOK, gin.H{"totalUsers": total})
			return
		}
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	total, err := h.users.Count(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not count users")
		return
	}

	h.countCache.Set("user_count", total)

	ctx.JSON(http.StatusOK, gin.H{"totalUsers": total})
}
