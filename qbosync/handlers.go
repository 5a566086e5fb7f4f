package qbosync

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sitelinehq/contractor_backend/config"
	"github.com/sitelinehq/contractor_backend/models"
	"github.com/sitelinehq/contractor_backend/utils"
)

// Handlers exposes the QBO integration over HTTP. All collaborators are
// injected once at startup; nothing here reaches for package-level sync
// state.
type Handlers struct {
	syncer   *Syncer
	tokens   *TokenStore
	conns    ConnectionStore
	runs     SyncRunStore
	syncLogs SyncLogStore

	// publishRun hands a queued run to the worker tier. Swappable so tests
	// can run without Pub/Sub.
	publishRun func(ctx context.Context, runId uint, businessId string, connectionId uint) error

	// lookupUser resolves a session username to its User row. Swappable so
	// tests can run without redis or a database.
	lookupUser func(ctx context.Context, username string) (*models.User, error)
}

func NewHandlers(syncer *Syncer, tokens *TokenStore, conns ConnectionStore, runs SyncRunStore, syncLogs SyncLogStore,
	publishRun func(ctx context.Context, runId uint, businessId string, connectionId uint) error) *Handlers {
	return &Handlers{
		syncer:     syncer,
		tokens:     tokens,
		conns:      conns,
		runs:       runs,
		syncLogs:   syncLogs,
		publishRun: publishRun,
		lookupUser: lookupUserFromStore,
	}
}

// RegisterRoutes mounts the integration surface under group.
func (h *Handlers) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/status", h.Status())
	group.GET("/status/:type/:id", h.EntityStatus())
	group.POST("/connect", h.Connect())
	group.POST("/disconnect", h.Disconnect())
	group.POST("/sync/client", h.SyncClient())
	group.POST("/sync/invoice", h.SyncInvoice())
	group.POST("/sync/invoice-payment", h.SyncInvoicePayment())
	group.POST("/sync/expense", h.SyncExpense())
	group.POST("/sync/expense-payment", h.SyncExpensePayment())
	group.POST("/sync", h.TriggerSync())
	group.GET("/sync/runs", h.SyncRuns())
	group.GET("/sync/runs/:id", h.SyncRunDetail())
	group.POST("/sync/runs/:id/retry", h.RetrySyncRun())
	group.GET("/sync/logs", h.SyncLogs())
}

func (h *Handlers) Status() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := h.resolveBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		status, err := h.syncer.GetSyncStatus(businessId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

func (h *Handlers) EntityStatus() gin.HandlerFunc {
	valid := map[models.LocalEntityType]bool{
		models.LocalEntityClient:         true,
		models.LocalEntityInvoice:        true,
		models.LocalEntityInvoicePayment: true,
		models.LocalEntityExpense:        true,
		models.LocalEntityExpensePayment: true,
		models.LocalEntityVendor:         true,
	}
	return func(c *gin.Context) {
		businessId, err := h.resolveBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		entityType := models.LocalEntityType(c.Param("type"))
		if !valid[entityType] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown entity type"})
			return
		}
		entityId := strings.TrimSpace(c.Param("id"))
		if entityId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "entity id is required"})
			return
		}

		status, err := h.syncer.GetEntitySyncStatus(businessId, entityType, entityId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

func (h *Handlers) Connect() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := h.resolveBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req ConnectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		req.Code = strings.TrimSpace(req.Code)
		req.RealmId = strings.TrimSpace(req.RealmId)
		if err := utils.ValidateStruct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}

		conn, err := h.tokens.ExchangeAuthorizationCode(c.Request.Context(), businessId, req.Code, req.RedirectUri, req.RealmId)
		if err != nil {
			var exchangeErr *OAuthExchangeError
			if errors.As(err, &exchangeErr) {
				c.JSON(http.StatusBadGateway, gin.H{"error": exchangeErr.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, ConnectionResponse{
			Status:     conn.Status,
			RealmId:    conn.RealmId,
			LastSyncAt: formatTime(conn.LastSyncAt),
		})
	}
}

func (h *Handlers) Disconnect() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := h.resolveBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if err := h.conns.Disconnect(businessId); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, ConnectionResponse{Status: models.QboConnectionStatusDisconnected})
	}
}

func (h *Handlers) SyncClient() gin.HandlerFunc {
	return h.syncEntityHandler(func(ctx context.Context, businessId string, id int) (*models.QboEntityReference, error) {
		return h.syncer.SyncClient(ctx, businessId, id)
	})
}

func (h *Handlers) SyncInvoice() gin.HandlerFunc {
	return h.syncEntityHandler(func(ctx context.Context, businessId string, id int) (*models.QboEntityReference, error) {
		return h.syncer.SyncInvoice(ctx, businessId, id)
	})
}

func (h *Handlers) SyncInvoicePayment() gin.HandlerFunc {
	return h.syncEntityHandler(func(ctx context.Context, businessId string, id int) (*models.QboEntityReference, error) {
		return h.syncer.SyncInvoicePayment(ctx, businessId, id)
	})
}

func (h *Handlers) SyncExpense() gin.HandlerFunc {
	return h.syncEntityHandler(func(ctx context.Context, businessId string, id int) (*models.QboEntityReference, error) {
		return h.syncer.SyncExpense(ctx, businessId, id)
	})
}

func (h *Handlers) SyncExpensePayment() gin.HandlerFunc {
	return h.syncEntityHandler(func(ctx context.Context, businessId string, id int) (*models.QboEntityReference, error) {
		return h.syncer.SyncExpensePayment(ctx, businessId, id)
	})
}

func (h *Handlers) syncEntityHandler(sync func(ctx context.Context, businessId string, id int) (*models.QboEntityReference, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := h.resolveBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req SyncEntityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		ref, err := sync(ctx, businessId, req.Id)
		if err != nil {
			writeSyncError(c, err)
			return
		}
		c.JSON(http.StatusOK, SyncEntityResponse{
			EntityType: string(ref.EntityType),
			EntityId:   ref.EntityId,
			QboId:      ref.QboEntityId,
			QboType:    string(ref.QboEntityType),
		})
	}
}

// writeSyncError maps the sync error taxonomy onto HTTP statuses.
func writeSyncError(c *gin.Context, err error) {
	var mappingErr *MappingError
	var refreshErr *TokenRefreshError
	var apiErr *APIError
	var depErr *DependencyError

	switch {
	case errors.Is(err, ErrNoConnection):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
	case errors.As(err, &mappingErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": mappingErr.Error()})
	case errors.As(err, &refreshErr):
		c.JSON(http.StatusConflict, gin.H{"error": "quickbooks authorization expired; reconnect required"})
	case errors.As(err, &depErr):
		// Surface the underlying cause's status, keeping the dependency
		// context in the message.
		writeSyncError(c, depErr.Err)
	case errors.As(err, &apiErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": apiErr.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handlers) TriggerSync() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := h.resolveBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req TriggerSyncRequest
		_ = c.ShouldBindJSON(&req)

		conn, err := h.tokens.Connection(businessId)
		if err != nil {
			if errors.Is(err, ErrNoConnection) {
				c.JSON(http.StatusConflict, gin.H{"error": "quickbooks is not connected"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		triggeredBy := req.TriggeredBy
		if triggeredBy == "" {
			triggeredBy = models.QboSyncTriggeredManual
		}
		run := &models.QboSyncRun{
			BusinessId:   businessId,
			ConnectionId: conn.ID,
			Status:       models.QboSyncRunStatusQueued,
			TriggeredBy:  triggeredBy,
		}
		if err := h.runs.Create(run); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if h.publishRun != nil {
			if err := h.publishRun(c.Request.Context(), run.ID, businessId, conn.ID); err != nil {
				config.LogError(config.GetLogger(), moduleName, "TriggerSync", "publish", run.ID, err)
			}
		}
		c.JSON(http.StatusOK, gin.H{"id": run.ID})
	}
}

func (h *Handlers) SyncRuns() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := h.resolveBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		runs, err := h.runs.List(businessId, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resp := make([]SyncRunResponse, 0, len(runs))
		for _, run := range runs {
			resp = append(resp, mapRunToResponse(run))
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (h *Handlers) SyncRunDetail() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := h.resolveBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		runId, err := strconv.Atoi(c.Param("id"))
		if err != nil || runId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		run, err := h.runs.Get(businessId, uint(runId))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, mapRunToResponse(run))
	}
}

func (h *Handlers) RetrySyncRun() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := h.resolveBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		runId, err := strconv.Atoi(c.Param("id"))
		if err != nil || runId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		parent, err := h.runs.Get(businessId, uint(runId))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if parent.Status != models.QboSyncRunStatusFailed && parent.Status != models.QboSyncRunStatusPartial {
			c.JSON(http.StatusConflict, gin.H{"error": "only failed or partial runs can be retried"})
			return
		}

		conn, err := h.tokens.Connection(businessId)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "quickbooks is not connected"})
			return
		}

		parentId := parent.ID
		run := &models.QboSyncRun{
			BusinessId:   businessId,
			ConnectionId: conn.ID,
			Status:       models.QboSyncRunStatusQueued,
			TriggeredBy:  models.QboSyncTriggeredRetry,
			ParentRunId:  &parentId,
		}
		if err := h.runs.Create(run); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if h.publishRun != nil {
			if err := h.publishRun(c.Request.Context(), run.ID, businessId, conn.ID); err != nil {
				config.LogError(config.GetLogger(), moduleName, "RetrySyncRun", "publish", run.ID, err)
			}
		}
		c.JSON(http.StatusOK, gin.H{"id": run.ID})
	}
}

func (h *Handlers) SyncLogs() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, err := h.resolveBusinessID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		logs, err := h.syncLogs.List(businessId, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resp := make([]SyncLogResponse, 0, len(logs))
		for _, row := range logs {
			resp = append(resp, mapLogToResponse(row))
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (h *Handlers) resolveBusinessID(c *gin.Context) (string, error) {
	username, ok := utils.GetUsernameFromContext(c.Request.Context())
	if !ok || strings.TrimSpace(username) == "" {
		return "", errors.New("unauthorized")
	}

	user, err := h.lookupUser(c.Request.Context(), username)
	if err != nil {
		return "", err
	}

	// Admins may act on any business via the query override; everyone else
	// is pinned to their own.
	if requested := strings.TrimSpace(c.Query("business_id")); requested != "" {
		if user.Role == models.UserRoleAdmin || user.BusinessId == requested {
			return requested, nil
		}
		return "", errors.New("unauthorized")
	}

	businessId := strings.TrimSpace(user.BusinessId)
	if businessId == "" {
		return "", errors.New("business_id is required")
	}
	return businessId, nil
}

func lookupUserFromStore(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return nil, err
	}
	if !exists {
		db := config.GetDB()
		if db == nil {
			return nil, errors.New("db is nil")
		}
		if err := db.WithContext(ctx).
			Model(&models.User{}).
			Where("username = ?", username).
			Take(&user).Error; err != nil {
			return nil, errors.New("unauthorized")
		}
	}
	return &user, nil
}
