package httpgin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/hdtickets/scout/internal/domain"
	postgresrepo "github.com/hdtickets/scout/internal/repository/postgres"
	redisrepo "github.com/hdtickets/scout/internal/repository/redis"
	"github.com/hdtickets/scout/internal/service"
	"github.com/hdtickets/scout/internal/service/alerts"
	"github.com/hdtickets/scout/internal/service/purchase"
	"github.com/hdtickets/scout/internal/service/query"
	"github.com/hdtickets/scout/internal/service/rotation"
)

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	health *redisrepo.PlatformHealthStore,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/listings", handleSearchListings(svcs))
	r.GET("/listings/:fingerprint", handleGetListing(svcs))
	r.GET("/listings/:fingerprint/prices", handlePriceHistory(svcs))

	r.POST("/alerts", handleCreateAlert(svcs))
	r.GET("/alerts/:id", handleGetAlert(svcs))
	r.GET("/alerts/:id/triggers", handleListTriggers(svcs))
	r.PATCH("/alerts/:id/status", handleUpdateAlertStatus(svcs))
	r.GET("/users/:id/alerts", handleListUserAlerts(svcs))

	r.GET("/queue", handleListQueue(svcs))
	r.POST("/queue", handleAdmitEntry(svcs))
	r.GET("/queue/:id", handleGetQueueEntry(svcs))
	r.POST("/queue/:id/claim", handleClaimEntry(svcs, idem))
	r.POST("/queue/:id/purchased", handleSettleEntry(svcs, domain.QueuePurchased))
	r.POST("/queue/:id/failed", handleSettleEntry(svcs, domain.QueueFailed))

	// Admin-API
	// TODO: add admin middleware
	admin := r.Group("/admin")
	{
		admin.GET("/identities", handleListIdentities(svcs))
		admin.POST("/identities", handleCreateIdentity(svcs))
		admin.POST("/identities/:id/reactivate", handleReactivateIdentity(svcs))
		admin.POST("/scrape/run", handleRunCycle(svcs, logger))
		admin.GET("/platforms/health", handlePlatformHealth(svcs, health))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Search listings
// @Param    platform     query  string  false "platform filter"
// @Param    only         query  string  false "available"
// @Param    high_demand  query  bool    false "only high-demand listings"
// @Param    min_price    query  string  false "minimum price"
// @Param    max_price    query  string  false "maximum price"
// @Param    limit        query  int     false "page size"
// @Param    offset       query  int     false "offset"
// @Success  200  {array}  domain.Listing
// @Router   /listings [get]
func handleSearchListings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := postgresrepo.SearchFilter{
			Platform:       domain.Platform(c.Query("platform")),
			OnlyAvailable:  c.Query("only") == "available" || c.Query("only_available") == "true",
			OnlyHighDemand: c.Query("high_demand") == "true",
			MinPrice:       c.Query("min_price"),
			MaxPrice:       c.Query("max_price"),
			Limit:          parseIntDefault(c.Query("limit"), 50),
			Offset:         parseIntDefault(c.Query("offset"), 0),
		}

		listings, err := svcs.Query.SearchListings(c.Request.Context(), f)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 15s
		writeJSONWithCache(c, http.StatusOK, listings, "public, max-age=15", true)
	}
}

// @Summary  Get listing
// @Param    fingerprint  path  string  true  "Listing fingerprint"
// @Success  200  {object}  domain.Listing
// @Failure  404  {object}  ErrorResponse
// @Router   /listings/{fingerprint} [get]
func handleGetListing(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		l, err := svcs.Query.GetListing(c.Request.Context(), c.Param("fingerprint"))
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 30s
		writeJSONWithCache(c, http.StatusOK, l, "public, max-age=30", true)
	}
}

// @Summary  Price history
// @Param    fingerprint  path   string  true  "Listing fingerprint"
// @Param    limit        query  int     false "max observations"
// @Success  200  {array}  domain.PriceObservation
// @Failure  404  {object}  ErrorResponse
// @Router   /listings/{fingerprint}/prices [get]
func handlePriceHistory(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		obs, err := svcs.Query.PriceHistory(
			c.Request.Context(),
			c.Param("fingerprint"),
			parseIntDefault(c.Query("limit"), 50),
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, obs, "public, max-age=60", true)
	}
}

// @Summary  Create alert
// @Param    req body  CreateAlertRequest true "payload"
// @Success  201 {object} CreateAlertResponse
// @Failure  400 {object} ErrorResponse
// @Router   /alerts [post]
func handleCreateAlert(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateAlertRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		maxPrice := decimal.Zero
		if req.MaxPrice != "" {
			var err error
			maxPrice, err = decimal.NewFromString(req.MaxPrice)
			if err != nil {
				badRequest(c, "invalid max_price")
				return
			}
		}

		a := &domain.Alert{
			UserID:   req.UserID,
			Keyword:  req.Keyword,
			Venue:    req.Venue,
			MaxPrice: maxPrice,
		}
		for _, p := range req.Platforms {
			a.Platforms = append(a.Platforms, domain.Platform(p))
		}

		id, err := svcs.Alerts.Create(c.Request.Context(), a)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateAlertResponse{AlertID: id})
	}
}

// @Summary  Get alert
// @Param    id  path  int  true  "Alert ID"
// @Success  200 {object} domain.Alert
// @Failure  404 {object} ErrorResponse
// @Router   /alerts/{id} [get]
func handleGetAlert(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		alertID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		a, err := svcs.Alerts.Get(c.Request.Context(), alertID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

// @Summary  Alert trigger history
// @Param    id     path   int  true  "Alert ID"
// @Param    limit  query  int  false "max triggers"
// @Success  200 {array} domain.AlertTrigger
// @Router   /alerts/{id}/triggers [get]
func handleListTriggers(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		alertID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		ts, err := svcs.Alerts.Triggers(
			c.Request.Context(),
			alertID,
			parseIntDefault(c.Query("limit"), 50),
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, ts)
	}
}

// @Summary  Pause, resume or expire alert
// @Param    id  path  int  true  "Alert ID"
// @Param    req body  UpdateAlertStatusRequest true "payload"
// @Success  204
// @Failure  404 {object} ErrorResponse
// @Router   /alerts/{id}/status [patch]
func handleUpdateAlertStatus(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		alertID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req UpdateAlertStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		err := svcs.Alerts.SetStatus(
			c.Request.Context(),
			alertID,
			domain.AlertStatus(req.Status),
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  List user alerts
// @Param    id  path  int  true  "User ID"
// @Success  200 {array} domain.Alert
// @Router   /users/{id}/alerts [get]
func handleListUserAlerts(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		as, err := svcs.Alerts.ListByUser(c.Request.Context(), userID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, as)
	}
}

// @Summary  List purchase queue
// @Param    live   query  bool  false "only queued and reserved entries"
// @Param    limit  query  int   false "page size"
// @Param    offset query  int   false "offset"
// @Success  200 {array} domain.QueueEntry
// @Router   /queue [get]
func handleListQueue(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := svcs.Purchase.List(
			c.Request.Context(),
			c.Query("live") == "true",
			parseIntDefault(c.Query("limit"), 50),
			parseIntDefault(c.Query("offset"), 0),
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}

// @Summary  Admit a listing to the purchase queue
// @Param    req body  AdmitRequest true "payload"
// @Success  201 {object} domain.QueueEntry
// @Failure  409 {object} ErrorResponse "listing already queued"
// @Router   /queue [post]
func handleAdmitEntry(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AdmitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		e, err := svcs.Purchase.Admit(c.Request.Context(), req.Fingerprint, req.UserID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, e)
	}
}

// @Summary  Get queue entry
// @Param    id  path  string  true  "Entry ID (uuid)"
// @Success  200 {object} domain.QueueEntry
// @Failure  404 {object} ErrorResponse
// @Router   /queue/{id} [get]
func handleGetQueueEntry(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		entryID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		e, err := svcs.Purchase.Get(c.Request.Context(), entryID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

// @Summary  Claim queue entry (idempotent)
// @Param    id  path  string  true  "Entry ID (uuid)"
// @Param    req body  ClaimRequest true "payload"
// @Header   200 {string} Idempotency-Key "echo"
// @Success  200 {object} ClaimResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "already reserved / idem in progress"
// @Router   /queue/{id}/claim [post]
func handleClaimEntry(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		entryID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req ClaimRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemClaim(entryID.String(), idemKey)

			if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(payload))
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, 60*time.Second)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(payload))
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		e, err := svcs.Purchase.Claim(c.Request.Context(), entryID, req.Claimant)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		resp := claimResponse(e)

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusOK, resp)
	}
}

// @Summary  Settle queue entry
// @Param    id  path  string  true  "Entry ID (uuid)"
// @Success  204
// @Failure  409 {object} ErrorResponse "not reserved"
// @Router   /queue/{id}/purchased [post]
func handleSettleEntry(svcs *service.Services, status domain.QueueStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		entryID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		var err error
		if status == domain.QueuePurchased {
			err = svcs.Purchase.MarkPurchased(c.Request.Context(), entryID)
		} else {
			err = svcs.Purchase.MarkFailed(c.Request.Context(), entryID)
		}
		if err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  List scraping identities
// @Param    platform  query  string  false "platform filter"
// @Success  200 {array} domain.Identity
// @Router   /admin/identities [get]
func handleListIdentities(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		idents, err := svcs.Rotation.Pool(
			c.Request.Context(),
			domain.Platform(c.Query("platform")),
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, idents)
	}
}

// @Summary  Add scraping identity
// @Param    req body  CreateIdentityRequest true "payload"
// @Success  201 {object} CreateIdentityResponse
// @Router   /admin/identities [post]
func handleCreateIdentity(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateIdentityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		purpose := req.Purpose
		if purpose == "" {
			purpose = "scraping"
		}

		id, err := svcs.Rotation.Add(c.Request.Context(), &domain.Identity{
			Platform:  domain.Platform(req.Platform),
			Purpose:   purpose,
			Username:  req.Username,
			UserAgent: req.UserAgent,
			ProxyURL:  req.ProxyURL,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateIdentityResponse{IdentityID: id})
	}
}

// @Summary  Reactivate disabled identity
// @Param    id  path  int  true  "Identity ID"
// @Success  204
// @Failure  404 {object} ErrorResponse
// @Router   /admin/identities/{id}/reactivate [post]
func handleReactivateIdentity(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		identityID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		if err := svcs.Rotation.Reactivate(c.Request.Context(), identityID); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Trigger a scrape cycle
// @Success  202
// @Router   /admin/scrape/run [post]
func handleRunCycle(svcs *service.Services, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// the cycle outlives the request
		go func() {
			if _, err := svcs.Orchestrator.RunCycle(context.Background()); err != nil {
				logger.Error("manual scrape cycle failed", slog.String("error", err.Error()))
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"status": "cycle started"})
	}
}

// @Summary  Platform health
// @Success  200 {array} PlatformHealthResponse
// @Router   /admin/platforms/health [get]
func handlePlatformHealth(svcs *service.Services, health *redisrepo.PlatformHealthStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		out := make([]PlatformHealthResponse, 0, len(domain.AllPlatforms))
		for _, p := range domain.AllPlatforms {
			h, err := health.Health(c.Request.Context(), p)
			if err != nil {
				respondErr(c, err)
				return
			}
			resp := PlatformHealthResponse{
				Platform:    string(p),
				Reliability: h.Reliability,
				Successes:   h.Successes,
				Failures:    h.Failures,
				BreakerOpen: svcs.Orchestrator.BreakerOpen(p),
			}
			if !h.LastFetch.IsZero() {
				resp.LastFetch = h.LastFetch.Format(time.RFC3339)
			}
			out = append(out, resp)
		}
		c.JSON(http.StatusOK, out)
	}
}

// --- Helpers ---

func claimResponse(e *domain.QueueEntry) ClaimResponse {
	resp := ClaimResponse{
		EntryID:     e.ID.String(),
		Fingerprint: e.Fingerprint,
		Status:      string(e.Status),
		ReservedBy:  e.ReservedBy,
	}
	if e.ReservedUntil != nil {
		resp.ReservedUntil = e.ReservedUntil.Format(time.RFC3339)
	}
	return resp
}

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	// query service
	case errors.Is(err, query.ErrListingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "listing not found"})
		return
	// alerts service
	case errors.Is(err, alerts.ErrAlertNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "alert not found"})
		return
	case errors.Is(err, alerts.ErrInvalidAlert):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid alert definition"})
		return
	// purchase service
	case errors.Is(err, purchase.ErrEntryNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "queue entry not found"})
		return
	case errors.Is(err, purchase.ErrDuplicateAdmission):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "listing already queued"})
		return
	case errors.Is(err, purchase.ErrAlreadyReserved):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "entry already reserved"})
		return
	case errors.Is(err, purchase.ErrInvalidTransition):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "invalid queue transition"})
		return
	// rotation service
	case errors.Is(err, rotation.ErrIdentityNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "identity not found"})
		return
	case errors.Is(err, rotation.ErrNoIdentityAvailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "no identity available"})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
