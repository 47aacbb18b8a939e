package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"allocation-service/internal/models"
	"allocation-service/internal/service"
	"allocation-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	allocations  *service.AllocationService
	reservations *service.ReservationService
	vouchers     *service.VoucherService
	transfers    *service.TransferService
	cases        *service.CaseService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	allocations *service.AllocationService,
	reservations *service.ReservationService,
	vouchers *service.VoucherService,
	transfers *service.TransferService,
	cases *service.CaseService,
) *Handler {
	return &Handler{
		allocations:  allocations,
		reservations: reservations,
		vouchers:     vouchers,
		transfers:    transfers,
		cases:        cases,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/allocations", h.createAllocation)
		v1.GET("/allocations/:id", h.getAllocation)
		v1.POST("/allocations/:id/release", h.releaseAllocation)
		v1.POST("/allocations/:id/close", h.closeAllocation)
		v1.POST("/allocations/:id/adjust", h.adjustAllocation)
		v1.PUT("/allocations/:id/constraints", h.upsertConstraints)

		v1.GET("/audit/:entity_type/:id", h.getAuditTrail)
		v1.GET("/customers/:id/vouchers", h.listCustomerVouchers)

		v1.POST("/reservations", h.createReservation)
		v1.GET("/reservations/:id", h.getReservation)
		v1.POST("/reservations/:id/cancel", h.cancelReservation)
		v1.POST("/reservations/:id/convert", h.convertReservation)

		v1.POST("/vouchers/issue", h.issueVouchers)
		v1.GET("/vouchers/:id", h.getVoucher)
		v1.POST("/vouchers/:id/lock", h.lockVoucher)
		v1.POST("/vouchers/:id/redeem", h.redeemVoucher)
		v1.POST("/vouchers/:id/cancel", h.cancelVoucher)
		v1.POST("/vouchers/:id/suspend", h.suspendVoucher)
		v1.POST("/vouchers/:id/unsuspend", h.unsuspendVoucher)

		v1.POST("/transfers", h.initiateTransfer)
		v1.GET("/transfers/:id", h.getTransfer)
		v1.POST("/transfers/:id/accept", h.acceptTransfer)
		v1.POST("/transfers/:id/cancel", h.cancelTransfer)

		v1.GET("/cases/:id/integrity", h.checkCaseIntegrity)
	}
}

// actor extracts the acting user from the request. Every mutating call
// threads it through explicitly; there is no ambient auth context.
func actor(c *gin.Context) string {
	if a := c.GetHeader("X-Actor"); a != "" {
		return a
	}
	return "anonymous"
}

// errStatus maps domain failures to HTTP statuses.
func errStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrAllocationNotFound),
		errors.Is(err, models.ErrReservationNotFound),
		errors.Is(err, models.ErrVoucherNotFound),
		errors.Is(err, models.ErrTransferNotFound),
		errors.Is(err, models.ErrCaseNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInsufficientSupply),
		errors.Is(err, models.ErrNotConsumable),
		errors.Is(err, models.ErrConstraintsLocked),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrTransferAlreadyPending),
		errors.Is(err, models.ErrTransferExpired),
		errors.Is(err, models.ErrNotTradable),
		errors.Is(err, models.ErrSaleNotPermitted),
		errors.Is(err, models.ErrSupplyFormMismatch),
		errors.Is(err, models.ErrCaseBroken),
		errors.Is(err, models.ErrImmutableField):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(errStatus(err), gin.H{"error": err.Error()})
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) createAllocation(c *gin.Context) {
	var req service.CreateAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	alloc, err := h.allocations.CreateAllocation(c.Request.Context(), &req, actor(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, alloc)
}

func (h *Handler) getAllocation(c *gin.Context) {
	view, err := h.allocations.GetAllocation(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) releaseAllocation(c *gin.Context) {
	if err := h.allocations.Release(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "active"})
}

func (h *Handler) closeAllocation(c *gin.Context) {
	if err := h.allocations.Close(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

func (h *Handler) adjustAllocation(c *gin.Context) {
	var req struct {
		Delta  int    `json:"delta" binding:"required"`
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	alloc, err := h.allocations.AdjustTotalQuantity(c.Request.Context(), c.Param("id"), req.Delta, actor(c), req.Reason)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, alloc)
}

func (h *Handler) upsertConstraints(c *gin.Context) {
	var req service.ConstraintsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.allocations.UpsertConstraints(c.Request.Context(), c.Param("id"), &req, actor(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (h *Handler) getAuditTrail(c *gin.Context) {
	events, err := h.allocations.AuditTrail(c.Request.Context(), c.Param("entity_type"), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *Handler) listCustomerVouchers(c *gin.Context) {
	vouchers, err := h.vouchers.ListByCustomer(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vouchers": vouchers})
}

func (h *Handler) createReservation(c *gin.Context) {
	var req service.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	reservation, err := h.reservations.Reserve(c.Request.Context(), &req, actor(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reservation)
}

func (h *Handler) getReservation(c *gin.Context) {
	reservation, err := h.reservations.GetReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservation)
}

func (h *Handler) cancelReservation(c *gin.Context) {
	if err := h.reservations.Cancel(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (h *Handler) convertReservation(c *gin.Context) {
	if err := h.reservations.Convert(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "converted"})
}

func (h *Handler) issueVouchers(c *gin.Context) {
	var req service.IssueVouchersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	resp, err := h.vouchers.IssueVouchers(c.Request.Context(), &req, actor(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) getVoucher(c *gin.Context) {
	voucher, err := h.vouchers.GetVoucher(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, voucher)
}

func (h *Handler) lockVoucher(c *gin.Context) {
	if err := h.vouchers.LockForFulfillment(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lifecycle_state": "locked"})
}

func (h *Handler) redeemVoucher(c *gin.Context) {
	if err := h.vouchers.Redeem(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lifecycle_state": "redeemed"})
}

func (h *Handler) cancelVoucher(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.vouchers.Cancel(c.Request.Context(), c.Param("id"), req.Reason, actor(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lifecycle_state": "cancelled"})
}

func (h *Handler) suspendVoucher(c *gin.Context) {
	var req struct {
		Reason     string `json:"reason"`
		TradingRef string `json:"trading_ref"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	var err error
	if req.TradingRef != "" {
		err = h.vouchers.SuspendForTrading(c.Request.Context(), c.Param("id"), req.TradingRef, actor(c))
	} else {
		err = h.vouchers.Suspend(c.Request.Context(), c.Param("id"), req.Reason, actor(c))
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suspended": true})
}

func (h *Handler) unsuspendVoucher(c *gin.Context) {
	if err := h.vouchers.Unsuspend(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suspended": false})
}

func (h *Handler) initiateTransfer(c *gin.Context) {
	var req service.InitiateTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	transfer, err := h.transfers.Initiate(c.Request.Context(), &req, actor(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, transfer)
}

func (h *Handler) getTransfer(c *gin.Context) {
	transfer, err := h.transfers.GetTransfer(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, transfer)
}

func (h *Handler) acceptTransfer(c *gin.Context) {
	transfer, err := h.transfers.Accept(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, transfer)
}

func (h *Handler) cancelTransfer(c *gin.Context) {
	if err := h.transfers.Cancel(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (h *Handler) checkCaseIntegrity(c *gin.Context) {
	report, err := h.cases.CheckIntegrity(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
