package payout_batch_controller

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joy095/payouts/logger"
	models "github.com/joy095/payouts/models/payout_batch_models"
	"github.com/joy095/payouts/models/vendor_models"
	"github.com/joy095/payouts/services/payout_batch_service"
	"github.com/joy095/payouts/utils"
	"github.com/shopspring/decimal"
)

type PayoutBatchController struct {
	Service   *payout_batch_service.Service
	Directory vendor_models.Directory
}

func NewPayoutBatchController(service *payout_batch_service.Service, directory vendor_models.Directory) *PayoutBatchController {
	return &PayoutBatchController{Service: service, Directory: directory}
}

// PeriodRequest is the body of the preview and create endpoints. Dates are
// calendar days ("2026-03-01") or RFC 3339 timestamps. A calendar-day end is
// inclusive of that whole day.
type PeriodRequest struct {
	PeriodType   string           `json:"period_type" binding:"required"`
	PeriodStart  string           `json:"period_start" binding:"required"`
	PeriodEnd    string           `json:"period_end" binding:"required"`
	MinThreshold *decimal.Decimal `json:"min_threshold"`
}

const dateLayout = "2006-01-02"

func parseDate(field, raw string) (time.Time, error) {
	for _, layout := range []string{dateLayout, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid %s %q", models.ErrValidation, field, raw)
}

// parseEndDate is parseDate for the upper bound of a range. A calendar day
// covers the whole day, up to the last microsecond Postgres can store.
func parseEndDate(field, raw string) (time.Time, error) {
	t, err := parseDate(field, raw)
	if err != nil {
		return t, err
	}
	if _, err := time.Parse(dateLayout, raw); err == nil {
		t = t.Add(24*time.Hour - time.Microsecond)
	}
	return t, nil
}

func (r PeriodRequest) toInput() (payout_batch_service.PeriodInput, error) {
	periodType, err := models.ParsePeriodType(strings.ToUpper(r.PeriodType))
	if err != nil {
		return payout_batch_service.PeriodInput{}, err
	}
	start, err := parseDate("period_start", r.PeriodStart)
	if err != nil {
		return payout_batch_service.PeriodInput{}, err
	}
	end, err := parseEndDate("period_end", r.PeriodEnd)
	if err != nil {
		return payout_batch_service.PeriodInput{}, err
	}
	return payout_batch_service.PeriodInput{
		PeriodType:   periodType,
		PeriodStart:  start,
		PeriodEnd:    end,
		MinThreshold: r.MinThreshold,
	}, nil
}

func (ctrl *PayoutBatchController) bindPeriod(c *gin.Context) (payout_batch_service.PeriodInput, bool) {
	var req PeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return payout_batch_service.PeriodInput{}, false
	}
	in, err := req.toInput()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return payout_batch_service.PeriodInput{}, false
	}
	return in, true
}

func actorOrAbort(c *gin.Context) (models.Actor, bool) {
	actor, err := utils.GetActorFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return models.Actor{}, false
	}
	return actor, true
}

// PreviewBatch - POST /payout-batches/preview
func (ctrl *PayoutBatchController) PreviewBatch(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	in, ok := ctrl.bindPeriod(c)
	if !ok {
		return
	}

	preview, err := ctrl.Service.PreviewBatch(c.Request.Context(), actor, in)
	if err != nil {
		respondError(c, "PreviewBatch", err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

// CreateBatch - POST /payout-batches
func (ctrl *PayoutBatchController) CreateBatch(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	in, ok := ctrl.bindPeriod(c)
	if !ok {
		return
	}

	summary, err := ctrl.Service.CreateBatch(c.Request.Context(), actor, in)
	if err != nil {
		respondError(c, "CreateBatch", err)
		return
	}
	c.JSON(http.StatusCreated, summary)
}

// ListBatches - GET /payout-batches?status=&period_type=&created_from=&created_to=&page=&limit=
func (ctrl *PayoutBatchController) ListBatches(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	page, err := ctrl.Service.ListBatches(c.Request.Context(), actor, filter)
	if err != nil {
		respondError(c, "ListBatches", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func parseFilter(c *gin.Context) (models.BatchFilter, error) {
	var filter models.BatchFilter
	var err error

	if raw := c.Query("status"); raw != "" {
		if filter.Status, err = models.ParseBatchStatus(strings.ToUpper(raw)); err != nil {
			return filter, err
		}
	}
	if raw := c.Query("period_type"); raw != "" {
		if filter.PeriodType, err = models.ParsePeriodType(strings.ToUpper(raw)); err != nil {
			return filter, err
		}
	}
	if raw := c.Query("created_from"); raw != "" {
		from, err := parseDate("created_from", raw)
		if err != nil {
			return filter, err
		}
		filter.CreatedFrom = &from
	}
	if raw := c.Query("created_to"); raw != "" {
		to, err := parseEndDate("created_to", raw)
		if err != nil {
			return filter, err
		}
		filter.CreatedTo = &to
	}
	if filter.Page, err = utils.QueryInt(c, "page", 1); err != nil {
		return filter, err
	}
	if filter.Limit, err = utils.QueryInt(c, "limit", 20); err != nil {
		return filter, err
	}
	return filter, nil
}

// GetBatch - GET /payout-batches/:batch_id
func (ctrl *PayoutBatchController) GetBatch(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	batchID, err := utils.ParseUUIDParam(c, "batch_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := ctrl.Service.GetBatch(c.Request.Context(), actor, batchID)
	if err != nil {
		respondError(c, "GetBatch", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetBatchPayouts - GET /payout-batches/:batch_id/payouts
func (ctrl *PayoutBatchController) GetBatchPayouts(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	batchID, err := utils.ParseUUIDParam(c, "batch_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payouts, err := ctrl.Service.GetBatchPayouts(c.Request.Context(), actor, batchID)
	if err != nil {
		respondError(c, "GetBatchPayouts", err)
		return
	}
	if payouts == nil {
		payouts = []models.VendorPayout{}
	}
	c.JSON(http.StatusOK, gin.H{"payouts": payouts})
}

// GetBatchLogs - GET /payout-batches/:batch_id/logs
func (ctrl *PayoutBatchController) GetBatchLogs(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	batchID, err := utils.ParseUUIDParam(c, "batch_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logs, err := ctrl.Service.GetBatchLogs(c.Request.Context(), actor, batchID)
	if err != nil {
		respondError(c, "GetBatchLogs", err)
		return
	}
	if logs == nil {
		logs = []models.AuditLogEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// ApproveBatch - POST /payout-batches/:batch_id/approve
func (ctrl *PayoutBatchController) ApproveBatch(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	batchID, err := utils.ParseUUIDParam(c, "batch_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := ctrl.Service.ApproveBatch(c.Request.Context(), actor, batchID)
	if err != nil {
		respondError(c, "ApproveBatch", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// CancelBatch - POST /payout-batches/:batch_id/cancel
func (ctrl *PayoutBatchController) CancelBatch(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	batchID, err := utils.ParseUUIDParam(c, "batch_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	summary, err := ctrl.Service.CancelBatch(c.Request.Context(), actor, batchID, req.Reason)
	if err != nil {
		respondError(c, "CancelBatch", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ProcessBatch - POST /payout-batches/:batch_id/process
// Settles synchronously; the summary carries per-payout outcomes.
func (ctrl *PayoutBatchController) ProcessBatch(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	batchID, err := utils.ParseUUIDParam(c, "batch_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := ctrl.Service.ProcessBatch(c.Request.Context(), actor, batchID)
	if err != nil {
		respondError(c, "ProcessBatch", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// FinalizeBatch - POST /payout-batches/:batch_id/finalize
// Closes a batch left PROCESSING after a settlement outcome was lost.
func (ctrl *PayoutBatchController) FinalizeBatch(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	batchID, err := utils.ParseUUIDParam(c, "batch_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := ctrl.Service.FinalizeBatch(c.Request.Context(), actor, batchID)
	if err != nil {
		respondError(c, "FinalizeBatch", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// RetryPayout - POST /vendor-payouts/:payout_id/retry
func (ctrl *PayoutBatchController) RetryPayout(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	payoutID, err := utils.ParseUUIDParam(c, "payout_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payout, err := ctrl.Service.RetryPayout(c.Request.Context(), actor, payoutID)
	if err != nil {
		respondError(c, "RetryPayout", err)
		return
	}
	c.JSON(http.StatusOK, payout)
}

// GetVendorPayouts - GET /vendors/:vendor_id/payouts
func (ctrl *PayoutBatchController) GetVendorPayouts(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	vendorID, err := utils.ParseUUIDParam(c, "vendor_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := ctrl.Service.GetVendorPayouts(c.Request.Context(), actor, vendorID)
	if err != nil {
		respondError(c, "GetVendorPayouts", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// UpsertBankAccount - PUT /vendors/:vendor_id/bank-account
// Changing the account number clears verification.
func (ctrl *PayoutBatchController) UpsertBankAccount(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	vendorID, err := utils.ParseUUIDParam(c, "vendor_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		BankName        string `json:"bank_name" binding:"required"`
		AccountNumber   string `json:"account_number" binding:"required"`
		AccountName     string `json:"account_name" binding:"required"`
		IFSC            string `json:"ifsc" binding:"required"`
		LinkedAccountID string `json:"linked_account_id"`
		IsVerified      bool   `json:"is_verified"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	account := &vendor_models.VendorBankAccount{
		VendorID:        vendorID,
		TenantID:        actor.TenantID,
		BankName:        req.BankName,
		AccountNumber:   req.AccountNumber,
		AccountName:     req.AccountName,
		IFSC:            strings.ToUpper(req.IFSC),
		LinkedAccountID: req.LinkedAccountID,
		IsVerified:      req.IsVerified,
	}
	if err := ctrl.Directory.UpsertBankAccount(c.Request.Context(), account); err != nil {
		logger.ErrorLogger.Errorf("failed to save bank account for vendor %s: %v", vendorID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save bank account"})
		return
	}

	saved, err := ctrl.Directory.GetBankAccount(c.Request.Context(), actor.TenantID, vendorID)
	if err != nil {
		respondError(c, "GetBankAccount", err)
		return
	}
	logger.InfoLogger.Infof("Bank account for vendor %s updated by %s", vendorID, actor.Name)
	c.JSON(http.StatusOK, saved)
}

// GetBankAccount - GET /vendors/:vendor_id/bank-account
func (ctrl *PayoutBatchController) GetBankAccount(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	vendorID, err := utils.ParseUUIDParam(c, "vendor_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := ctrl.Directory.GetBankAccount(c.Request.Context(), actor.TenantID, vendorID)
	if err != nil {
		respondError(c, "GetBankAccount", err)
		return
	}
	c.JSON(http.StatusOK, account)
}
