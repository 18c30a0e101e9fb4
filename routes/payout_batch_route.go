package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/joy095/payouts/controllers/payout_batch_controller"
	middleware "github.com/joy095/payouts/middlewares"
	"github.com/joy095/payouts/middlewares/auth"
)

// RouteOptions carries what route registration needs beyond the controller.
type RouteOptions struct {
	JWTSecret     []byte
	AdminRoles    []string
	Limits        *middleware.RateLimits
	MutationLimit string
}

// RegisterPayoutBatchRoutes mounts the batch reporting and lifecycle
// surface. Reads are open to any authenticated operator of the tenant;
// mutations need an admin role and are rate limited per operator.
func RegisterPayoutBatchRoutes(r *gin.Engine, ctrl *payout_batch_controller.PayoutBatchController, opts RouteOptions) {
	admin := auth.RequireRole(opts.AdminRoles...)
	limited := func(routeID string) gin.HandlerFunc {
		return opts.Limits.New(opts.MutationLimit, routeID)
	}

	batches := r.Group("/payout-batches")
	batches.Use(auth.AuthMiddleware(opts.JWTSecret))
	{
		batches.GET("", ctrl.ListBatches)
		batches.GET("/:batch_id", ctrl.GetBatch)
		batches.GET("/:batch_id/payouts", ctrl.GetBatchPayouts)
		batches.GET("/:batch_id/logs", ctrl.GetBatchLogs)

		batches.POST("/preview", admin, ctrl.PreviewBatch)
		batches.POST("", admin, limited("createBatch"), ctrl.CreateBatch)
		batches.POST("/:batch_id/approve", admin, limited("approveBatch"), ctrl.ApproveBatch)
		batches.POST("/:batch_id/cancel", admin, limited("cancelBatch"), ctrl.CancelBatch)
		batches.POST("/:batch_id/process", admin, limited("processBatch"), ctrl.ProcessBatch)
		batches.POST("/:batch_id/finalize", admin, limited("finalizeBatch"), ctrl.FinalizeBatch)
	}

	payouts := r.Group("/vendor-payouts")
	payouts.Use(auth.AuthMiddleware(opts.JWTSecret))
	{
		payouts.POST("/:payout_id/retry", admin, limited("retryPayout"), ctrl.RetryPayout)
	}

	vendors := r.Group("/vendors")
	vendors.Use(auth.AuthMiddleware(opts.JWTSecret))
	{
		vendors.GET("/:vendor_id/payouts", ctrl.GetVendorPayouts)
		vendors.GET("/:vendor_id/bank-account", admin, ctrl.GetBankAccount)
		vendors.PUT("/:vendor_id/bank-account", admin, limited("upsertBankAccount"), ctrl.UpsertBankAccount)
	}
}
