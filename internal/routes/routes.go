package routes

import (
	"net/http"

	"github.com/01moynul/medbooks-golang/internal/authz"
	"github.com/01moynul/medbooks-golang/internal/handlers"
	"github.com/01moynul/medbooks-golang/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRouter(h *handlers.Handlers, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger())

	// --- APPLY THE CORS GUARD ---
	// This must run before any route handler.
	router.Use(middleware.CORSMiddleware(allowedOrigins))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		// --- Ping Route (Public) ---
		v1.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "pong!"})
		})

		// --- Auth Routes (Public) ---
		v1.POST("/auth/register", h.Register)
		v1.POST("/auth/login", h.Login)

		authed := v1.Group("/", middleware.AuthMiddleware(h.Auth))

		// --- Wallet Routes ---
		wallet := authed.Group("/wallet", middleware.Require(authz.WalletUse))
		{
			wallet.GET("", h.GetMyWallet)
			wallet.GET("/transactions", h.GetWalletTransactions)
			wallet.POST("/deposit", h.Deposit)
			wallet.POST("/withdraw", h.Withdraw)
			wallet.GET("/my-withdraw-requests", h.GetMyWithdrawRequests)

			review := wallet.Group("/withdraw-requests", middleware.Require(authz.WithdrawalsReview))
			review.GET("", h.GetWithdrawRequests)
			review.PATCH("/:id/process", h.ProcessWithdrawRequest)
		}

		// --- Payment Routes ---
		payments := authed.Group("/payments")
		{
			payments.POST("", middleware.Require(authz.OrdersPlace), h.CreatePayment)
			payments.GET("", middleware.Require(authz.PaymentsReadAll), h.GetPayments)
			payments.GET("/my-payments", h.GetMyPayments)
			payments.GET("/stats", middleware.Require(authz.PaymentsReadAll), h.GetPaymentStats)
			payments.GET("/order/:orderId", h.GetPaymentByOrder)
			payments.GET("/:id", h.GetPayment)

			settle := payments.Group("/:id", middleware.Require(authz.PaymentsSettle))
			settle.PATCH("/success", h.MarkPaymentSuccess)
			settle.PATCH("/failure", h.MarkPaymentFailure)
			settle.PATCH("/refund", h.RefundPayment)
		}

		// --- Order Routes ---
		orders := authed.Group("/orders")
		{
			orders.POST("", middleware.Require(authz.OrdersPlace), h.CreateOrder)
		orders.GET("", middleware.Require(authz.OrdersReadAll), h.GetOrders)
			orders.GET("/my-orders", h.GetMyOrders)
			orders.GET("/seller-orders", middleware.Require(authz.ListingsSell), h.GetSellerOrders)
			orders.GET("/:id", h.GetOrderDetails)
			orders.PATCH("/:id/cancel", h.CancelOrder)
		orders.PATCH("/:id/status", h.UpdateOrderStatus)
		}

		// --- Listing Routes ---
		listings := authed.Group("/listings")
		{
			listings.POST("", middleware.Require(authz.ListingsSell), h.CreateListing)
			listings.GET("", h.GetListings)
			listings.GET("/:id", h.GetListing)
			listings.PATCH("/:id/approve", middleware.Require(authz.ListingsModerate), h.ApproveListing)
			listings.PATCH("/:id/reject", middleware.Require(authz.ListingsModerate), h.RejectListing)
		}

		// --- Admin: Seller Verification ---
		authed.PATCH("/users/:id/verify-seller", middleware.Require(authz.ListingsModerate), h.VerifySeller)
	}

	return router
}
