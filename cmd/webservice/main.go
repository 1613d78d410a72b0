package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"hotspot-billing/mikrotik"
	"hotspot-billing/payment"
	"hotspot-billing/utils"
	"hotspot-billing/web/controllers"
	"hotspot-billing/web/db"
	"hotspot-billing/web/middleware"
)

func init() {
	utils.LoadEnv()
	db.Connect()
	db.Sync()
}

func main() {
	port := os.Getenv("GIN_PORT")
	if port == "" {
		port = "8080"
	}

	store := db.NewStore(db.DB)
	provisioner := mikrotik.NewProvisioner()
	payments := payment.NewService(store, payment.NewClient())
	controllers.Init(store, provisioner, payments)

	reconciler := payment.NewReconciler(store, payments, provisioner)
	reconciler.Start(context.Background(), time.Minute)

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Cache-Control"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	globalLimiter := middleware.NewRateLimiter(15, time.Minute) // 15 requests/min/IP
	globalLimiter.StartCleanup(10 * time.Minute)

	// Public: operator onboarding and the captive portal surface.
	r.POST("/signup", globalLimiter.Middleware(), controllers.Signup)
	r.POST("/login", globalLimiter.Middleware(), controllers.Login)
	r.POST("/redeem", globalLimiter.Middleware(), controllers.Redeem)
	r.POST("/payment-redeem", globalLimiter.Middleware(), controllers.PaymentRedeem)
	r.POST("/payment-request-pro", globalLimiter.Middleware(), controllers.ProcessPayment)
	r.POST("/check-transaction", globalLimiter.Middleware(), controllers.CheckTransaction)
	r.GET("/portal-plans/:routerID", globalLimiter.Middleware(), controllers.PortalPlans)

	// Gateway callback: no rate limit, the gateway retries are welcome.
	r.POST("/payment", controllers.PaymentCallback)

	// Operator API.
	auth := r.Group("/", middleware.RequireAuth)
	auth.GET("/me", controllers.Me)
	auth.GET("/status", controllers.Status)

	auth.POST("/routers", controllers.CreateRouter)
	auth.GET("/routers", controllers.ListRouters)
	auth.PUT("/routers/:id", controllers.UpdateRouter)
	auth.DELETE("/routers/:id", controllers.DeleteRouter)
	auth.POST("/routers/:id/test", controllers.TestRouter)

	auth.POST("/hotspot-plans", controllers.CreatePlan)
	auth.GET("/hotspot-plans", controllers.ListPlans)
	auth.PUT("/hotspot-plans/:id", controllers.UpdatePlan)
	auth.DELETE("/hotspot-plans/:id", controllers.DeletePlan)

	auth.POST("/hotspot-vouchers", controllers.CreateVouchers)
	auth.GET("/hotspot-vouchers", controllers.ListVouchers)
	auth.GET("/hotspot-vouchers/:id", controllers.GetVoucher)
	auth.GET("/hotspot-vouchers/:id/qrcode", controllers.VoucherQRCode)
	auth.DELETE("/hotspot-vouchers/:id", controllers.DeleteVoucher)
	auth.DELETE("/hotspot-vouchers-used", controllers.DeleteUsedVouchers)

	auth.GET("/hotspot-clients", controllers.ListClients)
	auth.GET("/hotspot-clients/:id", controllers.GetClient)
	auth.DELETE("/hotspot-clients/:id", controllers.DeleteClient)

	auth.GET("/payments", controllers.ListPayments)
	auth.GET("/gateway-settings", controllers.GetGatewaySettings)
	auth.PUT("/gateway-settings", controllers.UpsertGatewaySettings)

	auth.POST("/ip-pools", controllers.CreateIPPool)
	auth.GET("/ip-pools", controllers.ListIPPools)
	auth.GET("/ip-pools/:id/free-ips", controllers.FreeIPs)
	auth.DELETE("/ip-pools/:id", controllers.DeleteIPPool)

	auth.POST("/activity-logs", controllers.CreateActivityLog)
	auth.GET("/activity-logs", controllers.ListActivityLogs)
	auth.DELETE("/activity-logs", controllers.ClearActivityLogs)

	r.Run(":" + port)
}
