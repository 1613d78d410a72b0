package controllers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hotspot-billing/mikrotik"
	"hotspot-billing/web/db"
)

// profileName maps a validity in hours to the router-side user profile
// name. Vouchers carry the validity, not the plan, so the mapping must be
// derivable from the hours alone.
func profileName(validityHours int) string {
	return fmt.Sprintf("%dhours", validityHours)
}

func routerCreds(r *db.Router) mikrotik.Credentials {
	return mikrotik.Credentials{Host: r.IPAddress, Username: r.Username, Secret: r.RouterSecret}
}

// syncPlanProfile pushes the plan's user profile to its router. Plan writes
// only persist after the router has the matching profile, otherwise vouchers
// would reference a profile the hotspot cannot resolve.
func syncPlanProfile(c *gin.Context, plan *db.HotspotPlan) bool {
	router, err := store.RouterByID(plan.RouterID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Router not found"})
		return false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 20*time.Second)
	defer cancel()
	if err := provisioner.EnsureProfile(ctx, routerCreds(router), plan.ProfileName(), plan.SharedUsers, plan.Bandwidth); err != nil {
		log.Printf("plans: syncing profile %s on %s: %v", plan.ProfileName(), router.RouterName, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to configure profile on router"})
		return false
	}
	return true
}

func CreatePlan(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	var req struct {
		PlanName     string `json:"plan_name"`
		PlanPrice    int    `json:"plan_price"`
		Bandwidth    int    `json:"bandwidth"`
		SharedUsers  int    `json:"shared_users"`
		PlanValidity int    `json:"plan_validity"`
		RouterID     uint   `json:"router_id"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.PlanValidity < 1 || req.SharedUsers < 1 || req.Bandwidth < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "plan_validity, shared_users and bandwidth must be positive"})
		return
	}

	plan := db.HotspotPlan{
		PlanName:     req.PlanName,
		PlanPrice:    req.PlanPrice,
		Bandwidth:    req.Bandwidth,
		SharedUsers:  req.SharedUsers,
		PlanValidity: req.PlanValidity,
		RouterID:     req.RouterID,
		CompanyID:    operator.CompanyID,
	}

	if !syncPlanProfile(c, &plan) {
		return
	}

	if err := db.DB.Create(&plan).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create plan"})
		return
	}
	recordActivity(c, operator, "Added plan "+plan.PlanName)
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": plan})
}

func ListPlans(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	query := db.DB.Where("company_id = ?", operator.CompanyID)
	if routerID := c.Query("router_id"); routerID != "" {
		query = query.Where("router_id = ?", routerID)
	}

	var plans []db.HotspotPlan
	if err := query.Order("plan_price").Find(&plans).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch plans"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": plans})
}

// PortalPlans handles GET /portal-plans/:routerID for the captive portal:
// unauthenticated, price list only.
func PortalPlans(c *gin.Context) {
	var plans []db.HotspotPlan
	if err := db.DB.Where("router_id = ?", c.Param("routerID")).Order("plan_price").Find(&plans).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch plans"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": plans})
}

func UpdatePlan(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	var plan db.HotspotPlan
	if err := db.DB.Where("id = ? AND company_id = ?", c.Param("id"), operator.CompanyID).First(&plan).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Plan not found"})
		return
	}

	var req struct {
		PlanName     *string `json:"plan_name"`
		PlanPrice    *int    `json:"plan_price"`
		Bandwidth    *int    `json:"bandwidth"`
		SharedUsers  *int    `json:"shared_users"`
		PlanValidity *int    `json:"plan_validity"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if req.PlanName != nil {
		plan.PlanName = *req.PlanName
	}
	if req.PlanPrice != nil {
		plan.PlanPrice = *req.PlanPrice
	}
	if req.Bandwidth != nil {
		plan.Bandwidth = *req.Bandwidth
	}
	if req.SharedUsers != nil {
		plan.SharedUsers = *req.SharedUsers
	}
	if req.PlanValidity != nil {
		plan.PlanValidity = *req.PlanValidity
	}

	if !syncPlanProfile(c, &plan) {
		return
	}

	if err := db.DB.Save(&plan).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update plan"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": plan})
}

func DeletePlan(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	res := db.DB.Where("id = ? AND company_id = ?", c.Param("id"), operator.CompanyID).Delete(&db.HotspotPlan{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete plan"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Plan not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Plan deleted successfully"})
}
