package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hotspot-billing/web/db"
)

func CreateRouter(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	var req struct {
		RouterName   string `json:"router_name"`
		IPAddress    string `json:"ip_address"`
		Username     string `json:"username"`
		RouterSecret string `json:"router_secret"`
		Description  string `json:"description"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.RouterName == "" || req.IPAddress == "" || req.Username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "router_name, ip_address and username are required"})
		return
	}

	router := db.Router{
		RouterName:   req.RouterName,
		IPAddress:    req.IPAddress,
		Username:     req.Username,
		RouterSecret: req.RouterSecret,
		Description:  req.Description,
		CompanyID:    operator.CompanyID,
	}
	if err := db.DB.Create(&router).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create router"})
		return
	}
	recordActivity(c, operator, "Added router "+router.RouterName)
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": router})
}

func ListRouters(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	var routers []db.Router
	if err := db.DB.Where("company_id = ?", operator.CompanyID).Find(&routers).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch routers"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": routers})
}

func UpdateRouter(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	var router db.Router
	if err := db.DB.Where("id = ? AND company_id = ?", c.Param("id"), operator.CompanyID).First(&router).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Router not found"})
		return
	}

	var req struct {
		RouterName   *string `json:"router_name"`
		IPAddress    *string `json:"ip_address"`
		Username     *string `json:"username"`
		RouterSecret *string `json:"router_secret"`
		Description  *string `json:"description"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if req.RouterName != nil {
		router.RouterName = *req.RouterName
	}
	if req.IPAddress != nil {
		router.IPAddress = *req.IPAddress
	}
	if req.Username != nil {
		router.Username = *req.Username
	}
	if req.RouterSecret != nil {
		router.RouterSecret = *req.RouterSecret
	}
	if req.Description != nil {
		router.Description = *req.Description
	}

	if err := db.DB.Save(&router).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update router"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": router})
}

func DeleteRouter(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	res := db.DB.Where("id = ? AND company_id = ?", c.Param("id"), operator.CompanyID).Delete(&db.Router{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete router"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Router not found"})
		return
	}
	recordActivity(c, operator, "Deleted router "+c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Router deleted successfully"})
}

// TestRouter handles POST /routers/:id/test: runs a harmless identity print
// over SSH to verify the stored credentials reach the device.
func TestRouter(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	var router db.Router
	if err := db.DB.Where("id = ? AND company_id = ?", c.Param("id"), operator.CompanyID).First(&router).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Router not found"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()
	if err := provisioner.Ping(ctx, routerCreds(&router)); err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "Router unreachable: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Router reachable"})
}
