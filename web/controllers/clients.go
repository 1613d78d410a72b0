package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hotspot-billing/web/db"
)

// ListClients handles GET /hotspot-clients with optional mac/phone search
// and an active-only filter, scoped to the operator's company.
func ListClients(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	query := db.DB.Where("company_id = ?", operator.CompanyID)
	if mac := c.Query("mac_address"); mac != "" {
		query = query.Where("mac_address = ?", normalizeMac(mac))
	}
	if phone := c.Query("phone_number"); phone != "" {
		query = query.Where("phone_number = ?", phone)
	}
	if routerID := c.Query("router_id"); routerID != "" {
		query = query.Where("router_id = ?", routerID)
	}
	if c.Query("active") == "true" {
		query = query.Where("service_expiry > ?", time.Now())
	}

	var clients []db.HotspotClient
	if err := query.Order("service_expiry DESC").Find(&clients).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch clients"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": clients})
}

func GetClient(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	var client db.HotspotClient
	if err := db.DB.Where("id = ? AND company_id = ?", c.Param("id"), operator.CompanyID).First(&client).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": client})
}

func DeleteClient(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	res := db.DB.Where("id = ? AND company_id = ?", c.Param("id"), operator.CompanyID).Delete(&db.HotspotClient{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete client"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Client deleted successfully"})
}
