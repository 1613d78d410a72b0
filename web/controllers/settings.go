package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm/clause"

	"hotspot-billing/web/db"
)

// GetGatewaySettings handles GET /gateway-settings. The API token is never
// echoed back in full.
func GetGatewaySettings(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	settings, err := store.GatewaySettingsByCompany(operator.CompanyID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Gateway settings not configured"})
		return
	}

	masked := ""
	if n := len(settings.APIToken); n > 4 {
		masked = "****" + settings.APIToken[n-4:]
	}
	c.JSON(http.StatusOK, gin.H{
		"callback_url": settings.CallbackURL,
		"channel_id":   settings.ChannelID,
		"api_token":    masked,
	})
}

// UpsertGatewaySettings handles PUT /gateway-settings: one row per company.
func UpsertGatewaySettings(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}
	if operator.UserType != "admin" {
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
		return
	}

	var req struct {
		CallbackURL string `json:"callback_url"`
		ChannelID   int    `json:"channel_id"`
		APIToken    string `json:"api_token"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.CallbackURL == "" || req.APIToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "callback_url and api_token are required"})
		return
	}

	settings := db.GatewaySettings{
		CompanyID:   operator.CompanyID,
		CallbackURL: req.CallbackURL,
		ChannelID:   req.ChannelID,
		APIToken:    req.APIToken,
	}
	err := db.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "company_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"callback_url", "channel_id", "api_token"}),
	}).Create(&settings).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save gateway settings"})
		return
	}

	recordActivity(c, operator, "Updated gateway settings")
	c.JSON(http.StatusOK, gin.H{"success": true})
}
