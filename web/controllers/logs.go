package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hotspot-billing/web/db"
)

// recordActivity writes an audit line for the current operator. Failures
// are logged server side only, the request that triggered the activity is
// never failed over its audit trail.
func recordActivity(c *gin.Context, operator db.Operator, description string) {
	entry := db.ActivityLog{
		UserType:    operator.UserType,
		IPAddress:   c.ClientIP(),
		Description: description,
		Name:        operator.Name,
		CompanyID:   operator.CompanyID,
		OperatorID:  operator.ID,
	}
	db.DB.Create(&entry)
}

// CreateActivityLog handles POST /activity-logs: dashboard actions that
// only the frontend sees, recorded alongside the server-side entries.
func CreateActivityLog(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	var req struct {
		Description string `json:"description"`
	}
	if err := c.BindJSON(&req); err != nil || req.Description == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "description is required"})
		return
	}

	recordActivity(c, operator, req.Description)
	c.JSON(http.StatusCreated, gin.H{"success": true})
}

func ListActivityLogs(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	var logs []db.ActivityLog
	if err := db.DB.Where("company_id = ?", operator.CompanyID).
		Order("created_at DESC").Limit(500).Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch activity logs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": logs})
}

func ClearActivityLogs(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}
	if operator.UserType != "admin" {
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
		return
	}

	res := db.DB.Where("company_id = ?", operator.CompanyID).Delete(&db.ActivityLog{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear activity logs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": res.RowsAffected})
}
