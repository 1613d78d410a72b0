package controllers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"hotspot-billing/web/db"
)

// CreateVouchers handles POST /hotspot-vouchers: bulk issuance of codes
// against one plan on one router. Capacity and validity are copied from the
// plan at this moment.
func CreateVouchers(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	var req struct {
		RouterID uint `json:"router_id"`
		PlanID   uint `json:"plan_id"`
		Count    int  `json:"count"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.Count < 1 || req.Count > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count must be between 1 and 500"})
		return
	}

	plan, err := store.PlanByID(req.PlanID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Plan not found"})
		return
	}
	if _, err := store.RouterByID(req.RouterID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Router not found"})
		return
	}

	vouchers, err := store.CreateVouchers(plan, req.RouterID, operator.CompanyID, req.Count, nil, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create vouchers: " + err.Error()})
		return
	}

	codes := make([]string, len(vouchers))
	for i, v := range vouchers {
		codes[i] = v.Code
	}
	recordActivity(c, operator, fmt.Sprintf("Generated %d vouchers for plan %s", len(codes), plan.PlanName))
	c.JSON(http.StatusCreated, gin.H{"success": true, "codes": codes})
}

// ListVouchers handles GET /hotspot-vouchers with optional router filter,
// always scoped to the operator's company.
func ListVouchers(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	query := db.DB.Where("company_id = ?", operator.CompanyID)
	if routerID := c.Query("router_id"); routerID != "" {
		query = query.Where("router_id = ?", routerID)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var vouchers []db.Voucher
	if err := query.Order("created_at DESC").Find(&vouchers).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch vouchers"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": vouchers})
}

func GetVoucher(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	var v db.Voucher
	if err := db.DB.Where("id = ? AND company_id = ?", c.Param("id"), operator.CompanyID).First(&v).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Voucher not found"})
		return
	}

	var redemptions []db.VoucherRedemption
	db.DB.Where("voucher_id = ?", v.ID).Order("redeemed_at").Find(&redemptions)

	c.JSON(http.StatusOK, gin.H{"voucher": v, "redemptions": redemptions})
}

func DeleteVoucher(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	res := db.DB.Where("id = ? AND company_id = ?", c.Param("id"), operator.CompanyID).Delete(&db.Voucher{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete voucher"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Voucher not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Voucher deleted successfully"})
}

// DeleteUsedVouchers handles DELETE /hotspot-vouchers-used: clears fully
// consumed vouchers for the operator's company.
func DeleteUsedVouchers(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	res := db.DB.Where("company_id = ? AND status = ?", operator.CompanyID, db.VoucherUsed).Delete(&db.Voucher{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete used vouchers"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": res.RowsAffected})
}

// VoucherQRCode handles GET /hotspot-vouchers/:id/qrcode: a PNG of the code
// for printed voucher cards.
func VoucherQRCode(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	var v db.Voucher
	if err := db.DB.Where("id = ? AND company_id = ?", c.Param("id"), operator.CompanyID).First(&v).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Voucher not found"})
		return
	}

	size := 256
	if s := c.Query("size"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 64 && n <= 1024 {
			size = n
		}
	}

	png, err := qrcode.Encode(v.Code, qrcode.Medium, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render QR code"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
