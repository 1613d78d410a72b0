package controllers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"hotspot-billing/ippool"
	"hotspot-billing/web/db"
)

func CreateIPPool(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	var req struct {
		Name     string `json:"name"`
		Ranges   string `json:"ranges"`
		RouterID uint   `json:"router_id"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if _, err := ippool.ParseRanges(req.Ranges); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pool := db.IPPool{
		Name:      req.Name,
		Ranges:    req.Ranges,
		RouterID:  req.RouterID,
		CompanyID: operator.CompanyID,
	}
	if err := db.DB.Create(&pool).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create IP pool"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": pool})
}

func ListIPPools(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	var pools []db.IPPool
	if err := db.DB.Where("company_id = ?", operator.CompanyID).Find(&pools).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch IP pools"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": pools})
}

func DeleteIPPool(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	res := db.DB.Where("id = ? AND company_id = ?", c.Param("id"), operator.CompanyID).Delete(&db.IPPool{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete IP pool"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "IP pool not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "IP pool deleted successfully"})
}

// FreeIPs handles GET /ip-pools/:id/free-ips: reads the router's current
// DHCP leases over SSH, subtracts them from the pool's ranges and returns
// what remains.
func FreeIPs(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	var pool db.IPPool
	if err := db.DB.Where("id = ? AND company_id = ?", c.Param("id"), operator.CompanyID).First(&pool).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "IP pool not found"})
		return
	}

	ranges, err := ippool.ParseRanges(pool.Ranges)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Stored pool definition is invalid: " + err.Error()})
		return
	}

	router, err := store.RouterByID(pool.RouterID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Router not found"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 20*time.Second)
	defer cancel()
	leased, err := provisioner.LeasedAddresses(ctx, routerCreds(router))
	if err != nil {
		log.Printf("ippools: reading leases from %s: %v", router.RouterName, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to read leases from router"})
		return
	}

	alloc := ippool.NewAllocator(ranges)
	for _, addr := range leased {
		if err := alloc.MarkUsed(addr); err != nil {
			log.Printf("ippools: skipping lease %q: %v", addr, err)
		}
	}

	limit := 100
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	free := alloc.FreeAddrs(limit)
	next, _ := alloc.NextFree()
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"next_free": next,
		"free_ips":  free,
		"leased":    len(leased),
	})
}
