package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"hotspot-billing/web/db"
)

// Status handles GET /status: server health plus a few fleet counters for
// the dashboard.
func Status(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	cpuPercent, _ := cpu.Percent(time.Second, false)
	vm, _ := mem.VirtualMemory()
	uptime, _ := host.Uptime()

	var routers, vouchers, activeClients int64
	db.DB.Model(&db.Router{}).Where("company_id = ?", operator.CompanyID).Count(&routers)
	db.DB.Model(&db.Voucher{}).Where("company_id = ? AND status = ?", operator.CompanyID, db.VoucherUnused).Count(&vouchers)
	db.DB.Model(&db.HotspotClient{}).Where("company_id = ? AND service_expiry > ?", operator.CompanyID, time.Now()).Count(&activeClients)

	status := gin.H{
		"service":         "hotspot-billing",
		"uptime_seconds":  uptime,
		"routers":         routers,
		"unused_vouchers": vouchers,
		"active_clients":  activeClients,
	}
	if len(cpuPercent) > 0 {
		status["cpu_percent"] = cpuPercent[0]
	}
	if vm != nil {
		status["mem_percent"] = vm.UsedPercent
	}
	c.JSON(http.StatusOK, status)
}
