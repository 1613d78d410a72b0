package controllers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"hotspot-billing/mikrotik"
	"hotspot-billing/voucher"
	"hotspot-billing/web/db"
)

// RedemptionResult is the captive portal's answer to a redeem attempt.
type RedemptionResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Reason   string `json:"reason,omitempty"`
	Password string `json:"password,omitempty"`
}

// redeemStore is the slice of the store the orchestrator needs.
type redeemStore interface {
	VoucherByCode(code string) (*db.Voucher, error)
	RedemptionFor(voucherID uint, mac string) (*db.VoucherRedemption, error)
	RedeemSlot(voucherID uint, mac, secret string, now time.Time) (*db.Voucher, *db.VoucherRedemption, error)
	MarkProvisioned(redemptionID uint) error
	RouterByID(id uint) (*db.Router, error)
	UpsertClient(c *db.HotspotClient) error
}

type deviceProvisioner interface {
	Provision(ctx context.Context, creds mikrotik.Credentials, user mikrotik.HotspotUser) (mikrotik.Outcome, error)
}

func normalizeMac(mac string) string {
	return strings.ToUpper(strings.TrimSpace(mac))
}

func newDeviceSecret() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// RedeemVoucher composes admission, the store mutation and device
// provisioning into one redemption. The two systems are not covered by a
// transaction: once the slot is committed, a provisioning failure comes
// back as a partial failure and the same voucher+MAC can be re-posted to
// re-drive provisioning without consuming another slot.
func RedeemVoucher(ctx context.Context, s redeemStore, prov deviceProvisioner, routerID uint, code, mac string, now time.Time) RedemptionResult {
	v, err := s.VoucherByCode(code)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return RedemptionResult{Message: "Voucher not found", Reason: voucher.ReasonNotFound}
		}
		return RedemptionResult{Message: "Server error"}
	}

	// A device that already holds a slot retries provisioning, it does not
	// consume a second one. A failed lookup must not fall through to the
	// admission path, that could consume a second slot for the same device.
	red, err := s.RedemptionFor(v.ID, mac)
	if err != nil {
		log.Println("redeem: idempotency lookup failed:", err)
		return RedemptionResult{Message: "Server error"}
	}
	if red != nil {
		return provisionSlot(ctx, s, prov, v, red)
	}

	decision := voucher.Admit(v.AdmissionRecord(), routerID, now)
	if !decision.Admitted {
		return RedemptionResult{Message: rejectionMessage(decision.Reason), Reason: decision.Reason}
	}

	snap, red, err := s.RedeemSlot(v.ID, mac, newDeviceSecret(), now)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrCapacityExceeded):
			return RedemptionResult{Message: rejectionMessage(voucher.ReasonCapacityExceeded), Reason: voucher.ReasonCapacityExceeded}
		case errors.Is(err, db.ErrNotFound):
			return RedemptionResult{Message: "Voucher not found", Reason: voucher.ReasonNotFound}
		default:
			log.Println("redeem: slot mutation failed:", err)
			return RedemptionResult{Message: "Server error"}
		}
	}

	return provisionSlot(ctx, s, prov, snap, red)
}

// provisionSlot pushes the slot's credential to the router and syncs the
// client side table. Idempotent per MAC.
func provisionSlot(ctx context.Context, s redeemStore, prov deviceProvisioner, v *db.Voucher, red *db.VoucherRedemption) RedemptionResult {
	router, err := s.RouterByID(v.RouterID)
	if err != nil {
		log.Printf("redeem: voucher %s bound to unknown router %d", v.Code, v.RouterID)
		return RedemptionResult{
			Message: "Access granted but device provisioning failed: router not found",
			Reason:  "ROUTER_NOT_FOUND",
		}
	}

	user := mikrotik.HotspotUser{
		Name:          red.MacAddress,
		Password:      red.Secret,
		Profile:       profileName(v.PlanValidity),
		ServiceStart:  red.ServiceStart,
		ServiceExpiry: red.ServiceExpiry,
	}
	_, err = prov.Provision(ctx, mikrotik.Credentials{
		Host:     router.IPAddress,
		Username: router.Username,
		Secret:   router.RouterSecret,
	}, user)
	if err != nil {
		// The slot stays consumed; the reconciler or a retry of the same
		// request will re-drive the device.
		log.Printf("redeem: provisioning %s on %s: %v", red.MacAddress, router.RouterName, err)
		return RedemptionResult{
			Message: "Voucher accepted but device provisioning failed, please retry",
			Reason:  "PROVISIONING_FAILED",
		}
	}

	if err := s.MarkProvisioned(red.ID); err != nil {
		log.Println("redeem: marking provisioned:", err)
	}

	if err := s.UpsertClient(&db.HotspotClient{
		MacAddress:    red.MacAddress,
		PlanID:        v.PlanID,
		PlanValidity:  v.PlanValidity,
		ServiceStart:  red.ServiceStart,
		ServiceExpiry: red.ServiceExpiry,
		RouterID:      v.RouterID,
		Password:      red.Secret,
		CompanyID:     v.CompanyID,
	}); err != nil {
		log.Println("redeem: syncing client record:", err)
	}

	return RedemptionResult{
		Success:  true,
		Message:  "Voucher redeemed successfully",
		Password: red.Secret,
	}
}

func rejectionMessage(reason string) string {
	switch reason {
	case voucher.ReasonWrongRouter:
		return "Voucher is not valid on this router"
	case voucher.ReasonCapacityExceeded:
		return "Voucher user limit reached"
	case voucher.ReasonExpired:
		return "Voucher has expired"
	default:
		return "Voucher not found"
	}
}

// Redeem handles POST /redeem from the captive portal.
func Redeem(c *gin.Context) {
	var req struct {
		RouterID    uint   `json:"router_id"`
		VoucherCode string `json:"voucher_code"`
		MacAddress  string `json:"mac_address"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.VoucherCode == "" || req.MacAddress == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "voucher_code and mac_address are required"})
		return
	}

	res := RedeemVoucher(c.Request.Context(), store, provisioner,
		req.RouterID, strings.ToUpper(strings.TrimSpace(req.VoucherCode)), normalizeMac(req.MacAddress), time.Now())
	c.JSON(http.StatusOK, res)
}

// PaymentRedeem handles POST /payment-redeem: the subscriber supplies the
// money transfer receipt, we resolve it to the voucher issued for that
// payment and run the normal redemption.
func PaymentRedeem(c *gin.Context) {
	var req struct {
		MpesaReceipt string `json:"mpesa_receipt"`
		RouterID     uint   `json:"router_id"`
		MacAddress   string `json:"mac_address"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	conf, err := store.ConfirmationByReceipt(strings.TrimSpace(req.MpesaReceipt))
	if err != nil {
		c.JSON(http.StatusOK, RedemptionResult{Message: "No payment found for this receipt"})
		return
	}
	if conf.VoucherID == nil {
		c.JSON(http.StatusOK, RedemptionResult{Message: "Payment found but voucher not issued yet, please try again shortly"})
		return
	}

	v, err := store.VoucherByID(*conf.VoucherID)
	if err != nil {
		c.JSON(http.StatusOK, RedemptionResult{Message: "Voucher for this payment no longer exists"})
		return
	}

	res := RedeemVoucher(c.Request.Context(), store, provisioner,
		req.RouterID, v.Code, normalizeMac(req.MacAddress), time.Now())
	c.JSON(http.StatusOK, res)
}
