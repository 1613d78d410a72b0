package controllers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"hotspot-billing/payment"
	"hotspot-billing/web/db"
)

// ProcessPayment handles POST /payment-request-pro from the captive
// portal: initiates the STK push and waits, within the poll bound, for the
// gateway confirmation. The wait suspends only this request's goroutine; a
// portal disconnect cancels it through the request context.
func ProcessPayment(c *gin.Context) {
	var req struct {
		Amount      int    `json:"amount"`
		PhoneNumber string `json:"phone_number"`
		CompanyID   uint   `json:"company_id"`
		RouterID    uint   `json:"router_id"`
		PlanID      uint   `json:"plan_id"`
		MacAddress  string `json:"mac_address"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	outcome, err := payments.ProcessCharge(c.Request.Context(), payment.ChargeParams{
		CompanyID:   req.CompanyID,
		RouterID:    req.RouterID,
		PlanID:      req.PlanID,
		Amount:      req.Amount,
		PhoneNumber: req.PhoneNumber,
		MacAddress:  normalizeMac(req.MacAddress),
	})

	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"status":       "success",
			"message":      "Payment confirmed",
			"reference":    outcome.Reference,
			"voucher_code": outcome.VoucherCode,
		})
	case errors.Is(err, payment.ErrConfirmationTimeout):
		// Not a payment failure: the gateway may still confirm, and the
		// reconciler will issue the voucher then. The subscriber can
		// recover it via /check-transaction.
		c.JSON(http.StatusOK, gin.H{
			"status":  "pending",
			"message": "Payment not confirmed yet. If you completed the payment, check again with your receipt number.",
		})
	default:
		var rejected *payment.ErrGatewayRejected
		if errors.As(err, &rejected) {
			c.JSON(http.StatusOK, gin.H{"status": "failure", "message": rejected.Message})
			return
		}
		log.Println("payment: charge flow failed:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An error occurred while processing the payment request."})
	}
}

// PaymentCallback handles POST /payment: the gateway's asynchronous
// confirmation, persisted verbatim. The poller and the reconciler pick it
// up from the table; nothing else happens inline.
func PaymentCallback(c *gin.Context) {
	var body struct {
		Response struct {
			Amount             int    `json:"Amount"`
			CheckoutRequestID  string `json:"CheckoutRequestID"`
			ExternalReference  string `json:"ExternalReference"`
			MerchantRequestID  string `json:"MerchantRequestID"`
			MpesaReceiptNumber string `json:"MpesaReceiptNumber"`
			Phone              string `json:"Phone"`
			ResultCode         int    `json:"ResultCode"`
			ResultDesc         string `json:"ResultDesc"`
			Status             string `json:"Status"`
		} `json:"response"`
	}
	if err := c.BindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	conf := db.PaymentConfirmation{
		Amount:             body.Response.Amount,
		CheckoutRequestID:  body.Response.CheckoutRequestID,
		ExternalReference:  body.Response.ExternalReference,
		MerchantRequestID:  body.Response.MerchantRequestID,
		MpesaReceiptNumber: body.Response.MpesaReceiptNumber,
		Phone:              body.Response.Phone,
		ResultCode:         body.Response.ResultCode,
		ResultDesc:         body.Response.ResultDesc,
		Status:             body.Response.Status,
	}
	if err := store.CreateConfirmation(&conf); err != nil {
		log.Println("payment: saving confirmation:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save payment data"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Payment data saved successfully"})
}

// ListPayments handles GET /payments for operators.
func ListPayments(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}

	var confs []db.PaymentConfirmation
	err := db.DB.Where("company_id IN ?", []uint{0, operator.CompanyID}).
		Order("created_at DESC").Find(&confs).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch payments data"})
		return
	}
	c.JSON(http.StatusOK, confs)
}

// CheckTransaction handles POST /check-transaction: receipt number in,
// original payment reference (and the voucher code, if one has been
// issued) out. This is the recovery path for subscribers whose poll timed
// out before the gateway confirmed.
func CheckTransaction(c *gin.Context) {
	var req struct {
		MpesaReceiptNumber string `json:"mpesa_receipt_number"`
	}
	if err := c.BindJSON(&req); err != nil || req.MpesaReceiptNumber == "" {
		c.JSON(http.StatusOK, gin.H{"status": "failure", "message": "MpesaReceiptNumber is required"})
		return
	}

	conf, err := store.ConfirmationByReceipt(req.MpesaReceiptNumber)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "failure", "message": "No matching payment found"})
		return
	}

	resp := gin.H{"status": "success", "message": "Transaction found successfully"}
	if pr, err := store.RequestByCheckoutID(conf.CheckoutRequestID); err == nil {
		resp["reference"] = pr.Reference
	}
	if conf.VoucherID != nil {
		if v, err := store.VoucherByID(*conf.VoucherID); err == nil {
			resp["voucher_code"] = v.Code
		}
	}
	c.JSON(http.StatusOK, resp)
}
