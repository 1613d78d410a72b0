package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Voucher status values.
const (
	VoucherUnused = "unused"
	VoucherUsed   = "used"
)

type Company struct {
	gorm.Model
	CompanyName string `gorm:"unique"`
	Username    string `gorm:"unique"`
	Address     string
	PhoneNumber string
}

// Operator is a staff account belonging to a company.
type Operator struct {
	gorm.Model
	Name     string
	Email    string `gorm:"unique"`
	Phone    string
	Password string
	UserType string // "admin" or "operator"

	CompanyID   uint
	CompanyName string

	Active bool
}

// Router is an access concentrator plus the credentials used to reach it
// over its command channel.
type Router struct {
	gorm.Model
	RouterName   string
	IPAddress    string
	Username     string
	RouterSecret string
	Description  string

	CompanyID uint
}

type HotspotPlan struct {
	gorm.Model
	PlanName     string
	PlanPrice    int
	Bandwidth    int // Mbps, both directions
	SharedUsers  int
	PlanValidity int // hours

	RouterID  uint
	CompanyID uint
}

// ProfileName is the name of the matching user profile on the router.
func (p *HotspotPlan) ProfileName() string {
	return fmt.Sprintf("%dhours", p.PlanValidity)
}

// Voucher is a capacity- and time-bounded access credential. PlanValidity
// and TotalUsers are copied from the plan at issue time so later plan edits
// never change vouchers already in the field.
type Voucher struct {
	gorm.Model
	Code string `gorm:"uniqueIndex;size:16"`

	RouterID     uint `gorm:"index"`
	PlanID       uint
	PlanValidity int // hours

	TotalUsers   int
	CurrentUsers int
	Status       string // unused or used

	// Set on first redemption only. Expiry = VoucherStart + PlanValidity hours.
	VoucherStart *time.Time

	// Confirmation that paid for this voucher, when issued through the gateway.
	PaymentID *uint

	CompanyID uint `gorm:"index"`
}

// ExpiresAt returns the end of the service window, or false if the clock
// has not started yet.
func (v *Voucher) ExpiresAt() (time.Time, bool) {
	if v.VoucherStart == nil {
		return time.Time{}, false
	}
	return v.VoucherStart.Add(time.Duration(v.PlanValidity) * time.Hour), true
}

// VoucherRedemption is one consumed slot of a voucher: which device took it,
// when, and the device credential that was (or still must be) pushed to the
// router.
type VoucherRedemption struct {
	gorm.Model
	VoucherID  uint   `gorm:"index"`
	MacAddress string `gorm:"index"`
	RedeemedAt time.Time

	Secret        string
	ServiceStart  time.Time
	ServiceExpiry time.Time

	// False until the router accepted the credential. The reconciler retries
	// rows that stay false.
	Provisioned bool
}

// HotspotClient mirrors the current service state of a device for reporting.
type HotspotClient struct {
	gorm.Model
	MacAddress  string `gorm:"index"`
	PhoneNumber string

	PlanID       uint
	PlanValidity int

	ServiceStart  time.Time
	ServiceExpiry time.Time

	RouterID  uint
	Password  string
	CompanyID uint
}

// PaymentRequest is the synchronous record of a charge sent to the gateway.
type PaymentRequest struct {
	gorm.Model
	Success           bool
	Status            string
	Reference         string
	CheckoutRequestID string `gorm:"uniqueIndex;size:64"`

	Amount      int
	PhoneNumber string

	CompanyID    uint
	RouterID     uint
	PlanID       uint
	PlanValidity int
	MacAddress   string
}

// PaymentConfirmation is the gateway's asynchronous callback row, persisted
// verbatim and later annotated with the originating request's metadata once
// the two are joined on CheckoutRequestID.
type PaymentConfirmation struct {
	gorm.Model
	Amount             int
	CheckoutRequestID  string `gorm:"index;size:64"`
	ExternalReference  string
	MerchantRequestID  string
	MpesaReceiptNumber string `gorm:"index;size:32"`
	Phone              string
	ResultCode         int
	ResultDesc         string
	Status             string

	CompanyID    uint
	RouterID     uint
	PlanID       uint
	PlanValidity int

	// Voucher issued for this payment, nil until issuance.
	VoucherID *uint
}

// GatewaySettings holds the per-company mobile money gateway account.
type GatewaySettings struct {
	gorm.Model
	CompanyID   uint `gorm:"uniqueIndex"`
	CallbackURL string
	ChannelID   int
	APIToken    string
}

// VoucherSequence is the per-router monotonic counter behind voucher code
// numbers. The row is locked FOR UPDATE for the duration of code assignment
// so concurrent issuance cannot hand out the same sequence value.
type VoucherSequence struct {
	RouterID uint `gorm:"primaryKey"`
	NextSeq  int
}

// ActivityLog is an operator-visible audit line.
type ActivityLog struct {
	gorm.Model
	UserType    string
	IPAddress   string
	Description string
	Name        string

	CompanyID  uint `gorm:"index"`
	OperatorID uint
}

// IPPool is a named set of address ranges on a router, e.g.
// "10.5.50.10-10.5.50.250".
type IPPool struct {
	gorm.Model
	Name   string
	Ranges string

	RouterID  uint
	CompanyID uint
}
