package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"hotspot-billing/web/db"
)

// ErrGatewayRejected carries the gateway's synchronous refusal; no polling
// happens after it.
type ErrGatewayRejected struct {
	Message string
}

func (e *ErrGatewayRejected) Error() string {
	return "gateway rejected charge: " + e.Message
}

// Charger is the synchronous side of the gateway.
type Charger interface {
	InitiateCharge(ctx context.Context, token string, req ChargeRequest) (*ChargeResponse, error)
}

// Store is what the charge flow needs from the record store.
type Store interface {
	ConfirmationSource

	GatewaySettingsByCompany(companyID uint) (*db.GatewaySettings, error)
	CreatePaymentRequest(req *db.PaymentRequest) error
	RequestByCheckoutID(checkoutID string) (*db.PaymentRequest, error)
	AnnotateConfirmation(confID uint, req *db.PaymentRequest) error
	PlanByID(id uint) (*db.HotspotPlan, error)
	CreateVouchers(plan *db.HotspotPlan, routerID, companyID uint, count int, paymentID *uint, now time.Time) ([]db.Voucher, error)
	LinkVoucher(confID, voucherID uint) (bool, error)
	VoucherByID(id uint) (*db.Voucher, error)
	DeleteVoucherByID(id uint) error
}

// ChargeParams is one subscriber buying one plan for one device.
type ChargeParams struct {
	CompanyID   uint
	RouterID    uint
	PlanID      uint
	Amount      int
	PhoneNumber string
	MacAddress  string
}

// ChargeOutcome is what the captive portal shows the subscriber.
type ChargeOutcome struct {
	Status            string `json:"status"`
	Reference         string `json:"reference"`
	CheckoutRequestID string `json:"checkout_request_id"`
	VoucherCode       string `json:"voucher_code,omitempty"`
	Message           string `json:"message,omitempty"`
}

// Service composes the gateway, the poller and the store into the
// charge-confirm-issue flow.
type Service struct {
	store   Store
	gateway Charger
	poller  *Poller
	now     func() time.Time
}

func NewService(store Store, gateway Charger) *Service {
	return &Service{
		store:   store,
		gateway: gateway,
		poller:  NewPoller(store),
		now:     time.Now,
	}
}

// ProcessCharge runs the whole flow: STK push, request persistence, bounded
// poll, voucher issuance. Returns ErrConfirmationTimeout when the gateway
// stays silent; the request row remains for the reconciler.
func (s *Service) ProcessCharge(ctx context.Context, params ChargeParams) (*ChargeOutcome, error) {
	settings, err := s.store.GatewaySettingsByCompany(params.CompanyID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("no gateway settings for company %d: %w", params.CompanyID, err)
		}
		return nil, err
	}

	plan, err := s.store.PlanByID(params.PlanID)
	if err != nil {
		return nil, err
	}

	resp, err := s.gateway.InitiateCharge(ctx, settings.APIToken, ChargeRequest{
		Amount:            params.Amount,
		PhoneNumber:       params.PhoneNumber,
		ChannelID:         settings.ChannelID,
		Provider:          "m-pesa",
		ExternalReference: fmt.Sprintf("HSP-%d-%d", params.CompanyID, params.PlanID),
		CallbackURL:       settings.CallbackURL,
	})
	if err != nil {
		return nil, err
	}

	req := &db.PaymentRequest{
		Success:           resp.Success,
		Status:            resp.Status,
		Reference:         resp.Reference,
		CheckoutRequestID: resp.CheckoutRequestID,
		Amount:            params.Amount,
		PhoneNumber:       params.PhoneNumber,
		CompanyID:         params.CompanyID,
		RouterID:          params.RouterID,
		PlanID:            params.PlanID,
		PlanValidity:      plan.PlanValidity,
		MacAddress:        params.MacAddress,
	}
	if err := s.store.CreatePaymentRequest(req); err != nil {
		return nil, err
	}

	if !resp.Success || resp.CheckoutRequestID == "" {
		msg := resp.ErrorMessage
		if msg == "" {
			msg = "payment request failed"
		}
		return nil, &ErrGatewayRejected{Message: msg}
	}

	conf, err := s.poller.Await(ctx, resp.CheckoutRequestID)
	if err != nil {
		return nil, err
	}

	// A callback with a non-zero result code is the subscriber cancelling
	// or the charge failing on the gateway side; no money moved, no voucher.
	if conf.ResultCode != 0 {
		msg := conf.ResultDesc
		if msg == "" {
			msg = "payment failed"
		}
		return nil, &ErrGatewayRejected{Message: msg}
	}

	code, err := s.IssueForConfirmation(conf, req)
	if err != nil {
		return nil, err
	}

	return &ChargeOutcome{
		Status:            "success",
		Reference:         resp.Reference,
		CheckoutRequestID: resp.CheckoutRequestID,
		VoucherCode:       code,
	}, nil
}

// IssueForConfirmation annotates a matched confirmation with its request's
// metadata and issues the voucher, with total_users and validity copied
// from the plan as it stands now. Safe to call twice for the same
// confirmation: the voucher_id guard makes the second caller pick up the
// already-issued code instead of minting another voucher.
func (s *Service) IssueForConfirmation(conf *db.PaymentConfirmation, req *db.PaymentRequest) (string, error) {
	if conf.ResultCode != 0 {
		return "", fmt.Errorf("confirmation %d reports failure (%d): %s", conf.ID, conf.ResultCode, conf.ResultDesc)
	}
	if conf.VoucherID != nil {
		v, err := s.store.VoucherByID(*conf.VoucherID)
		if err != nil {
			return "", err
		}
		return v.Code, nil
	}

	if err := s.store.AnnotateConfirmation(conf.ID, req); err != nil {
		return "", err
	}

	plan, err := s.store.PlanByID(req.PlanID)
	if err != nil {
		return "", err
	}

	paymentID := conf.ID
	vouchers, err := s.store.CreateVouchers(plan, req.RouterID, req.CompanyID, 1, &paymentID, s.now())
	if err != nil {
		return "", err
	}
	v := vouchers[0]

	linked, err := s.store.LinkVoucher(conf.ID, v.ID)
	if err != nil {
		return "", err
	}
	if !linked {
		// Lost the race against the reconciler; remove the voucher we just
		// minted so it cannot be redeemed, and hand out the winner's code.
		log.Printf("confirmation %d already linked, discarding voucher %s", conf.ID, v.Code)
		if err := s.store.DeleteVoucherByID(v.ID); err != nil {
			log.Printf("deleting losing voucher %s: %v", v.Code, err)
		}
		fresh, err := s.store.ConfirmationByCheckoutID(conf.CheckoutRequestID)
		if err != nil {
			return "", err
		}
		if fresh != nil && fresh.VoucherID != nil {
			winner, err := s.store.VoucherByID(*fresh.VoucherID)
			if err != nil {
				return "", err
			}
			return winner.Code, nil
		}
		return "", fmt.Errorf("confirmation %d linked but voucher missing", conf.ID)
	}
	return v.Code, nil
}
