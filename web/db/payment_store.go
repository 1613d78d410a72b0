package db

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

func (s *Store) CreatePaymentRequest(req *PaymentRequest) error {
	return s.db.Create(req).Error
}

func (s *Store) RequestByCheckoutID(checkoutID string) (*PaymentRequest, error) {
	var req PaymentRequest
	if err := s.db.Where("checkout_request_id = ?", checkoutID).First(&req).Error; err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

func (s *Store) CreateConfirmation(conf *PaymentConfirmation) error {
	return s.db.Create(conf).Error
}

// ConfirmationByCheckoutID returns nil, nil while the gateway callback has
// not arrived yet; the poller treats that as "keep waiting".
func (s *Store) ConfirmationByCheckoutID(checkoutID string) (*PaymentConfirmation, error) {
	var conf PaymentConfirmation
	err := s.db.Where("checkout_request_id = ?", checkoutID).First(&conf).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conf, nil
}

func (s *Store) ConfirmationByReceipt(receipt string) (*PaymentConfirmation, error) {
	var conf PaymentConfirmation
	if err := s.db.Where("mpesa_receipt_number = ?", receipt).First(&conf).Error; err != nil {
		return nil, notFound(err)
	}
	return &conf, nil
}

// AnnotateConfirmation copies the originating request's reference metadata
// onto the matched confirmation row.
func (s *Store) AnnotateConfirmation(confID uint, req *PaymentRequest) error {
	return s.db.Model(&PaymentConfirmation{}).
		Where("id = ?", confID).
		Updates(map[string]interface{}{
			"company_id":    req.CompanyID,
			"router_id":     req.RouterID,
			"plan_id":       req.PlanID,
			"plan_validity": req.PlanValidity,
		}).Error
}

// LinkVoucher records the voucher issued for a confirmation. The guard on
// voucher_id IS NULL keeps the poller and the reconciler from issuing two
// vouchers for the same payment; whoever loses the race reports it.
func (s *Store) LinkVoucher(confID, voucherID uint) (bool, error) {
	res := s.db.Model(&PaymentConfirmation{}).
		Where("id = ? AND voucher_id IS NULL", confID).
		Update("voucher_id", voucherID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) GatewaySettingsByCompany(companyID uint) (*GatewaySettings, error) {
	var gs GatewaySettings
	if err := s.db.Where("company_id = ?", companyID).First(&gs).Error; err != nil {
		return nil, notFound(err)
	}
	return &gs, nil
}

// DeleteVoucherByID removes a voucher that lost the issuance race before
// anything could reference it.
func (s *Store) DeleteVoucherByID(id uint) error {
	return s.db.Delete(&Voucher{}, id).Error
}

func (s *Store) VoucherByID(id uint) (*Voucher, error) {
	var v Voucher
	if err := s.db.First(&v, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

// OrphanedConfirmations lists confirmed payments that never got a voucher,
// old enough that the request-side poll must have given up on them.
func (s *Store) OrphanedConfirmations(olderThan time.Time) ([]PaymentConfirmation, error) {
	var confs []PaymentConfirmation
	err := s.db.Where("voucher_id IS NULL AND result_code = 0 AND created_at < ?", olderThan).
		Find(&confs).Error
	if err != nil {
		return nil, err
	}
	return confs, nil
}

// UnprovisionedRedemptions lists voucher slots whose device credential never
// reached the router, for the reconciler to re-drive.
func (s *Store) UnprovisionedRedemptions(limit int) ([]VoucherRedemption, error) {
	var reds []VoucherRedemption
	err := s.db.Where("provisioned = ?", false).
		Order("created_at").Limit(limit).Find(&reds).Error
	if err != nil {
		return nil, err
	}
	return reds, nil
}
