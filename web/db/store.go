package db

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hotspot-billing/voucher"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrCapacityExceeded = errors.New("voucher capacity exceeded")
)

// codeRetries bounds how often voucher creation retries after losing a
// duplicate-key race on the code column.
const codeRetries = 3

// Store wraps the gorm handle for the voucher and payment paths, so the
// orchestrator and poller can run against a fake in tests.
type Store struct {
	db *gorm.DB
}

func NewStore(g *gorm.DB) *Store {
	return &Store{db: g}
}

// AdmissionRecord converts a stored voucher into the admission controller's
// view of it.
func (v *Voucher) AdmissionRecord() *voucher.Record {
	return &voucher.Record{
		RouterID:      v.RouterID,
		TotalUsers:    v.TotalUsers,
		CurrentUsers:  v.CurrentUsers,
		ValidityHours: v.PlanValidity,
		Start:         v.VoucherStart,
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *Store) VoucherByCode(code string) (*Voucher, error) {
	var v Voucher
	if err := s.db.Where("code = ?", code).First(&v).Error; err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

func (s *Store) RouterByID(id uint) (*Router, error) {
	var r Router
	if err := s.db.First(&r, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (s *Store) PlanByID(id uint) (*HotspotPlan, error) {
	var p HotspotPlan
	if err := s.db.First(&p, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// RedemptionFor returns the existing redemption of a voucher by a device,
// if any. Used to make redemption retries idempotent per MAC.
func (s *Store) RedemptionFor(voucherID uint, mac string) (*VoucherRedemption, error) {
	var red VoucherRedemption
	err := s.db.Where("voucher_id = ? AND mac_address = ?", voucherID, mac).First(&red).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &red, nil
}

// RedeemSlot consumes one slot of the voucher. The increment is a
// conditional update guarded by current_users < total_users; a blind
// read-modify-write here could overshoot capacity under concurrent
// redemptions. Within one transaction it also stamps voucher_start on first
// use, flips the status once the counter reaches capacity, and appends the
// audit row carrying the device credential and its service window.
func (s *Store) RedeemSlot(voucherID uint, mac, secret string, now time.Time) (*Voucher, *VoucherRedemption, error) {
	var v Voucher
	var red VoucherRedemption

	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Voucher{}).
			Where("id = ? AND current_users < total_users", voucherID).
			Update("current_users", gorm.Expr("current_users + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Either the voucher is gone or the slot race was lost.
			var exists int64
			if err := tx.Model(&Voucher{}).Where("id = ?", voucherID).Count(&exists).Error; err != nil {
				return err
			}
			if exists == 0 {
				return ErrNotFound
			}
			return ErrCapacityExceeded
		}

		if err := tx.First(&v, voucherID).Error; err != nil {
			return err
		}
		if v.VoucherStart == nil {
			v.VoucherStart = &now
		}
		if v.CurrentUsers >= v.TotalUsers {
			v.Status = VoucherUsed
		}
		if err := tx.Save(&v).Error; err != nil {
			return err
		}

		start := *v.VoucherStart
		red = VoucherRedemption{
			VoucherID:     v.ID,
			MacAddress:    mac,
			RedeemedAt:    now,
			Secret:        secret,
			ServiceStart:  start,
			ServiceExpiry: start.Add(time.Duration(v.PlanValidity) * time.Hour),
		}
		return tx.Create(&red).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &v, &red, nil
}

func (s *Store) MarkProvisioned(redemptionID uint) error {
	return s.db.Model(&VoucherRedemption{}).
		Where("id = ?", redemptionID).
		Update("provisioned", true).Error
}

// UpsertClient syncs the reporting side table: one row per device and
// router, refreshed with the latest service window and credential.
func (s *Store) UpsertClient(c *HotspotClient) error {
	var existing HotspotClient
	err := s.db.Where("mac_address = ? AND router_id = ?", c.MacAddress, c.RouterID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(c).Error
	}
	if err != nil {
		return err
	}
	c.ID = existing.ID
	c.CreatedAt = existing.CreatedAt
	return s.db.Save(c).Error
}

// CreateVouchers issues count vouchers against a plan, with capacity and
// validity copied from the plan at this moment. Codes are assigned from the
// per-router sequence row, locked FOR UPDATE so the read and the insert are
// one serialized step. A duplicate code (sequence wrap colliding with an
// old voucher) is retried with fresh sequence values.
func (s *Store) CreateVouchers(plan *HotspotPlan, routerID, companyID uint, count int, paymentID *uint, now time.Time) ([]Voucher, error) {
	if count < 1 {
		return nil, fmt.Errorf("voucher count must be positive, got %d", count)
	}

	var created []Voucher
	var err error
	for attempt := 0; attempt < codeRetries; attempt++ {
		created, err = s.createVouchersOnce(plan, routerID, companyID, count, paymentID, now)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("voucher codes kept colliding after %d attempts: %w", codeRetries, err)
}

func (s *Store) createVouchersOnce(plan *HotspotPlan, routerID, companyID uint, count int, paymentID *uint, now time.Time) ([]Voucher, error) {
	var vouchers []Voucher

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var seq VoucherSequence
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("router_id = ?", routerID).First(&seq).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			seq = VoucherSequence{RouterID: routerID, NextSeq: 1}
			if err := tx.Create(&seq).Error; err != nil {
				return err
			}
			// re-lock the fresh row
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("router_id = ?", routerID).First(&seq).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		vouchers = make([]Voucher, 0, count)
		for i := 0; i < count; i++ {
			vouchers = append(vouchers, Voucher{
				Code:         voucher.FormatCode(now, seq.NextSeq+i),
				RouterID:     routerID,
				PlanID:       plan.ID,
				PlanValidity: plan.PlanValidity,
				TotalUsers:   plan.SharedUsers,
				CurrentUsers: 0,
				Status:       VoucherUnused,
				PaymentID:    paymentID,
				CompanyID:    companyID,
			})
		}
		if err := tx.Create(&vouchers).Error; err != nil {
			return err
		}

		seq.NextSeq += count
		return tx.Save(&seq).Error
	})
	if err != nil {
		return nil, err
	}
	return vouchers, nil
}
