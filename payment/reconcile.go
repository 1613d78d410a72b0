package payment

import (
	"context"
	"log"
	"time"

	"hotspot-billing/mikrotik"
	"hotspot-billing/web/db"
)

// ReconcilerStore adds the sweep queries to the charge-flow store.
type ReconcilerStore interface {
	Store

	OrphanedConfirmations(olderThan time.Time) ([]db.PaymentConfirmation, error)
	UnprovisionedRedemptions(limit int) ([]db.VoucherRedemption, error)
	RouterByID(id uint) (*db.Router, error)
	MarkProvisioned(redemptionID uint) error
}

// Reconciler closes the two known inconsistency windows in the background:
// confirmations whose money arrived after the request-side poll gave up get
// their voucher issued late, and redeemed slots whose credential never
// reached the router get provisioning re-driven. Both operations are
// idempotent, so sweeping twice is harmless.
type Reconciler struct {
	store ReconcilerStore
	svc   *Service
	prov  *mikrotik.Provisioner

	// Confirmations younger than this are left to the in-flight poll.
	Grace time.Duration
}

func NewReconciler(store ReconcilerStore, svc *Service, prov *mikrotik.Provisioner) *Reconciler {
	return &Reconciler{
		store: store,
		svc:   svc,
		prov:  prov,
		Grace: time.Duration(PollAttempts)*PollDelay + 30*time.Second,
	}
}

// Start runs the sweep on a fixed interval until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep(ctx)
			}
		}
	}()
}

func (r *Reconciler) sweep(ctx context.Context) {
	r.issueOrphans()
	r.redriveProvisioning(ctx)
}

func (r *Reconciler) issueOrphans() {
	confs, err := r.store.OrphanedConfirmations(time.Now().Add(-r.Grace))
	if err != nil {
		log.Println("reconciler: listing orphaned confirmations:", err)
		return
	}
	for i := range confs {
		conf := &confs[i]
		req, err := r.store.RequestByCheckoutID(conf.CheckoutRequestID)
		if err != nil {
			// Callback row without a request of ours, nothing to issue against.
			continue
		}
		code, err := r.svc.IssueForConfirmation(conf, req)
		if err != nil {
			log.Printf("reconciler: issuing voucher for confirmation %d: %v", conf.ID, err)
			continue
		}
		log.Printf("reconciler: issued voucher %s for orphaned confirmation %s", code, conf.CheckoutRequestID)
	}
}

func (r *Reconciler) redriveProvisioning(ctx context.Context) {
	reds, err := r.store.UnprovisionedRedemptions(50)
	if err != nil {
		log.Println("reconciler: listing unprovisioned redemptions:", err)
		return
	}
	for i := range reds {
		red := &reds[i]

		v, err := r.store.VoucherByID(red.VoucherID)
		if err != nil {
			log.Printf("reconciler: redemption %d has no voucher: %v", red.ID, err)
			continue
		}
		plan, err := r.store.PlanByID(v.PlanID)
		if err != nil {
			continue
		}
		router, err := r.store.RouterByID(v.RouterID)
		if err != nil {
			continue
		}

		_, err = r.prov.Provision(ctx, mikrotik.Credentials{
			Host:     router.IPAddress,
			Username: router.Username,
			Secret:   router.RouterSecret,
		}, mikrotik.HotspotUser{
			Name:          red.MacAddress,
			Password:      red.Secret,
			Profile:       plan.ProfileName(),
			ServiceStart:  red.ServiceStart,
			ServiceExpiry: red.ServiceExpiry,
		})
		if err != nil {
			log.Printf("reconciler: provisioning %s on %s: %v", red.MacAddress, router.RouterName, err)
			continue
		}
		if err := r.store.MarkProvisioned(red.ID); err != nil {
			log.Printf("reconciler: marking redemption %d provisioned: %v", red.ID, err)
		}
	}
}
