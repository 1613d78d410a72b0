package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotspot-billing/mikrotik"
	"hotspot-billing/web/db"
)

// reconcilerStore extends the in-memory store with the sweep queries.
type reconcilerStore struct {
	*memStore
	redemptions []db.VoucherRedemption
	routers     map[uint]*db.Router
}

func newReconcilerStore() *reconcilerStore {
	return &reconcilerStore{
		memStore: newMemStore(),
		routers:  map[uint]*db.Router{5: {RouterName: "lobby", IPAddress: "10.0.0.1", Username: "admin"}},
	}
}

func (r *reconcilerStore) OrphanedConfirmations(olderThan time.Time) ([]db.PaymentConfirmation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []db.PaymentConfirmation
	for _, conf := range r.confirmations {
		if conf.VoucherID == nil && conf.ResultCode == 0 && conf.CreatedAt.Before(olderThan) {
			out = append(out, *conf)
		}
	}
	return out, nil
}

func (r *reconcilerStore) UnprovisionedRedemptions(limit int) ([]db.VoucherRedemption, error) {
	var out []db.VoucherRedemption
	for _, red := range r.redemptions {
		if !red.Provisioned {
			out = append(out, red)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *reconcilerStore) RouterByID(id uint) (*db.Router, error) {
	if router, ok := r.routers[id]; ok {
		return router, nil
	}
	return nil, db.ErrNotFound
}

func (r *reconcilerStore) MarkProvisioned(redemptionID uint) error {
	for i := range r.redemptions {
		if r.redemptions[i].ID == redemptionID {
			r.redemptions[i].Provisioned = true
			return nil
		}
	}
	return db.ErrNotFound
}

func TestReconcilerIssuesOrphanedConfirmation(t *testing.T) {
	store := newReconcilerStore()
	svc := newTestService(store, &fakeCharger{})

	// A poll that timed out left a request row; the gateway confirmed later.
	req := &db.PaymentRequest{CheckoutRequestID: "co-late", CompanyID: 1, RouterID: 5, PlanID: 7, PlanValidity: 1}
	require.NoError(t, store.CreatePaymentRequest(req))
	conf := &db.PaymentConfirmation{CheckoutRequestID: "co-late", ResultCode: 0}
	conf.ID = store.id()
	conf.CreatedAt = time.Now().Add(-time.Hour)
	store.confirmations[conf.ID] = conf

	rec := NewReconciler(store, svc, mikrotik.NewProvisionerWithRunner(
		func(context.Context, mikrotik.Credentials, string) (string, error) { return "", nil },
	))
	rec.sweep(context.Background())

	assert.Len(t, store.vouchers, 1)
	require.NotNil(t, store.confirmations[conf.ID].VoucherID)

	// Sweeping again must not mint a second voucher.
	rec.sweep(context.Background())
	assert.Len(t, store.vouchers, 1)
}

func TestReconcilerSkipsFreshConfirmations(t *testing.T) {
	store := newReconcilerStore()
	svc := newTestService(store, &fakeCharger{})

	req := &db.PaymentRequest{CheckoutRequestID: "co-fresh", CompanyID: 1, RouterID: 5, PlanID: 7}
	require.NoError(t, store.CreatePaymentRequest(req))
	conf := &db.PaymentConfirmation{CheckoutRequestID: "co-fresh", ResultCode: 0}
	conf.ID = store.id()
	conf.CreatedAt = time.Now()
	store.confirmations[conf.ID] = conf

	rec := NewReconciler(store, svc, mikrotik.NewProvisioner())
	rec.sweep(context.Background())

	// Inside the grace window the in-flight poll owns this confirmation.
	assert.Empty(t, store.vouchers)
}

func TestReconcilerRedrivesProvisioning(t *testing.T) {
	store := newReconcilerStore()
	svc := newTestService(store, &fakeCharger{})

	vouchers, err := store.CreateVouchers(store.plans[7], 5, 1, 1, nil, time.Now())
	require.NoError(t, err)
	red := db.VoucherRedemption{
		VoucherID:     vouchers[0].ID,
		MacAddress:    "AA:BB:CC:DD:EE:01",
		Secret:        "s3cret",
		ServiceStart:  time.Now(),
		ServiceExpiry: time.Now().Add(time.Hour),
	}
	red.ID = 99
	store.redemptions = append(store.redemptions, red)

	var pushed []string
	prov := mikrotik.NewProvisionerWithRunner(
		func(_ context.Context, _ mikrotik.Credentials, cmd string) (string, error) {
			pushed = append(pushed, cmd)
			return "", nil
		})

	rec := NewReconciler(store, svc, prov)
	rec.sweep(context.Background())

	assert.True(t, store.redemptions[0].Provisioned)
	assert.NotEmpty(t, pushed)

	// Once marked provisioned the redemption drops out of the sweep.
	pushed = nil
	rec.sweep(context.Background())
	assert.Empty(t, pushed)
}
