package controllers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotspot-billing/mikrotik"
	"hotspot-billing/voucher"
	"hotspot-billing/web/db"
)

// memRedeemStore mirrors the store's redemption semantics in memory,
// including the conditional capacity increment, so the orchestrator can be
// hammered concurrently without a database.
type memRedeemStore struct {
	mu          sync.Mutex
	vouchers    map[uint]*db.Voucher
	redemptions []db.VoucherRedemption
	routers     map[uint]*db.Router
	clients     map[string]*db.HotspotClient
	nextID      uint

	redemptionErr error
}

func newMemRedeemStore() *memRedeemStore {
	return &memRedeemStore{
		vouchers: make(map[uint]*db.Voucher),
		routers:  map[uint]*db.Router{5: {RouterName: "lobby", IPAddress: "10.0.0.1", Username: "admin"}},
		clients:  make(map[string]*db.HotspotClient),
	}
}

func (m *memRedeemStore) addVoucher(code string, routerID uint, totalUsers, validityHours int) *db.Voucher {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	v := &db.Voucher{
		Code:         code,
		RouterID:     routerID,
		PlanID:       7,
		PlanValidity: validityHours,
		TotalUsers:   totalUsers,
		Status:       db.VoucherUnused,
		CompanyID:    1,
	}
	v.ID = m.nextID
	m.vouchers[v.ID] = v
	return v
}

func (m *memRedeemStore) VoucherByCode(code string) (*db.Voucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.vouchers {
		if v.Code == code {
			cp := *v
			return &cp, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memRedeemStore) RedemptionFor(voucherID uint, mac string) (*db.VoucherRedemption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redemptionErr != nil {
		return nil, m.redemptionErr
	}
	for i := range m.redemptions {
		if m.redemptions[i].VoucherID == voucherID && m.redemptions[i].MacAddress == mac {
			cp := m.redemptions[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRedeemStore) RedeemSlot(voucherID uint, mac, secret string, now time.Time) (*db.Voucher, *db.VoucherRedemption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.vouchers[voucherID]
	if !ok {
		return nil, nil, db.ErrNotFound
	}
	if v.CurrentUsers >= v.TotalUsers {
		return nil, nil, db.ErrCapacityExceeded
	}

	v.CurrentUsers++
	if v.VoucherStart == nil {
		start := now
		v.VoucherStart = &start
	}
	if v.CurrentUsers >= v.TotalUsers {
		v.Status = db.VoucherUsed
	}

	m.nextID++
	red := db.VoucherRedemption{
		VoucherID:     v.ID,
		MacAddress:    mac,
		RedeemedAt:    now,
		Secret:        secret,
		ServiceStart:  *v.VoucherStart,
		ServiceExpiry: v.VoucherStart.Add(time.Duration(v.PlanValidity) * time.Hour),
	}
	red.ID = m.nextID
	m.redemptions = append(m.redemptions, red)

	snap := *v
	return &snap, &red, nil
}

func (m *memRedeemStore) MarkProvisioned(redemptionID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.redemptions {
		if m.redemptions[i].ID == redemptionID {
			m.redemptions[i].Provisioned = true
			return nil
		}
	}
	return db.ErrNotFound
}

func (m *memRedeemStore) RouterByID(id uint) (*db.Router, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.routers[id]; ok {
		return r, nil
	}
	return nil, db.ErrNotFound
}

func (m *memRedeemStore) UpsertClient(c *db.HotspotClient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.MacAddress] = c
	return nil
}

// fakeProvisioner counts provision calls and optionally fails.
type fakeProvisioner struct {
	mu    sync.Mutex
	calls int
	users map[string]string
	err   error
}

func newFakeProvisioner() *fakeProvisioner {
	return &fakeProvisioner{users: make(map[string]string)}
}

func (f *fakeProvisioner) Provision(_ context.Context, _ mikrotik.Credentials, user mikrotik.HotspotUser) (mikrotik.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if _, ok := f.users[user.Name]; ok {
		f.users[user.Name] = user.Password
		return mikrotik.Updated, nil
	}
	f.users[user.Name] = user.Password
	return mikrotik.Created, nil
}

var redeemNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func TestRedeemVoucherHappyPath(t *testing.T) {
	store := newMemRedeemStore()
	store.addVoucher("HDX0001", 5, 1, 1)
	prov := newFakeProvisioner()

	res := RedeemVoucher(context.Background(), store, prov, 5, "HDX0001", "AA:BB:CC:DD:EE:01", redeemNow)
	require.True(t, res.Success, res.Message)
	assert.NotEmpty(t, res.Password)
	assert.Equal(t, res.Password, prov.users["AA:BB:CC:DD:EE:01"])

	v, _ := store.VoucherByCode("HDX0001")
	assert.Equal(t, 1, v.CurrentUsers)
	assert.Equal(t, db.VoucherUsed, v.Status)
	require.NotNil(t, v.VoucherStart)
	assert.True(t, v.VoucherStart.Equal(redeemNow))

	red, _ := store.RedemptionFor(v.ID, "AA:BB:CC:DD:EE:01")
	require.NotNil(t, red)
	assert.True(t, red.Provisioned)
	assert.True(t, red.ServiceExpiry.Equal(redeemNow.Add(time.Hour)))
}

func TestRedeemVoucherUnknownCode(t *testing.T) {
	store := newMemRedeemStore()
	prov := newFakeProvisioner()

	res := RedeemVoucher(context.Background(), store, prov, 5, "NOPE999", "AA:BB:CC:DD:EE:01", redeemNow)
	assert.False(t, res.Success)
	assert.Equal(t, voucher.ReasonNotFound, res.Reason)
	assert.Zero(t, prov.calls)
}

func TestRedeemVoucherWrongRouterLeavesStateUntouched(t *testing.T) {
	store := newMemRedeemStore()
	store.addVoucher("HDX0001", 5, 2, 1)
	prov := newFakeProvisioner()

	res := RedeemVoucher(context.Background(), store, prov, 99, "HDX0001", "AA:BB:CC:DD:EE:01", redeemNow)
	assert.False(t, res.Success)
	assert.Equal(t, voucher.ReasonWrongRouter, res.Reason)

	v, _ := store.VoucherByCode("HDX0001")
	assert.Zero(t, v.CurrentUsers)
	assert.Nil(t, v.VoucherStart)
	assert.Zero(t, prov.calls)
}

func TestRedeemVoucherClockStartsOnce(t *testing.T) {
	store := newMemRedeemStore()
	store.addVoucher("HDX0001", 5, 3, 2)
	prov := newFakeProvisioner()

	first := RedeemVoucher(context.Background(), store, prov, 5, "HDX0001", "AA:BB:CC:DD:EE:01", redeemNow)
	require.True(t, first.Success)

	later := redeemNow.Add(30 * time.Minute)
	second := RedeemVoucher(context.Background(), store, prov, 5, "HDX0001", "AA:BB:CC:DD:EE:02", later)
	require.True(t, second.Success)

	// The window is anchored to the first redemption for every device.
	v, _ := store.VoucherByCode("HDX0001")
	assert.True(t, v.VoucherStart.Equal(redeemNow))
	red, _ := store.RedemptionFor(v.ID, "AA:BB:CC:DD:EE:02")
	assert.True(t, red.ServiceExpiry.Equal(redeemNow.Add(2*time.Hour)))
}

func TestRedeemVoucherCapacityUnderConcurrency(t *testing.T) {
	const capacity = 3
	const attempts = 20

	store := newMemRedeemStore()
	store.addVoucher("HDX0001", 5, capacity, 1)
	prov := newFakeProvisioner()

	results := make([]RedemptionResult, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			mac := string(rune('A'+i%26)) + "A:BB:CC:DD:EE:00"
			results[i] = RedeemVoucher(context.Background(), store, prov, 5, "HDX0001", mac, redeemNow)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		} else {
			assert.Equal(t, voucher.ReasonCapacityExceeded, r.Reason)
		}
	}
	assert.Equal(t, capacity, succeeded)

	v, _ := store.VoucherByCode("HDX0001")
	assert.Equal(t, capacity, v.CurrentUsers)
	assert.Equal(t, db.VoucherUsed, v.Status)
}

func TestRedeemVoucherPartialFailureKeepsSlot(t *testing.T) {
	store := newMemRedeemStore()
	store.addVoucher("HDX0001", 5, 1, 1)
	prov := newFakeProvisioner()
	prov.err = errors.New("ssh: handshake failed")

	res := RedeemVoucher(context.Background(), store, prov, 5, "HDX0001", "AA:BB:CC:DD:EE:01", redeemNow)
	assert.False(t, res.Success)
	assert.Equal(t, "PROVISIONING_FAILED", res.Reason)

	// The slot stays consumed; partial failure is not rolled back.
	v, _ := store.VoucherByCode("HDX0001")
	assert.Equal(t, 1, v.CurrentUsers)
	red, _ := store.RedemptionFor(v.ID, "AA:BB:CC:DD:EE:01")
	require.NotNil(t, red)
	assert.False(t, red.Provisioned)
}

func TestRedeemVoucherRetrySameMacIsIdempotent(t *testing.T) {
	store := newMemRedeemStore()
	store.addVoucher("HDX0001", 5, 1, 1)
	prov := newFakeProvisioner()
	prov.err = errors.New("ssh: handshake failed")

	first := RedeemVoucher(context.Background(), store, prov, 5, "HDX0001", "AA:BB:CC:DD:EE:01", redeemNow)
	require.Equal(t, "PROVISIONING_FAILED", first.Reason)

	// The router comes back; the same device retries and succeeds without
	// consuming a second slot, even though the voucher is now at capacity.
	prov.err = nil
	second := RedeemVoucher(context.Background(), store, prov, 5, "HDX0001", "AA:BB:CC:DD:EE:01", redeemNow.Add(time.Minute))
	require.True(t, second.Success, second.Message)

	v, _ := store.VoucherByCode("HDX0001")
	assert.Equal(t, 1, v.CurrentUsers)
	red, _ := store.RedemptionFor(v.ID, "AA:BB:CC:DD:EE:01")
	assert.True(t, red.Provisioned)
	assert.Equal(t, red.Secret, second.Password)
}

func TestRedeemVoucherLookupErrorConsumesNothing(t *testing.T) {
	store := newMemRedeemStore()
	store.addVoucher("HDX0001", 5, 1, 1)
	store.redemptionErr = errors.New("driver: bad connection")
	prov := newFakeProvisioner()

	res := RedeemVoucher(context.Background(), store, prov, 5, "HDX0001", "AA:BB:CC:DD:EE:01", redeemNow)
	assert.False(t, res.Success)
	assert.Equal(t, "Server error", res.Message)

	// A transient read failure on the idempotency lookup must not fall
	// through to admission and hand the device a second slot.
	store.redemptionErr = nil
	v, _ := store.VoucherByCode("HDX0001")
	assert.Zero(t, v.CurrentUsers)
	assert.Nil(t, v.VoucherStart)
	assert.Zero(t, prov.calls)
}

func TestRedeemVoucherExpired(t *testing.T) {
	store := newMemRedeemStore()
	v := store.addVoucher("HDX0001", 5, 3, 1)
	start := redeemNow.Add(-2 * time.Hour)
	v.VoucherStart = &start
	v.CurrentUsers = 1
	prov := newFakeProvisioner()

	res := RedeemVoucher(context.Background(), store, prov, 5, "HDX0001", "AA:BB:CC:DD:EE:02", redeemNow)
	assert.False(t, res.Success)
	assert.Equal(t, voucher.ReasonExpired, res.Reason)
	assert.Zero(t, prov.calls)
}
