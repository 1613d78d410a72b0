package voucher_test

import (
	"testing"
	"time"

	"hotspot-billing/voucher"
)

var now = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func TestAdmitNilRecord(t *testing.T) {
	d := voucher.Admit(nil, 1, now)
	if d.Admitted || d.Reason != voucher.ReasonNotFound {
		t.Error("Expected NOT_FOUND, got", d.Reason)
	}
}

func TestAdmitWrongRouter(t *testing.T) {
	v := &voucher.Record{RouterID: 2, TotalUsers: 1, ValidityHours: 1}
	d := voucher.Admit(v, 1, now)
	if d.Admitted || d.Reason != voucher.ReasonWrongRouter {
		t.Error("Expected WRONG_ROUTER, got", d.Reason)
	}
}

func TestAdmitFirstRedemptionStartsClock(t *testing.T) {
	v := &voucher.Record{RouterID: 1, TotalUsers: 1, CurrentUsers: 0, ValidityHours: 1}
	d := voucher.Admit(v, 1, now)
	if !d.Admitted {
		t.Fatal("Expected admission, got", d.Reason)
	}
	if !d.StartsClock {
		t.Error("Expected first redemption to start the service clock")
	}
}

func TestAdmitSecondDeviceWithinCapacity(t *testing.T) {
	start := now.Add(-10 * time.Minute)
	v := &voucher.Record{RouterID: 1, TotalUsers: 3, CurrentUsers: 1, ValidityHours: 2, Start: &start}
	d := voucher.Admit(v, 1, now)
	if !d.Admitted {
		t.Fatal("Expected admission, got", d.Reason)
	}
	if d.StartsClock {
		t.Error("Later redemptions must not restart the clock")
	}
}

func TestAdmitCapacityBeforeExpiry(t *testing.T) {
	// Full voucher inside its window: capacity rejection wins.
	start := now.Add(-10 * time.Minute)
	v := &voucher.Record{RouterID: 1, TotalUsers: 1, CurrentUsers: 1, ValidityHours: 2, Start: &start}
	d := voucher.Admit(v, 1, now)
	if d.Admitted || d.Reason != voucher.ReasonCapacityExceeded {
		t.Error("Expected CAPACITY_EXCEEDED, got", d.Reason)
	}
}

func TestAdmitExpired(t *testing.T) {
	start := now.Add(-2 * time.Hour)
	v := &voucher.Record{RouterID: 1, TotalUsers: 3, CurrentUsers: 1, ValidityHours: 1, Start: &start}
	d := voucher.Admit(v, 1, now)
	if d.Admitted || d.Reason != voucher.ReasonExpired {
		t.Error("Expected EXPIRED, got", d.Reason)
	}
}

func TestAdmitExactExpiryBoundary(t *testing.T) {
	// The window is [start, start+validity): the exact expiry instant is out.
	start := now.Add(-1 * time.Hour)
	v := &voucher.Record{RouterID: 1, TotalUsers: 3, CurrentUsers: 1, ValidityHours: 1, Start: &start}
	d := voucher.Admit(v, 1, now)
	if d.Admitted {
		t.Error("Expected rejection at the exact expiry instant")
	}

	d = voucher.Admit(v, 1, now.Add(-time.Second))
	if !d.Admitted {
		t.Error("Expected admission one second before expiry, got", d.Reason)
	}
}

func TestAdmitOneHourOneUserLifecycle(t *testing.T) {
	// The common corner-shop voucher: 1 hour, 1 user. One device takes the
	// slot; every later attempt fails on capacity, and after an hour on
	// expiry too.
	v := &voucher.Record{RouterID: 1, TotalUsers: 1, ValidityHours: 1}

	d := voucher.Admit(v, 1, now)
	if !d.Admitted || !d.StartsClock {
		t.Fatal("Expected first device to be admitted and start the clock")
	}

	start := now
	v.CurrentUsers = 1
	v.Start = &start

	d = voucher.Admit(v, 1, now.Add(time.Minute))
	if d.Admitted || d.Reason != voucher.ReasonCapacityExceeded {
		t.Error("Expected CAPACITY_EXCEEDED for the second device, got", d.Reason)
	}

	d = voucher.Admit(v, 1, now.Add(2*time.Hour))
	if d.Admitted {
		t.Error("Expected rejection after the window closed")
	}
}
