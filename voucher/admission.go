package voucher

import "time"

// Rejection reasons, first failing check wins.
const (
	ReasonAdmitted         = "ADMIT"
	ReasonNotFound         = "NOT_FOUND"
	ReasonWrongRouter      = "WRONG_ROUTER"
	ReasonCapacityExceeded = "CAPACITY_EXCEEDED"
	ReasonExpired          = "EXPIRED"
)

// Record is the view of a stored voucher the admission check runs against.
type Record struct {
	RouterID      uint
	TotalUsers    int
	CurrentUsers  int
	ValidityHours int
	Start         *time.Time // nil until the first redemption
}

type Decision struct {
	Admitted bool
	Reason   string

	// True when this redemption is the first one and will start the
	// service window.
	StartsClock bool
}

func reject(reason string) Decision {
	return Decision{Admitted: false, Reason: reason}
}

// Admit decides whether a device may consume a slot of the voucher right
// now. Pure decision logic, no side effects; the caller performs the
// mutation only on an admitted decision. The capacity and expiry checks are
// independent: a voucher marked used stays rejected even inside its window,
// and an expired voucher stays rejected even with slots left.
func Admit(v *Record, routerID uint, now time.Time) Decision {
	if v == nil {
		return reject(ReasonNotFound)
	}
	if v.RouterID != routerID {
		return reject(ReasonWrongRouter)
	}
	if v.CurrentUsers >= v.TotalUsers {
		return reject(ReasonCapacityExceeded)
	}
	if v.Start == nil {
		return Decision{Admitted: true, Reason: ReasonAdmitted, StartsClock: true}
	}
	expiry := v.Start.Add(time.Duration(v.ValidityHours) * time.Hour)
	if now.Before(*v.Start) || !now.Before(expiry) {
		return reject(ReasonExpired)
	}
	return Decision{Admitted: true, Reason: ReasonAdmitted}
}
