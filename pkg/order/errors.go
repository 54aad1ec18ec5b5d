package order

import "errors"

// Authorization failures
var (
	ErrInvalidSignature      = errors.New("invalid signature")
	ErrReceiveCallerMismatch = errors.New("receive caller mismatch")
	ErrSendCallerMismatch    = errors.New("send caller mismatch")
	ErrBitcoinLockerMismatch = errors.New("bitcoin locker mismatch")
)

// State precondition failures
var (
	ErrOrderAlreadyReceived  = errors.New("order already received")
	ErrOrderAlreadySent      = errors.New("order already sent")
	ErrOrderAlreadyResolved  = errors.New("order already resolved")
	ErrBitcoinLockRefusal    = errors.New("bitcoin lock refusal")
	ErrBitcoinUnlockRefusal  = errors.New("bitcoin unlock refusal")
	ErrInvalidBitcoinAddress = errors.New("invalid bitcoin address")
)

// Temporal failures
var (
	ErrOrderReceiveExpired   = errors.New("order receive expired")
	ErrOrderSendExpired      = errors.New("order send expired")
	ErrOrderLiqSendUnreached = errors.New("order liq send unreached")
	ErrOrderLiqSendExpired   = errors.New("order liq send expired")
	ErrOrderNoSendUnreached  = errors.New("order no send unreached")
)

// Resource failures
var (
	ErrLockRefusal = errors.New("lock refusal")
)

// Class groups failures by what the caller can do about them
type Class int

const (
	ClassUnknown Class = iota
	ClassAuthorization
	ClassState
	ClassTemporal
	ClassResource
)

func (c Class) String() string {
	switch c {
	case ClassAuthorization:
		return "authorization"
	case ClassState:
		return "state"
	case ClassTemporal:
		return "temporal"
	case ClassResource:
		return "resource"
	default:
		return "unknown"
	}
}

var classes = map[Class][]error{
	ClassAuthorization: {ErrInvalidSignature, ErrReceiveCallerMismatch, ErrSendCallerMismatch, ErrBitcoinLockerMismatch},
	ClassState:         {ErrOrderAlreadyReceived, ErrOrderAlreadySent, ErrOrderAlreadyResolved, ErrBitcoinLockRefusal, ErrBitcoinUnlockRefusal, ErrInvalidBitcoinAddress},
	ClassTemporal:      {ErrOrderReceiveExpired, ErrOrderSendExpired, ErrOrderLiqSendUnreached, ErrOrderLiqSendExpired, ErrOrderNoSendUnreached},
	ClassResource:      {ErrLockRefusal},
}

// RegisterClass lets other packages classify their own sentinels
func RegisterClass(c Class, errs ...error) {
	classes[c] = append(classes[c], errs...)
}

// ClassOf returns the class of the first registered sentinel err wraps
func ClassOf(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	for c, list := range classes {
		for _, target := range list {
			if errors.Is(err, target) {
				return c
			}
		}
	}
	return ClassUnknown
}
