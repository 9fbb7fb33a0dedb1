package htlc

import (
	"fmt"
	"time"
)

// Stage identifies one threshold in the timelock chain. Stages form a linear
// sequence of gates; none can be skipped, reordered or undone.
type Stage uint8

const (
	StageWithdrawal Stage = iota
	StagePublicWithdrawal
	StageCancellation
	StageEmergency
)

func (s Stage) String() string {
	switch s {
	case StageWithdrawal:
		return "withdrawal"
	case StagePublicWithdrawal:
		return "public_withdrawal"
	case StageCancellation:
		return "cancellation"
	case StageEmergency:
		return "emergency"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

// EmergencyDelay is the fixed offset of the emergency stage past the
// cancellation threshold.
const EmergencyDelay int64 = 86400

// Bounds constrains how soon withdrawal may open and how far out
// cancellation may be scheduled, relative to creation time.
type Bounds struct {
	MinWithdrawalDelay int64
	MaxTimelockHorizon int64
}

var (
	// StandardBounds is the source-chain profile: withdrawal at least one
	// hour out, cancellation within thirty days.
	StandardBounds = Bounds{MinWithdrawalDelay: 3600, MaxTimelockHorizon: 30 * 86400}
	// DestinationBounds is the tighter destination-chain profile: thirty
	// minutes and seven days.
	DestinationBounds = Bounds{MinWithdrawalDelay: 1800, MaxTimelockHorizon: 7 * 86400}
)

// Timelocks evaluates the ordered stage thresholds against wall-clock time.
// It performs no side effects beyond reading the injected clock; once a
// stage gate opens it stays open for the lifetime of the instance.
type Timelocks struct {
	WithdrawalAt       int64
	PublicWithdrawalAt int64 // zero in the three-stage variant
	CancellationAt     int64
	CreatedAt          int64

	nowFn func() int64
}

// NewTimelocks validates the stage sequence against the supplied bounds with
// the creation time captured from the wall clock. publicWithdrawalAt may be
// zero to select the three-stage variant.
func NewTimelocks(withdrawalAt, publicWithdrawalAt, cancellationAt int64, bounds Bounds) (*Timelocks, error) {
	return NewTimelocksAt(time.Now().Unix(), withdrawalAt, publicWithdrawalAt, cancellationAt, bounds)
}

// NewTimelocksAt is NewTimelocks with an explicit creation timestamp.
func NewTimelocksAt(createdAt, withdrawalAt, publicWithdrawalAt, cancellationAt int64, bounds Bounds) (*Timelocks, error) {
	if withdrawalAt <= createdAt {
		return nil, fmt.Errorf("%w: withdrawal timelock must be in the future", ErrTimelockValidation)
	}
	if withdrawalAt < createdAt+bounds.MinWithdrawalDelay {
		return nil, fmt.Errorf("%w: withdrawal timelock must be at least %ds after creation", ErrTimelockValidation, bounds.MinWithdrawalDelay)
	}
	if publicWithdrawalAt != 0 {
		if publicWithdrawalAt <= withdrawalAt {
			return nil, fmt.Errorf("%w: public withdrawal timelock must be after withdrawal timelock", ErrTimelockValidation)
		}
		if cancellationAt <= publicWithdrawalAt {
			return nil, fmt.Errorf("%w: cancellation timelock must be after public withdrawal timelock", ErrTimelockValidation)
		}
	} else if cancellationAt <= withdrawalAt {
		return nil, fmt.Errorf("%w: cancellation timelock must be after withdrawal timelock", ErrTimelockValidation)
	}
	if cancellationAt > createdAt+bounds.MaxTimelockHorizon {
		return nil, fmt.Errorf("%w: cancellation timelock cannot be more than %ds after creation", ErrTimelockValidation, bounds.MaxTimelockHorizon)
	}
	return &Timelocks{
		WithdrawalAt:       withdrawalAt,
		PublicWithdrawalAt: publicWithdrawalAt,
		CancellationAt:     cancellationAt,
		CreatedAt:          createdAt,
	}, nil
}

// SetNowFunc overrides the time source. Primarily intended for tests to
// provide deterministic timestamps; passing nil restores the wall clock.
func (t *Timelocks) SetNowFunc(now func() int64) {
	if t == nil {
		return
	}
	t.nowFn = now
}

func (t *Timelocks) now() int64 {
	if t == nil || t.nowFn == nil {
		return time.Now().Unix()
	}
	return t.nowFn()
}

// EmergencyAt returns the derived emergency threshold.
func (t *Timelocks) EmergencyAt() int64 {
	if t == nil {
		return 0
	}
	return t.CancellationAt + EmergencyDelay
}

// HasPublicWithdrawal reports whether the four-stage variant is configured.
func (t *Timelocks) HasPublicWithdrawal() bool {
	return t != nil && t.PublicWithdrawalAt != 0
}

func (t *Timelocks) threshold(stage Stage) (int64, error) {
	if t == nil {
		return 0, fmt.Errorf("%w: timelocks not configured", ErrTimelockValidation)
	}
	switch stage {
	case StageWithdrawal:
		return t.WithdrawalAt, nil
	case StagePublicWithdrawal:
		if !t.HasPublicWithdrawal() {
			return 0, fmt.Errorf("%w: public withdrawal stage not configured", ErrInputValidation)
		}
		return t.PublicWithdrawalAt, nil
	case StageCancellation:
		return t.CancellationAt, nil
	case StageEmergency:
		return t.EmergencyAt(), nil
	default:
		return 0, fmt.Errorf("%w: unknown timelock stage %d", ErrInputValidation, stage)
	}
}

// CanWithdraw reports whether the withdrawal threshold has passed.
func (t *Timelocks) CanWithdraw() bool { return t != nil && t.now() >= t.WithdrawalAt }

// CanPublicWithdraw reports whether the public withdrawal threshold has
// passed. Always false in the three-stage variant.
func (t *Timelocks) CanPublicWithdraw() bool {
	return t.HasPublicWithdrawal() && t.now() >= t.PublicWithdrawalAt
}

// CanCancel reports whether the cancellation threshold has passed.
func (t *Timelocks) CanCancel() bool { return t != nil && t.now() >= t.CancellationAt }

// CanEmergencyRefund reports whether the emergency threshold has passed.
func (t *Timelocks) CanEmergencyRefund() bool { return t != nil && t.now() >= t.EmergencyAt() }

// TimeUntil returns the seconds remaining before the stage opens, or false
// once its threshold has passed.
func (t *Timelocks) TimeUntil(stage Stage) (int64, bool) {
	threshold, err := t.threshold(stage)
	if err != nil {
		return 0, false
	}
	now := t.now()
	if now >= threshold {
		return 0, false
	}
	return threshold - now, true
}

// Require fails with ErrTimelockNotMet when the stage threshold has not yet
// passed. It is the sole timing enforcement point used by the escrow engine.
func (t *Timelocks) Require(stage Stage) error {
	threshold, err := t.threshold(stage)
	if err != nil {
		return err
	}
	now := t.now()
	if now < threshold {
		return fmt.Errorf("%w: %s opens in %ds", ErrTimelockNotMet, stage, threshold-now)
	}
	return nil
}

// Status returns a human-readable description of the current stage window.
// Diagnostic only; never used for control flow.
func (t *Timelocks) Status() string {
	if t == nil {
		return "unconfigured"
	}
	now := t.now()
	switch {
	case now < t.WithdrawalAt:
		return fmt.Sprintf("waiting for withdrawal timelock (%ds remaining)", t.WithdrawalAt-now)
	case t.HasPublicWithdrawal() && now < t.PublicWithdrawalAt:
		return "withdrawal period active"
	case t.HasPublicWithdrawal() && now < t.CancellationAt:
		return "public withdrawal period active"
	case now < t.CancellationAt:
		return "withdrawal period active"
	case now < t.EmergencyAt():
		return "cancellation period active"
	default:
		return "emergency period active"
	}
}

// Clone returns a copy sharing the same clock override.
func (t *Timelocks) Clone() *Timelocks {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}
