package budget

import apperrors "budgetkit/internal/errors"

// Policy decides how a closed period's remaining balance carries into its successor.
type Policy string

const (
	// PolicyNone resets every period; nothing carries over.
	PolicyNone Policy = "none"
	// PolicySurplusOnly carries unspent money forward but never a deficit.
	PolicySurplusOnly Policy = "surplus_only"
	// PolicyFull carries both surplus and deficit forward.
	PolicyFull Policy = "full"
)

// ParsePolicy validates a policy tag.
func ParsePolicy(s string) (Policy, error) {
	p := Policy(s)
	if !p.Valid() {
		return "", apperrors.WithMessage(apperrors.ErrUnknownPolicy, "unknown rollover policy "+s)
	}
	return p, nil
}

// Valid reports whether p is one of the known policies.
func (p Policy) Valid() bool {
	switch p {
	case PolicyNone, PolicySurplusOnly, PolicyFull:
		return true
	}
	return false
}

// ComputeCarry returns the balance the successor period inherits from a
// closed period's snapshot. It depends only on snap.Remaining and policy, so
// recomputing it for a historical period always yields the same value.
func ComputeCarry(snap Snapshot, policy Policy) (Money, error) {
	switch policy {
	case PolicyNone:
		return 0, nil
	case PolicySurplusOnly:
		if snap.Remaining > 0 {
			return snap.Remaining, nil
		}
		return 0, nil
	case PolicyFull:
		return snap.Remaining, nil
	default:
		return 0, apperrors.WithMessage(apperrors.ErrUnknownPolicy, "unknown rollover policy "+string(policy))
	}
}
