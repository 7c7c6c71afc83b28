package enums

import "fmt"

// MovementReason classifies an inventory movement row.
type MovementReason string

const (
	MovementReasonSale       MovementReason = "sale"
	MovementReasonAdjustment MovementReason = "adjustment"
	MovementReasonRestock    MovementReason = "restock"
)

var validMovementReasons = []MovementReason{
	MovementReasonSale,
	MovementReasonAdjustment,
	MovementReasonRestock,
}

// String implements fmt.Stringer.
func (m MovementReason) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MovementReason.
func (m MovementReason) IsValid() bool {
	for _, candidate := range validMovementReasons {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMovementReason converts raw input into a MovementReason.
func ParseMovementReason(value string) (MovementReason, error) {
	for _, candidate := range validMovementReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement reason %q", value)
}

// MovementReferenceType identifies what an inventory movement points back to.
type MovementReferenceType string

const (
	MovementReferenceOrder  MovementReferenceType = "order"
	MovementReferenceManual MovementReferenceType = "manual"
)

var validMovementReferenceTypes = []MovementReferenceType{
	MovementReferenceOrder,
	MovementReferenceManual,
}

// IsValid reports whether the value is a known MovementReferenceType.
func (m MovementReferenceType) IsValid() bool {
	for _, candidate := range validMovementReferenceTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMovementReferenceType converts raw input into a MovementReferenceType.
func ParseMovementReferenceType(value string) (MovementReferenceType, error) {
	for _, candidate := range validMovementReferenceTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement reference type %q", value)
}
