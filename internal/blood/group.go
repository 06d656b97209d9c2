package blood

import (
	"fmt"
	"strings"
)

// BloodGroup is one of the eight ABO/Rh labels. No other value is valid.
type BloodGroup string

const (
	APos  BloodGroup = "A+"
	ANeg  BloodGroup = "A-"
	BPos  BloodGroup = "B+"
	BNeg  BloodGroup = "B-"
	OPos  BloodGroup = "O+"
	ONeg  BloodGroup = "O-"
	ABPos BloodGroup = "AB+"
	ABNeg BloodGroup = "AB-"
)

// BloodGroups lists every valid group in display order.
var BloodGroups = []BloodGroup{APos, ANeg, BPos, BNeg, OPos, ONeg, ABPos, ABNeg}

// Valid reports whether g is in the closed enumeration.
func (g BloodGroup) Valid() bool {
	for _, v := range BloodGroups {
		if g == v {
			return true
		}
	}
	return false
}

func (g BloodGroup) String() string { return string(g) }

// ParseBloodGroup accepts a label case-insensitively ("ab+" -> AB+).
func ParseBloodGroup(s string) (BloodGroup, error) {
	g := BloodGroup(strings.ToUpper(strings.TrimSpace(s)))
	if !g.Valid() {
		return "", fmt.Errorf("%w: unknown blood group %q", ErrValidation, s)
	}
	return g, nil
}
