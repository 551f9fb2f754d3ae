package domain

import dErrors "fhevault/pkg/domain-errors"

// EncryptionLevel classifies the strength of the scheme a record's ciphertext
// was produced under. The set is closed; anything outside it is rejected at
// the boundary.
type EncryptionLevel uint8

const (
	LevelBasic    EncryptionLevel = 1
	LevelStandard EncryptionLevel = 2
	LevelAdvanced EncryptionLevel = 3
)

// IsValid reports whether the level is a member of the closed set.
func (l EncryptionLevel) IsValid() bool {
	switch l {
	case LevelBasic, LevelStandard, LevelAdvanced:
		return true
	}
	return false
}

func (l EncryptionLevel) String() string {
	switch l {
	case LevelBasic:
		return "basic"
	case LevelStandard:
		return "standard"
	case LevelAdvanced:
		return "advanced"
	}
	return "unknown"
}

// ParseEncryptionLevel validates a numeric level from external input.
func ParseEncryptionLevel(n int64) (EncryptionLevel, error) {
	l := EncryptionLevel(n)
	if n < 1 || n > 255 || !l.IsValid() {
		return 0, dErrors.Newf(dErrors.CodeInvalidEncryptionLevel, "encryption level %d is not in {basic, standard, advanced}", n)
	}
	return l, nil
}
