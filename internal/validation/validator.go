package validation

import (
	"fmt"
	"math"

	"github.com/devrev/pairdb/chainstore/internal/errors"
)

const (
	// Size limits
	MaxKeySize   = 64 * 1024        // 64 KB
	MaxValueSize = 16 * 1024 * 1024 // 16 MB

	// MaxVersion is the highest version a table can commit; the next value
	// is reserved for log control markers.
	MaxVersion = math.MaxUint32 - 1
)

// Validator validates table writes
type Validator struct {
	maxKeySize   int
	maxValueSize int
}

// NewValidator creates a new validator with default limits
func NewValidator() *Validator {
	return &Validator{
		maxKeySize:   MaxKeySize,
		maxValueSize: MaxValueSize,
	}
}

// NewValidatorWithLimits creates a validator with custom limits.
// Non-positive limits fall back to the defaults.
func NewValidatorWithLimits(maxKeySize, maxValueSize int) *Validator {
	v := NewValidator()
	if maxKeySize > 0 {
		v.maxKeySize = maxKeySize
	}
	if maxValueSize > 0 {
		v.maxValueSize = maxValueSize
	}
	return v
}

// ValidateWrite validates an insert
func (v *Validator) ValidateWrite(key, value []byte) error {
	if err := v.ValidateKey(key); err != nil {
		return err
	}
	return v.ValidateValue(value)
}

// ValidateKey validates a key
func (v *Validator) ValidateKey(key []byte) error {
	// Empty keys are how the log reader recognizes a zeroed tail.
	if len(key) == 0 {
		return errors.InvalidArgument("key cannot be empty", nil)
	}
	if len(key) > v.maxKeySize {
		return errors.KeyTooLarge(len(key), v.maxKeySize)
	}
	return nil
}

// ValidateValue validates a value
func (v *Validator) ValidateValue(value []byte) error {
	if len(value) == 0 {
		return errors.InvalidArgument("value cannot be empty", nil)
	}
	if len(value) > v.maxValueSize {
		return errors.ValueTooLarge(len(value), v.maxValueSize)
	}
	return nil
}

// ValidateVersion rejects the version reserved for control markers
func (v *Validator) ValidateVersion(version uint32) error {
	if version > MaxVersion {
		return errors.InvalidArgument(fmt.Sprintf("version %d is reserved", version), nil)
	}
	return nil
}
