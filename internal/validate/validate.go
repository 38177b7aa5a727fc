// Package validate implements the safety validator: a pure, conservative
// check that decides whether a backend's correction may be written back.
//
// The validator trades recall for safety. It rejects blanked-out text and
// corrections that grow beyond a fixed ratio of the original, because a
// backend that rewrites rather than corrects must never replace user text
// unnoticed. Identical text is a distinguished no-op verdict, not an error.
package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/typofix/pkg/types"
)

// DefaultMaxLengthRatio is the largest accepted len(corrected)/len(original).
const DefaultMaxLengthRatio = 1.5

// Verdict is the outcome of [Check].
type Verdict int

const (
	// Accept means the correction may be written.
	Accept Verdict = iota

	// RejectNoOp means the correction equals the original. The cycle succeeds
	// without writing.
	RejectNoOp

	// RejectUnsafeLengthRatio means the correction grew beyond the ratio.
	RejectUnsafeLengthRatio

	// RejectEmpty means the correction is blank while the original is not.
	RejectEmpty
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case Accept:
		return "accept"
	case RejectNoOp:
		return "reject_no_op"
	case RejectUnsafeLengthRatio:
		return "reject_unsafe_length_ratio"
	case RejectEmpty:
		return "reject_empty"
	default:
		return "unknown"
	}
}

// Err returns the sentinel error for a rejecting verdict, or nil for
// [Accept] and [RejectNoOp].
func (v Verdict) Err() error {
	switch v {
	case RejectEmpty:
		return types.ErrRejectEmpty
	case RejectUnsafeLengthRatio:
		return types.ErrRejectUnsafeLengthRatio
	case Accept, RejectNoOp:
		return nil
	default:
		return fmt.Errorf("validate: unknown verdict %d", int(v))
	}
}

// Check judges corrected against original. Lengths are measured in runes. A
// maxRatio of zero or less selects [DefaultMaxLengthRatio].
//
// Check performs no I/O and keeps no state.
func Check(original, corrected string, maxRatio float64) Verdict {
	if maxRatio <= 0 {
		maxRatio = DefaultMaxLengthRatio
	}
	if corrected == original {
		return RejectNoOp
	}
	if strings.TrimSpace(corrected) == "" && strings.TrimSpace(original) != "" {
		return RejectEmpty
	}
	if float64(utf8.RuneCountInString(corrected)) > maxRatio*float64(utf8.RuneCountInString(original)) {
		return RejectUnsafeLengthRatio
	}
	return Accept
}
