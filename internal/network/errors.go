package network

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPlacement is the sentinel wrapped by every *PlacementError.
	ErrInvalidPlacement = errors.New("invalid placement")

	// ErrUnknownAnchor is returned when an anchor names an intersection that
	// does not exist.
	ErrUnknownAnchor = errors.New("unknown anchor")

	// ErrUnknownSegment is returned when an operation names a segment that
	// does not exist.
	ErrUnknownSegment = errors.New("unknown segment")

	// ErrUnsupportedRemoval is returned when a removal would require merging
	// two curves into one.
	ErrUnsupportedRemoval = errors.New("unsupported removal")
)

// Reason explains why a placement was rejected.
type Reason int

const (
	ReasonAngleTooSharp Reason = iota + 1
	ReasonOverlap
	ReasonDegenerateCurve
	ReasonCurveTooSharp
	ReasonTooShallow
	ReasonTooCloseToIntersection
	ReasonExtendIntoSelf
	ReasonAnchorMismatch
	ReasonTrainOnSegment
)

var reasonNames = map[Reason]string{
	ReasonAngleTooSharp:          "angle too sharp",
	ReasonOverlap:                "overlap",
	ReasonDegenerateCurve:        "degenerate curve",
	ReasonCurveTooSharp:          "curve too sharp",
	ReasonTooShallow:             "too shallow",
	ReasonTooCloseToIntersection: "too close to intersection",
	ReasonExtendIntoSelf:         "extend into self",
	ReasonAnchorMismatch:         "anchor mismatch",
	ReasonTrainOnSegment:         "train on segment",
}

func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// Key returns a compact identifier for logs, metrics and the journal.
func (r Reason) Key() string {
	switch r {
	case ReasonAngleTooSharp:
		return "angle_too_sharp"
	case ReasonOverlap:
		return "overlap"
	case ReasonDegenerateCurve:
		return "degenerate_curve"
	case ReasonCurveTooSharp:
		return "curve_too_sharp"
	case ReasonTooShallow:
		return "too_shallow"
	case ReasonTooCloseToIntersection:
		return "too_close_to_intersection"
	case ReasonExtendIntoSelf:
		return "extend_into_self"
	case ReasonAnchorMismatch:
		return "anchor_mismatch"
	case ReasonTrainOnSegment:
		return "train_on_segment"
	}
	return "unknown"
}

// PlacementError is returned when the validator rejects a mutation.
type PlacementError struct {
	Reason  Reason
	Segment SegmentID // the existing segment involved, if any
	Detail  string
}

func (e *PlacementError) Error() string {
	msg := fmt.Sprintf("invalid placement: %s", e.Reason)
	if e.Segment != 0 {
		msg += fmt.Sprintf(" (with %s)", e.Segment)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *PlacementError) Unwrap() error {
	return ErrInvalidPlacement
}

func reject(r Reason, seg SegmentID, format string, args ...any) error {
	return &PlacementError{Reason: r, Segment: seg, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the placement reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var pe *PlacementError
	if errors.As(err, &pe) {
		return pe.Reason, true
	}
	return 0, false
}

// ErrorKind maps an error returned by the network to a short, stable label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	if r, ok := ReasonOf(err); ok {
		return r.Key()
	}
	switch {
	case errors.Is(err, ErrUnknownAnchor):
		return "unknown_anchor"
	case errors.Is(err, ErrUnknownSegment):
		return "unknown_segment"
	case errors.Is(err, ErrUnsupportedRemoval):
		return "unsupported_removal"
	}
	return "error"
}
