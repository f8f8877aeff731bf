// Package sequence implements the edit operations on a playlist's ordered
// track list. Every operation takes a snapshot and returns a new one; the
// input slice is never modified, so a failed call leaves nothing to undo.
package sequence

import (
	"musicroom/internal/apperr"
)

// MaxLength is the largest number of entries a sequence may hold.
const MaxLength = 10000

// AtEnd asks Append to insert after the last entry.
const AtEnd = -1

// TrackRef identifies a playable track. Two refs are the same track when
// their identifiers are equal.
type TrackRef string

// Sequence is an ordered list of track refs. The same ref may appear more
// than once.
type Sequence []TrackRef

// Len returns the number of entries.
func (s Sequence) Len() int { return len(s) }

// At returns the ref at i, or false when i is outside the sequence.
func (s Sequence) At(i int) (TrackRef, bool) {
	if i < 0 || i >= len(s) {
		return "", false
	}
	return s[i], true
}

// IndexOf returns the first index holding ref, or -1.
func (s Sequence) IndexOf(ref TrackRef) int {
	for i, r := range s {
		if r == ref {
			return i
		}
	}
	return -1
}

// Contains reports whether ref appears at least once.
func (s Sequence) Contains(ref TrackRef) bool {
	return s.IndexOf(ref) >= 0
}

// Clone returns an independent copy. A nil sequence clones to an empty one.
func (s Sequence) Clone() Sequence {
	out := make(Sequence, len(s))
	copy(out, s)
	return out
}

// Append inserts refs as one contiguous block starting at position.
// Pass AtEnd to append after the last entry.
func Append(seq Sequence, refs []TrackRef, position int) (Sequence, error) {
	if position == AtEnd {
		position = len(seq)
	}
	if position < 0 || position > len(seq) {
		return seq, apperr.New(apperr.CodeOutOfRange,
			"position %d is outside [0, %d]", position, len(seq))
	}
	if err := validateRefs(refs); err != nil {
		return seq, err
	}
	if len(seq)+len(refs) > MaxLength {
		return seq, apperr.New(apperr.CodeCapacityExceeded,
			"sequence would hold %d tracks, maximum is %d", len(seq)+len(refs), MaxLength)
	}

	out := make(Sequence, 0, len(seq)+len(refs))
	out = append(out, seq[:position]...)
	out = append(out, refs...)
	out = append(out, seq[position:]...)
	return out, nil
}

// Replace discards seq and returns refs as the new sequence.
func Replace(seq Sequence, refs []TrackRef) (Sequence, error) {
	if err := validateRefs(refs); err != nil {
		return seq, err
	}
	if len(refs) > MaxLength {
		return seq, apperr.New(apperr.CodeCapacityExceeded,
			"sequence would hold %d tracks, maximum is %d", len(refs), MaxLength)
	}
	return Sequence(refs).Clone(), nil
}

// DeleteByReference removes every occurrence of each target. Survivors keep
// their relative order. Targets that do not appear are ignored.
func DeleteByReference(seq Sequence, targets []TrackRef) Sequence {
	drop := make(map[TrackRef]struct{}, len(targets))
	for _, t := range targets {
		drop[t] = struct{}{}
	}

	out := make(Sequence, 0, len(seq))
	for _, r := range seq {
		if _, ok := drop[r]; ok {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ReorderRange moves seq[rangeStart : rangeStart+rangeLength] so that it sits
// immediately before the entry that was at insertBefore in the original
// sequence. insertBefore == len(seq) moves the block to the end. A
// rangeLength of 0 is read as 1.
//
// insertBefore strictly inside the block has no meaning and fails with
// InvalidRange.
func ReorderRange(seq Sequence, rangeStart, rangeLength, insertBefore int) (Sequence, error) {
	if rangeLength == 0 {
		rangeLength = 1
	}
	n := len(seq)
	if rangeStart < 0 || rangeLength < 0 || rangeStart+rangeLength > n {
		return seq, apperr.New(apperr.CodeOutOfRange,
			"range [%d, %d) is outside [0, %d)", rangeStart, rangeStart+rangeLength, n)
	}
	if insertBefore < 0 || insertBefore > n {
		return seq, apperr.New(apperr.CodeOutOfRange,
			"insertBefore %d is outside [0, %d]", insertBefore, n)
	}
	end := rangeStart + rangeLength
	if insertBefore > rangeStart && insertBefore < end {
		return seq, apperr.New(apperr.CodeInvalidRange,
			"insertBefore %d lies inside the moved range [%d, %d)", insertBefore, rangeStart, end)
	}

	block := seq[rangeStart:end]
	rest := make(Sequence, 0, n-rangeLength)
	rest = append(rest, seq[:rangeStart]...)
	rest = append(rest, seq[end:]...)

	at := insertBefore
	if insertBefore >= end {
		at = insertBefore - rangeLength
	}

	out := make(Sequence, 0, n)
	out = append(out, rest[:at]...)
	out = append(out, block...)
	out = append(out, rest[at:]...)
	return out, nil
}

func validateRefs(refs []TrackRef) error {
	for i, r := range refs {
		if r == "" {
			return apperr.New(apperr.CodeInvalid, "track %d has an empty identifier", i)
		}
	}
	return nil
}
