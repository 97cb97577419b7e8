package clinic

import "time"

// Slot conflict semantics. Intervals are half-open [start, end): an
// appointment ending at 10:00 does not collide with one starting at 10:00.
// The same convention applies in SQL and in-memory checks.

// Overlaps reports whether [startA, endA) and [startB, endB) intersect.
func Overlaps(startA, endA, startB, endB time.Time) bool {
	return startA.Before(endB) && endA.After(startB)
}

// SlotFree decides whether a candidate appointment may occupy its interval,
// given the set of existing appointments overlapping that interval (the
// candidate itself excluded).
//
// Non-group types tolerate no overlap at all. Group types stack: the slot is
// free as long as every overlapping appointment is of the same type as the
// candidate, whatever the group size.
func SlotFree(candidate Appointment, candidateType AppointmentType, overlapping []Appointment) bool {
	if !candidateType.IsGroup {
		return len(overlapping) == 0
	}

	for _, other := range overlapping {
		if other.TypeID != candidate.TypeID {
			return false
		}
	}
	return true
}
