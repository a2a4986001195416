package consultations

import "fmt"

// Business hours for consultations. The lunch hour is never bookable.
const (
	dayStart   = 10 * 60
	dayEnd     = 17 * 60
	lunchStart = 13 * 60
	lunchEnd   = 14 * 60
	slotLen    = 30
)

// Slots are the fixed half-hour labels, in day order.
var Slots = buildSlots()

var slotIndex = func() map[string]int {
	m := make(map[string]int, len(Slots))
	for i, s := range Slots {
		m[s] = i
	}
	return m
}()

func buildSlots() []string {
	var out []string
	for m := dayStart; m < dayEnd; m += slotLen {
		if m >= lunchStart && m < lunchEnd {
			continue
		}
		out = append(out, fmt.Sprintf("%s to %s", clock(m), clock(m+slotLen)))
	}
	return out
}

func clock(min int) string { return fmt.Sprintf("%02d:%02d", min/60, min%60) }

// ValidSlot reports whether label is one of Slots.
func ValidSlot(label string) bool {
	_, ok := slotIndex[label]
	return ok
}
