package cx

import "fmt"

// Counter tallies export outcomes. The zero value is the merge identity.
type Counter struct {
	Saved   int
	Skipped int
	Errored int
}

// Merge returns the field-wise sum of c and other. It is associative and
// commutative, and neither operand is modified.
func (c Counter) Merge(other Counter) Counter {
	return Counter{
		Saved:   c.Saved + other.Saved,
		Skipped: c.Skipped + other.Skipped,
		Errored: c.Errored + other.Errored,
	}
}

// Total is the number of outcomes recorded.
func (c Counter) Total() int {
	return c.Saved + c.Skipped + c.Errored
}

// IsZero reports whether nothing was recorded.
func (c Counter) IsZero() bool {
	return c == Counter{}
}

func (c Counter) String() string {
	return fmt.Sprintf("saved=%d skipped=%d errored=%d", c.Saved, c.Skipped, c.Errored)
}
