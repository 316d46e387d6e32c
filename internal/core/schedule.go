package core

import (
	"fmt"
	"strings"
)

// TestFitSuffix marks a schedule entry as a test fit rather than an install.
const TestFitSuffix = " (Test Fit)"

const (
	ScheduleAdd ScheduleOp = iota + 1
	ScheduleRemove
)

type (
	// ScheduleEntry is a parsed schedule string.
	ScheduleEntry struct {
		Day     Date
		TestFit bool
	}

	// ScheduleOp is the store call a mutation resolves to.
	ScheduleOp int

	// ScheduleChange is a single add or remove against a job's schedule.
	ScheduleChange struct {
		Op    ScheduleOp
		Entry string
	}
)

// ParseScheduleEntry parses "YYYY-MM-DD" or "YYYY-MM-DD (Test Fit)". Any
// accepted date layout may precede the suffix; the suffix is matched
// without regard to case.
func ParseScheduleEntry(s string) (ScheduleEntry, error) {
	s = strings.TrimSpace(s)
	testFit := false
	suffix := strings.TrimSpace(TestFitSuffix)
	if len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix) {
		testFit = true
		s = strings.TrimSpace(s[:len(s)-len(suffix)])
	}
	day, err := ParseDate(s)
	if err != nil {
		return ScheduleEntry{}, fmt.Errorf("%w: %v", ErrInvalidScheduleEntry, err)
	}
	return ScheduleEntry{Day: day, TestFit: testFit}, nil
}

// String renders the canonical stored form.
func (e ScheduleEntry) String() string {
	if e.TestFit {
		return TestFitEntryOf(e.Day)
	}
	return InstallEntry(e.Day)
}

// InstallEntry is the plain schedule entry for d.
func InstallEntry(d Date) string {
	return d.String()
}

// TestFitEntryOf is the suffixed schedule entry for d.
func TestFitEntryOf(d Date) string {
	return d.String() + TestFitSuffix
}

// IsTestFitEntry reports whether a stored entry carries the test fit suffix.
func IsTestFitEntry(s string) bool {
	return strings.HasSuffix(s, TestFitSuffix)
}

// CanonicalEntry rewrites s to its stored form.
func CanonicalEntry(s string) (string, error) {
	e, err := ParseScheduleEntry(s)
	if err != nil {
		return "", err
	}
	return e.String(), nil
}

// NormalizeSchedule canonicalizes parseable entries and drops duplicates
// while keeping first-seen order. Unparseable entries are kept verbatim so
// validation can report them. The result is never nil.
func NormalizeSchedule(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		entry := strings.TrimSpace(raw)
		if canonical, err := CanonicalEntry(entry); err == nil {
			entry = canonical
		}
		if _, ok := seen[entry]; ok {
			continue
		}
		seen[entry] = struct{}{}
		out = append(out, entry)
	}
	return out
}

// PlanToggle cycles a day: a plain entry is removed, otherwise a test fit
// entry is removed, otherwise a plain entry is added. Stored entries are
// matched by the day they name, and a removal targets the stored string.
func PlanToggle(j Job, day Date) ScheduleChange {
	if raw, ok := j.FindEntry(ScheduleEntry{Day: day}); ok {
		return ScheduleChange{Op: ScheduleRemove, Entry: raw}
	}
	if raw, ok := j.FindEntry(ScheduleEntry{Day: day, TestFit: true}); ok {
		return ScheduleChange{Op: ScheduleRemove, Entry: raw}
	}
	return ScheduleChange{Op: ScheduleAdd, Entry: InstallEntry(day)}
}

// PlanTestFit adds a test fit entry for a day that holds no entry yet. It
// never removes an install.
func PlanTestFit(j Job, day Date) (ScheduleChange, error) {
	if !j.TestFit.Yes() {
		return ScheduleChange{}, ErrTestFitNotApplicable
	}
	_, install := j.FindEntry(ScheduleEntry{Day: day})
	_, testFit := j.FindEntry(ScheduleEntry{Day: day, TestFit: true})
	if install || testFit {
		return ScheduleChange{}, ErrAlreadyScheduled
	}
	return ScheduleChange{Op: ScheduleAdd, Entry: TestFitEntryOf(day)}, nil
}

// Apply performs the change on a schedule with set semantics.
func (c ScheduleChange) Apply(schedule []string) []string {
	out := make([]string, 0, len(schedule)+1)
	found := false
	for _, e := range schedule {
		if e == c.Entry {
			found = true
			if c.Op == ScheduleRemove {
				continue
			}
		}
		out = append(out, e)
	}
	if c.Op == ScheduleAdd && !found {
		out = append(out, c.Entry)
	}
	return out
}

func (op ScheduleOp) String() string {
	switch op {
	case ScheduleAdd:
		return "add"
	case ScheduleRemove:
		return "remove"
	default:
		return "unknown"
	}
}
