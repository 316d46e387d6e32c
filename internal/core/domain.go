package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Aluminum Facility = "Aluminum"
	Steel    Facility = "Steel"
	Vinyl    Facility = "Vinyl"

	FlagYes Flag = "yes"
	FlagNo  Flag = "no"
)

// DayLayout is the canonical calendar day format used in schedules and JSON.
const DayLayout = "2006-01-02"

type (
	// Facility is the fabrication line a job runs on. Empty means unspecified.
	Facility string

	// Flag is a yes/no attribute stored as the strings "yes" and "no".
	Flag string

	// Date is a calendar day in UTC. The zero value means "no date".
	Date struct {
		time.Time
	}

	// Job is one record of the jobdetails collection.
	Job struct {
		ID             string   `json:"_id"`
		JobNumber      string   `json:"JobNumber" validate:"required,max=64"`
		Client         string   `json:"Client" validate:"max=200"`
		Facility       Facility `json:"Facility" validate:"omitempty,oneof=Aluminum Steel Vinyl"`
		JobValue       float64  `json:"JobValue" validate:"gte=0"`
		Pieces         int      `json:"Pieces" validate:"gte=0"`
		RequiredByDate Date     `json:"RequiredByDate"`
		Color          string   `json:"Color" validate:"max=100"`
		TestFit        Flag     `json:"TestFit" validate:"omitempty,oneof=yes no"`
		Rush           Flag     `json:"Rush" validate:"omitempty,oneof=yes no"`
		Schedule       []string `json:"Schedule" validate:"dive,schedule_entry"`
	}

	// JobPatch is a partial update. Nil fields are left untouched.
	JobPatch struct {
		JobNumber      *string   `json:"JobNumber,omitempty"`
		Client         *string   `json:"Client,omitempty"`
		Facility       *Facility `json:"Facility,omitempty"`
		JobValue       *float64  `json:"JobValue,omitempty"`
		Pieces         *int      `json:"Pieces,omitempty"`
		RequiredByDate *Date     `json:"RequiredByDate,omitempty"`
		Color          *string   `json:"Color,omitempty"`
		TestFit        *Flag     `json:"TestFit,omitempty"`
		Rush           *Flag     `json:"Rush,omitempty"`
		Schedule       *[]string `json:"Schedule,omitempty"`
	}
)

var (
	ErrNotFound             = errors.New("job not found")
	ErrTestFitNotApplicable = errors.New("test fit not applicable for job")
	ErrAlreadyScheduled     = errors.New("day already scheduled for job")
	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidScheduleEntry = errors.New("invalid schedule entry")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrUnsupportedFormat    = errors.New("unsupported file format")
)

// Accepted input layouts, tried in order. The browser sends toDateString
// values ("Mon Jan 02 2006") and spreadsheets tend to use US slashes.
var dateLayouts = []string{
	DayLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"Mon Jan 2 2006",
	"1/2/2006",
	"1/2/06",
	"2006/1/2",
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a calendar day in any of the accepted layouts.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// String returns the day as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DayLayout)
}

// AddDays returns the date n days later (earlier when n is negative).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, string(data))
	}
	if strings.TrimSpace(s) == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseFacility canonicalizes the case of a known facility name. Unknown
// names are returned trimmed so validation can report them.
func ParseFacility(s string) Facility {
	s = strings.TrimSpace(s)
	for _, f := range []Facility{Aluminum, Steel, Vinyl} {
		if strings.EqualFold(s, string(f)) {
			return f
		}
	}
	return Facility(s)
}

func (f *Facility) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = ParseFacility(s)
	return nil
}

// ParseFlag accepts yes/no in the usual spellings. The empty string is "no".
func ParseFlag(s string) (Flag, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "1", "x":
		return FlagYes, nil
	case "no", "n", "false", "0", "":
		return FlagNo, nil
	}
	return "", fmt.Errorf("invalid yes/no value %q", s)
}

// Yes reports whether the flag is set.
func (f Flag) Yes() bool { return f == FlagYes }

func (f *Flag) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		if b {
			*f = FlagYes
		} else {
			*f = FlagNo
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid yes/no value %s", string(data))
	}
	parsed, err := ParseFlag(s)
	if err != nil {
		// keep the raw value so validation reports it against the field
		*f = Flag(s)
		return nil
	}
	*f = parsed
	return nil
}

// Normalize trims text fields, defaults flags to "no", and rewrites every
// parseable schedule entry to its canonical form without duplicates.
func (j *Job) Normalize() {
	j.JobNumber = strings.TrimSpace(j.JobNumber)
	j.Client = strings.TrimSpace(j.Client)
	j.Color = strings.TrimSpace(j.Color)
	j.Facility = ParseFacility(string(j.Facility))
	if j.TestFit == "" {
		j.TestFit = FlagNo
	}
	if j.Rush == "" {
		j.Rush = FlagNo
	}
	j.Schedule = NormalizeSchedule(j.Schedule)
}

// Validate checks the job and returns a *ValidationError on failure.
func (j Job) Validate() error {
	return ValidateStruct(j)
}

// IsService reports whether the job carries no value.
func (j Job) IsService() bool {
	return j.JobValue == 0
}

// InstallCount is the number of non test-fit schedule entries.
func (j Job) InstallCount() int {
	n := 0
	for _, e := range j.Schedule {
		if !IsTestFitEntry(e) {
			n++
		}
	}
	return n
}

// ApportionedValue is the share of JobValue assigned to each install day.
func (j Job) ApportionedValue() float64 {
	n := j.InstallCount()
	if n == 0 {
		n = 1
	}
	return j.JobValue / float64(n)
}

// HasEntry reports whether the schedule holds exactly entry.
func (j Job) HasEntry(entry string) bool {
	for _, e := range j.Schedule {
		if e == entry {
			return true
		}
	}
	return false
}

// FindEntry returns the stored schedule string that names the same day and
// kind as e, whatever layout it was written in.
func (j Job) FindEntry(e ScheduleEntry) (string, bool) {
	for _, raw := range j.Schedule {
		got, err := ParseScheduleEntry(raw)
		if err == nil && got.TestFit == e.TestFit && got.Day.Equal(e.Day.Time) {
			return raw, true
		}
	}
	return "", false
}

// Clone returns a copy that shares no slices with j.
func (j Job) Clone() Job {
	out := j
	out.Schedule = append([]string{}, j.Schedule...)
	return out
}

// IsStale reports whether the schedule is non-empty and every entry falls
// before cutoff. Unparseable entries keep a job from being stale.
func (j Job) IsStale(cutoff Date) bool {
	if len(j.Schedule) == 0 {
		return false
	}
	for _, raw := range j.Schedule {
		e, err := ParseScheduleEntry(raw)
		if err != nil {
			return false
		}
		if !e.Day.Time.Before(cutoff.Time) {
			return false
		}
	}
	return true
}

// StaleCutoff returns the first day that is not older than the horizon.
func StaleCutoff(now time.Time, days int) Date {
	return DateOf(now.UTC()).AddDays(-days)
}

// IsEmpty reports whether the patch changes nothing.
func (p JobPatch) IsEmpty() bool {
	return p.JobNumber == nil && p.Client == nil && p.Facility == nil &&
		p.JobValue == nil && p.Pieces == nil && p.RequiredByDate == nil &&
		p.Color == nil && p.TestFit == nil && p.Rush == nil && p.Schedule == nil
}

// Apply returns j with the patch fields written over it.
func (p JobPatch) Apply(j Job) Job {
	out := j.Clone()
	if p.JobNumber != nil {
		out.JobNumber = strings.TrimSpace(*p.JobNumber)
	}
	if p.Client != nil {
		out.Client = strings.TrimSpace(*p.Client)
	}
	if p.Facility != nil {
		out.Facility = ParseFacility(string(*p.Facility))
	}
	if p.JobValue != nil {
		out.JobValue = *p.JobValue
	}
	if p.Pieces != nil {
		out.Pieces = *p.Pieces
	}
	if p.RequiredByDate != nil {
		out.RequiredByDate = *p.RequiredByDate
	}
	if p.Color != nil {
		out.Color = strings.TrimSpace(*p.Color)
	}
	if p.TestFit != nil {
		out.TestFit = *p.TestFit
	}
	if p.Rush != nil {
		out.Rush = *p.Rush
	}
	if p.Schedule != nil {
		out.Schedule = NormalizeSchedule(*p.Schedule)
	}
	return out
}
