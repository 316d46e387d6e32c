package core

import "time"

type (
	// DayJob is one schedule hit of a job on a given day.
	DayJob struct {
		Job     Job     `json:"job"`
		TestFit bool    `json:"testFit"`
		Service bool    `json:"service"`
		Rush    bool    `json:"rush"`
		Value   float64 `json:"value"`
	}

	// DaySummary is the calendar cell for one day.
	DaySummary struct {
		Date    Date     `json:"date"`
		Weekday string   `json:"weekday"`
		Weekend bool     `json:"weekend"`
		Total   float64  `json:"total"`
		Jobs    []DayJob `json:"jobs"`
	}

	// MonthSummary is a Monday-first month grid. LeadingBlanks is the number
	// of empty cells before the 1st.
	MonthSummary struct {
		Year          int          `json:"year"`
		Month         int          `json:"month"`
		LeadingBlanks int          `json:"leadingBlanks"`
		Total         float64      `json:"total"`
		Days          []DaySummary `json:"days"`
	}

	// DuplicateGroup lists the ids sharing one job number.
	DuplicateGroup struct {
		JobNumber string   `json:"jobNumber"`
		IDs       []string `json:"ids"`
	}
)

// SummarizeDay returns the jobs scheduled on day and the apportioned total.
func SummarizeDay(jobs []Job, day Date) DaySummary {
	return summarize(day, indexByDay(jobs)[day.String()])
}

// SummarizeMonth builds every day of the month from a single pass over jobs.
func SummarizeMonth(jobs []Job, year int, month time.Month) MonthSummary {
	first := NewDate(year, int(month), 1)
	byDay := indexByDay(jobs)

	out := MonthSummary{
		Year:          year,
		Month:         int(month),
		LeadingBlanks: (int(first.Weekday()) + 6) % 7,
	}
	for d := first; d.Month() == month; d = d.AddDays(1) {
		sum := summarize(d, byDay[d.String()])
		out.Total += sum.Total
		out.Days = append(out.Days, sum)
	}
	return out
}

func summarize(day Date, hits []DayJob) DaySummary {
	wd := day.Weekday()
	sum := DaySummary{
		Date:    day,
		Weekday: wd.String(),
		Weekend: wd == time.Saturday || wd == time.Sunday,
		Jobs:    make([]DayJob, 0, len(hits)),
	}
	for _, h := range hits {
		sum.Total += h.Value
		sum.Jobs = append(sum.Jobs, h)
	}
	return sum
}

// indexByDay maps canonical day strings to schedule hits. Entries that do
// not parse are ignored.
func indexByDay(jobs []Job) map[string][]DayJob {
	out := make(map[string][]DayJob)
	for _, j := range jobs {
		share := j.ApportionedValue()
		for _, raw := range j.Schedule {
			e, err := ParseScheduleEntry(raw)
			if err != nil {
				continue
			}
			hit := DayJob{
				Job:     j,
				TestFit: e.TestFit,
				Service: j.IsService(),
				Rush:    j.Rush.Yes(),
			}
			if !hit.TestFit && !hit.Service {
				hit.Value = share
			}
			key := e.Day.String()
			out[key] = append(out[key], hit)
		}
	}
	return out
}

// FindDuplicates reports job numbers held by more than one job, in order of
// first appearance.
func FindDuplicates(jobs []Job) []DuplicateGroup {
	ids := make(map[string][]string)
	var order []string
	for _, j := range jobs {
		if _, ok := ids[j.JobNumber]; !ok {
			order = append(order, j.JobNumber)
		}
		ids[j.JobNumber] = append(ids[j.JobNumber], j.ID)
	}
	out := make([]DuplicateGroup, 0)
	for _, n := range order {
		if len(ids[n]) > 1 {
			out = append(out, DuplicateGroup{JobNumber: n, IDs: ids[n]})
		}
	}
	return out
}
