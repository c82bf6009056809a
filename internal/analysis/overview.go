package analysis

import (
	"time"

	"leads-dashboard/internal/fields"
	"leads-dashboard/internal/format"
)

const volumeDays = 30

// Lead is the part of a lead the overview needs.
type Lead struct {
	CreatedAt   time.Time
	Interested  bool
	ManualReply bool
	Metadata    fields.Metadata
}

// KPIs are the headline counters of the overview.
type KPIs struct {
	Total      int `json:"total"`
	Interested int `json:"interested"`
	Manual     int `json:"manual"`
	Today      int `json:"today"`
}

// VolumePoint is one day of the lead volume series.
type VolumePoint struct {
	Name       string `json:"name"`
	Date       string `json:"date"`
	Total      int    `json:"total"`
	Interested int    `json:"interested"`
}

// FieldChart pairs a field with its chart.
type FieldChart struct {
	Field fields.Definition `json:"field"`
	Chart Chart             `json:"chart"`
}

// Overview is the full analytics view for a company.
type Overview struct {
	Stats    KPIs          `json:"stats"`
	Volume   []VolumePoint `json:"volume"`
	Weekdays []Bucket      `json:"weekdays"`
	Hours    []Bucket      `json:"hours"`
	Fields   []FieldChart  `json:"fields"`
}

// BuildOverview computes the overview as of now. Calendar days and hours are
// taken in loc. Only chartable fields are included, in the order of defs.
func BuildOverview(leads []Lead, defs []fields.Definition, now time.Time, loc *time.Location) Overview {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	first := today.AddDate(0, 0, -(volumeDays - 1))

	ov := Overview{
		Volume:   make([]VolumePoint, volumeDays),
		Weekdays: make([]Bucket, 7),
		Hours:    make([]Bucket, 8),
	}
	index := make(map[string]int, volumeDays)
	for i := range ov.Volume {
		d := first.AddDate(0, 0, i)
		key := d.Format(fields.DateLayout)
		ov.Volume[i] = VolumePoint{Name: format.DayMonth(d), Date: key}
		index[key] = i
	}
	for i := range ov.Weekdays {
		ov.Weekdays[i].Name = format.Weekdays[i]
	}
	for i := range ov.Hours {
		ov.Hours[i].Name = format.Hour(i * 3)
	}

	todayKey := today.Format(fields.DateLayout)
	metas := make([]fields.Metadata, len(leads))
	for i, l := range leads {
		metas[i] = l.Metadata
		ov.Stats.Total++
		if l.Interested {
			ov.Stats.Interested++
		}
		if l.ManualReply {
			ov.Stats.Manual++
		}
		if l.CreatedAt.IsZero() {
			continue
		}
		local := l.CreatedAt.In(loc)
		key := local.Format(fields.DateLayout)
		if key == todayKey {
			ov.Stats.Today++
		}
		if j, ok := index[key]; ok {
			ov.Volume[j].Total++
			if l.Interested {
				ov.Volume[j].Interested++
			}
		}
		ov.Weekdays[local.Weekday()].Value++
		ov.Hours[local.Hour()/3].Value++
	}

	for i := range defs {
		c := Analyze(&defs[i], metas)
		if c.Chartable {
			ov.Fields = append(ov.Fields, FieldChart{Field: defs[i], Chart: c})
		}
	}
	return ov
}
