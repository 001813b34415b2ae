// Package recur expands iCalendar recurrences into the individual instances a
// report needs, the way the Google API does with singleEvents=true.
package recur

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"calreport/internal/apperr"
	"calreport/internal/models"
)

// MaxInstances caps the expansion of a single recurring event.
const MaxInstances = 5000

const dateLayout = "2006-01-02"

// Event is one VEVENT as read from an iCalendar source.
type Event struct {
	UID     string
	Summary string
	Creator models.Creator
	Start   time.Time
	End     time.Time
	AllDay  bool
	Created string
	Updated string

	RRule        string      // raw RRULE value, empty for single events
	ExDates      []time.Time // excluded instance starts
	RecurrenceID *time.Time  // set on an override of one instance
}

type instanceKey struct {
	uid   string
	start int64
}

// Expand returns every instance overlapping [from, to), ordered by start time.
// Overrides replace the instance their RECURRENCE-ID points at.
func Expand(events []Event, from, to time.Time) ([]models.RawEvent, error) {
	overridden := make(map[instanceKey]bool)
	for _, ev := range events {
		if ev.RecurrenceID != nil {
			overridden[instanceKey{ev.UID, ev.RecurrenceID.Unix()}] = true
		}
	}

	type instance struct {
		start time.Time
		raw   models.RawEvent
	}
	var out []instance

	for _, ev := range events {
		if ev.RRule == "" || ev.RecurrenceID != nil {
			if overlaps(ev.Start, ev.End, from, to) {
				id := ev.UID
				if ev.RecurrenceID != nil {
					id = instanceID(ev.UID, *ev.RecurrenceID, ev.AllDay)
				}
				out = append(out, instance{ev.Start, toRaw(ev, id, ev.Start, ev.End)})
			}
			continue
		}

		starts, err := occurrences(ev, from, to)
		if err != nil {
			return nil, err
		}
		dur := ev.End.Sub(ev.Start)
		for _, s := range starts {
			if overridden[instanceKey{ev.UID, s.Unix()}] {
				continue
			}
			e := s.Add(dur)
			if !overlaps(s, e, from, to) {
				continue
			}
			out = append(out, instance{s, toRaw(ev, instanceID(ev.UID, s, ev.AllDay), s, e)})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].start.Before(out[j].start)
	})

	raws := make([]models.RawEvent, len(out))
	for i, in := range out {
		raws[i] = in.raw
	}
	return raws, nil
}

// occurrences lists instance starts of a recurring event that may overlap the window.
func occurrences(ev Event, from, to time.Time) ([]time.Time, error) {
	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		return nil, fmt.Errorf("%w: event %q has invalid RRULE %q: %w", apperr.ErrDataFormat, ev.UID, ev.RRule, err)
	}
	loc := ev.Start.Location()
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(loc))
	}

	// Instances starting up to one duration before the window can still overlap it.
	after := from.Add(-ev.End.Sub(ev.Start)).In(loc)
	starts := set.Between(after, to.In(loc), true)
	if len(starts) > MaxInstances {
		starts = starts[:MaxInstances]
	}
	return starts, nil
}

// overlaps matches the Google API window: the event ends after from and starts before to.
func overlaps(start, end, from, to time.Time) bool {
	return end.After(from) && start.Before(to)
}

func instanceID(uid string, start time.Time, allDay bool) string {
	if allDay {
		return uid + "_" + start.Format("20060102")
	}
	return uid + "_" + start.UTC().Format("20060102T150405Z")
}

func toRaw(ev Event, id string, start, end time.Time) models.RawEvent {
	raw := models.RawEvent{
		ID:      id,
		Summary: ev.Summary,
		Creator: ev.Creator,
		Created: ev.Created,
		Updated: ev.Updated,
	}
	if ev.AllDay {
		raw.Start = models.EventTime{Date: start.Format(dateLayout)}
		raw.End = models.EventTime{Date: end.Format(dateLayout)}
	} else {
		raw.Start = models.EventTime{DateTime: start.Format(time.RFC3339)}
		raw.End = models.EventTime{DateTime: end.Format(time.RFC3339)}
	}
	return raw
}
