package job

import "time"

// Job is the technician-side view of a dispatched work order. Status is only
// ever set from dispatch-service responses; the client never advances it on
// its own.
type Job struct {
	ID        string
	Title     string
	Address   string
	Status    Status
	UpdatedAt time.Time
}

// Stats aggregates a job set into the buckets the home screen shows.
type Stats struct {
	Total     int
	Pending   int // ASSIGNED, waiting for the technician to accept
	Active    int // ACCEPTED or IN_PROGRESS
	Completed int
}

// Tally computes bucket counts over a job set.
func Tally(jobs []Job) Stats {
	var s Stats
	for _, j := range jobs {
		s.Total++
		switch {
		case j.Status == StatusAssigned:
			s.Pending++
		case j.Status.Active():
			s.Active++
		case j.Status == StatusCompleted:
			s.Completed++
		}
	}
	return s
}
