package scheduler

import (
	"time"

	"github.com/c360/autoprocess/autoprocess"
)

// SeriesUpdatedPattern subscribes to the update notifications of every series.
const SeriesUpdatedPattern = "autoprocess.series.*.*.updated"

// SeriesUpdatedSubject is the subject announcing new data in a series.
func SeriesUpdatedSubject(ref autoprocess.SeriesRef) string {
	return "autoprocess.series." + ref.Station() + "." + ref.Series() + ".updated"
}

// ProcessDoneSubject is the subject a successful run with output is announced on.
func ProcessDoneSubject(id string) string {
	return "autoprocess.process." + id + ".done"
}

// DoneEvent is the payload published on ProcessDoneSubject.
type DoneEvent struct {
	ProcessID string                `json:"process_id"`
	RunID     string                `json:"run_id"`
	Target    autoprocess.SeriesRef `json:"target"`
	Appended  int                   `json:"appended"`
	Finished  time.Time             `json:"finished"`
}

// SeriesUpdatedEvent is the payload published on SeriesUpdatedSubject. The handler
// reads the series from the payload since core NATS handlers do not see the subject.
type SeriesUpdatedEvent struct {
	Series autoprocess.SeriesRef `json:"series"`
	Source string                `json:"source,omitempty"`
}
