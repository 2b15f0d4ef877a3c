package domain

import "time"

// Event entity kinds.
const (
	EntityJob         = "marketplace_job"
	EntityApplication = "job_application"
)

// Event is the single domain event emitted per state transition. In-process
// listeners and any external bus subscribe to the same stream.
type Event struct {
	Entity     string    `json:"entity"`
	EntityID   int64     `json:"entity_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	AccountID  int64     `json:"account_id"`
	JobID      int64     `json:"job_id"`
	Credits    int       `json:"credits,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// JobEvent builds a transition event for a marketplace job.
func JobEvent(job *MarketplaceJob, from, to JobStatus, reason string) Event {
	return Event{
		Entity:     EntityJob,
		EntityID:   job.ID,
		From:       string(from),
		To:         string(to),
		AccountID:  job.ClientID,
		JobID:      job.ID,
		Reason:     reason,
		OccurredAt: time.Now(),
	}
}

// ApplicationEvent builds a transition event for a job application. Credits
// carries the refundable amount for transitions that compensate the tradie.
func ApplicationEvent(app *JobApplication, from, to ApplicationStatus, credits int, reason string) Event {
	return Event{
		Entity:     EntityApplication,
		EntityID:   app.ID,
		From:       string(from),
		To:         string(to),
		AccountID:  app.TradieID,
		JobID:      app.MarketplaceJobID,
		Credits:    credits,
		Reason:     reason,
		OccurredAt: time.Now(),
	}
}
