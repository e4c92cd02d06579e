// Package booking is the polling-and-reservation loop: centre batching,
// calendar scanning, slot reservation, session rotation and the orchestrator
// that composes them.
package booking

import (
	"context"

	"github.com/example/slotbot/internal/browser"
)

// ScanKind tags a ScanResult.
type ScanKind int

const (
	Exhausted ScanKind = iota
	Found
	NotFoundAdvance
)

func (k ScanKind) String() string {
	switch k {
	case Found:
		return "found"
	case NotFoundAdvance:
		return "not_found_advance"
	default:
		return "exhausted"
	}
}

// ScanResult is the outcome of a scan. Slot is set only for Found.
type ScanResult struct {
	Kind     ScanKind
	Slot     browser.Element
	Week     string // calendar header the result was observed on
	Attempts int

	// OutOfWindow marks a NotFoundAdvance that paged past an irrelevant week
	// and did not consume an attempt.
	OutOfWindow bool
}

// OutcomeKind tags a reservation Outcome.
type OutcomeKind int

const (
	Failed OutcomeKind = iota
	Confirmed
	Unverifiable
)

func (k OutcomeKind) String() string {
	switch k {
	case Confirmed:
		return "confirmed"
	case Unverifiable:
		return "unverifiable"
	default:
		return "failed"
	}
}

type Outcome struct {
	Kind    OutcomeKind
	Details Details // meaningful only when Confirmed
	Clicks  int     // successful reserve clicks
	Signal  string  // verification signal that confirmed the claim
}

// Unknown fills Details fields that could not be extracted.
const Unknown = "unknown"

// Details is a best-effort description of a reserved slot.
type Details struct {
	Centre    string
	Date      string
	Time      string
	DateTime  string
	Countdown string
	SlotID    string
	Reference string
	URL       string
}

func NewDetails() Details {
	return Details{
		Centre: Unknown, Date: Unknown, Time: Unknown, DateTime: Unknown,
		Countdown: Unknown, SlotID: Unknown, Reference: Unknown, URL: Unknown,
	}
}

// Fields renders d as the flat map handed to notification sinks.
func (d Details) Fields() map[string]string {
	return map[string]string{
		"centre":    d.Centre,
		"date":      d.Date,
		"time":      d.Time,
		"date_time": d.DateTime,
		"countdown": d.Countdown,
		"slot_id":   d.SlotID,
		"reference": d.Reference,
	}
}

// Counters are owned by the orchestrator.
type Counters struct {
	BookingsMade int
	MaxBookings  int
	Cycles       int
}

// Authenticator opens a logged-in session positioned on the calendar.
type Authenticator interface {
	Login(ctx context.Context, kind browser.Kind) (browser.Session, error)
}

// Notifier delivers a booking. It reports delivery and must not block the
// loop on failure.
type Notifier interface {
	Notify(ctx context.Context, details map[string]string, referenceURL string) bool
}

// CentreManager controls which centres filter the calendar.
type CentreManager interface {
	Clear(ctx context.Context, s browser.Session) error
	Add(ctx context.Context, s browser.Session, centre string) (bool, error)
}

// Navigator moves between the calendar and the reservation views.
type Navigator interface {
	ReturnToCalendar(ctx context.Context, s browser.Session) error
	// ContinueSearching acknowledges a reservation and resumes searching. It
	// reports false when the portal offers no way to continue.
	ContinueSearching(ctx context.Context, s browser.Session) (bool, error)
}

// DetailsExtractor scrapes a confirmation view. It never fails: missing
// fields are Unknown.
type DetailsExtractor interface {
	Extract(ctx context.Context, s browser.Session) Details
}

type SlotScanner interface {
	Scan(ctx context.Context, s browser.Session, maxAttempts int) (ScanResult, error)
}

type SlotReserver interface {
	Attempt(ctx context.Context, s browser.Session, slot browser.Element) (Outcome, error)
}

// Observer receives loop events for metrics and status reporting.
type Observer interface {
	BatchStarted(index int, centres []string, added int)
	ScanFinished(res ScanResult)
	Reserved(o Outcome)
	Rotated(kind browser.Kind, reason string)
	CycleCompleted(cycles int)
}

type NopObserver struct{}

func (NopObserver) BatchStarted(int, []string, int) {}
func (NopObserver) ScanFinished(ScanResult) {}
func (NopObserver) Reserved(Outcome) {}
func (NopObserver) Rotated(browser.Kind, string) {}
func (NopObserver) CycleCompleted(int) {}
