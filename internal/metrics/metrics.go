// Package metrics exposes booking loop progress as Prometheus series and as
// a JSON-friendly snapshot.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/example/slotbot/internal/booking"
	"github.com/example/slotbot/internal/browser"
)

// Snapshot is the latest loop state.
type Snapshot struct {
	Cycles       int       `json:"cycles"`
	BookingsMade int       `json:"bookings_made"`
	Batch        []string  `json:"batch"`
	BatchIndex   int       `json:"batch_index"`
	Browser      string    `json:"browser"`
	LastScan     string    `json:"last_scan"`
	LastWeek     string    `json:"last_week,omitempty"`
	LastBooking  time.Time `json:"last_booking,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

var _ booking.Observer = (*Recorder)(nil)

// Recorder implements booking.Observer.
type Recorder struct {
	batches   prometheus.Counter
	centres   prometheus.Histogram
	scans     *prometheus.CounterVec
	attempts  prometheus.Counter
	outcomes  *prometheus.CounterVec
	rotations *prometheus.CounterVec
	cycles    prometheus.Gauge

	now  func() time.Time
	mu   sync.Mutex
	snap Snapshot
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		batches: f.NewCounter(prometheus.CounterOpts{
			Name: "slotbot_batches_started_total",
			Help: "Centre batches set up on the search page",
		}),
		centres: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "slotbot_batch_centres_added",
			Help:    "Centres the portal accepted per batch",
			Buckets: prometheus.LinearBuckets(0, 1, 6),
		}),
		scans: f.NewCounterVec(prometheus.CounterOpts{
			Name: "slotbot_scans_total",
			Help: "Finished calendar scans by result",
		}, []string{"result"}),
		attempts: f.NewCounter(prometheus.CounterOpts{
			Name: "slotbot_scan_attempts_total",
			Help: "Calendar pages inspected",
		}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "slotbot_reservations_total",
			Help: "Reservation attempts by outcome",
		}, []string{"outcome"}),
		rotations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "slotbot_session_rotations_total",
			Help: "Browser session rotations by new browser and reason",
		}, []string{"browser", "reason"}),
		cycles: f.NewGauge(prometheus.GaugeOpts{
			Name: "slotbot_cycles_completed",
			Help: "Full passes over every centre",
		}),
		now:  time.Now,
		snap: Snapshot{Cycles: 1},
	}
}

func (r *Recorder) BatchStarted(index int, centres []string, added int) {
	r.batches.Inc()
	r.centres.Observe(float64(added))
	r.update(func(s *Snapshot) {
		s.BatchIndex = index
		s.Batch = append([]string(nil), centres...)
	})
}

func (r *Recorder) ScanFinished(res booking.ScanResult) {
	r.scans.WithLabelValues(res.Kind.String()).Inc()
	r.attempts.Add(float64(res.Attempts))
	r.update(func(s *Snapshot) {
		s.LastScan = res.Kind.String()
		s.LastWeek = res.Week
	})
}

func (r *Recorder) Reserved(o booking.Outcome) {
	r.outcomes.WithLabelValues(o.Kind.String()).Inc()
	if o.Kind != booking.Confirmed {
		return
	}
	r.update(func(s *Snapshot) {
		s.BookingsMade++
		s.LastBooking = r.now()
	})
}

func (r *Recorder) Rotated(kind browser.Kind, reason string) {
	r.rotations.WithLabelValues(string(kind), reason).Inc()
	r.update(func(s *Snapshot) { s.Browser = string(kind) })
}

func (r *Recorder) CycleCompleted(cycles int) {
	r.cycles.Set(float64(cycles))
	r.update(func(s *Snapshot) { s.Cycles = cycles + 1 })
}

// Snapshot returns a copy of the latest state.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.snap
	s.Batch = append([]string(nil), r.snap.Batch...)
	return s
}

func (r *Recorder) update(fn func(*Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.snap)
	r.snap.UpdatedAt = r.now()
}
