package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 15},
		},
		[]string{"method", "endpoint"},
	)

	// RecorderWrites counts session recorder writes by operation and result
	// ("ok", "invalid", "error").
	RecorderWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_recorder_writes_total",
			Help: "Session recorder writes by operation and result",
		},
		[]string{"op", "result"},
	)

	Generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flashcard_generations_total",
			Help: "Flashcard generation calls by source and result",
		},
		[]string{"source", "result"},
	)

	DuplicateQuestions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flashcard_duplicate_questions_total",
			Help: "Generated flashcards rejected as duplicates within a session",
		},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RequestCounter)
		prometheus.MustRegister(RequestDuration)
		prometheus.MustRegister(RecorderWrites)
		prometheus.MustRegister(Generations)
		prometheus.MustRegister(DuplicateQuestions)
	})
}

// Middleware records request count and latency labelled by the matched chi
// route pattern, so ids in the path do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		RequestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
		RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
