// Package metrics exposes synchronization counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "newsdesk"

// Recorder counts engine events. It satisfies feedsync.Recorder.
type Recorder struct {
	polls     *prometheus.CounterVec
	received  prometheus.Counter
	evicted   prometheus.Counter
	deletes   *prometheus.CounterVec
	registry  *prometheus.Registry
	requested *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Polls by outcome (ok, failed, skipped).",
		}, []string{"outcome"}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_items_total",
			Help:      "Items returned by successful polls.",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evicted_items_total",
			Help:      "Items evicted to keep the list within capacity.",
		}),
		deletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deletes_total",
			Help:      "Delete attempts by outcome (confirmed, conflict, rolled_back).",
		}, []string{"outcome"}),
		requested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "User actions sent to the remote service.",
		}, []string{"action"}),
		registry: prometheus.NewRegistry(),
	}
	r.registry.MustRegister(r.polls, r.received, r.evicted, r.deletes, r.requested)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) PollSucceeded(items int) {
	r.polls.WithLabelValues("ok").Inc()
	r.received.Add(float64(items))
}

func (r *Recorder) PollFailed()       { r.polls.WithLabelValues("failed").Inc() }
func (r *Recorder) PollSkipped()      { r.polls.WithLabelValues("skipped").Inc() }
func (r *Recorder) Evicted(n int)     { r.evicted.Add(float64(n)) }
func (r *Recorder) DeleteConfirmed()  { r.deletes.WithLabelValues("confirmed").Inc() }
func (r *Recorder) DeleteConflicted() { r.deletes.WithLabelValues("conflict").Inc() }
func (r *Recorder) DeleteRolledBack() { r.deletes.WithLabelValues("rolled_back").Inc() }

// Action counts a user-triggered request such as "undo" or "update".
func (r *Recorder) Action(name string) { r.requested.WithLabelValues(name).Inc() }

func (r *Recorder) Handler() http.Handler {
	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return router
}

// Serve runs the metrics endpoint on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
