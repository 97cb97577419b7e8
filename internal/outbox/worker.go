package outbox

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Handler processes one dequeued item. A nil return deletes the item; an
// error consumes one attempt.
type Handler func(ctx context.Context, item *Item) error

// Reachability answers whether the outside world is reachable right now.
// While offline the queue is not drained and no attempts are consumed.
type Reachability interface {
	Online(ctx context.Context) bool
}

// HTTPProbe checks reachability with a GET against a known-good endpoint.
type HTTPProbe struct {
	url    string
	client *http.Client
}

func NewHTTPProbe(url string) *HTTPProbe {
	return &HTTPProbe{
		url: url,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (p *HTTPProbe) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Worker drains the queue one item per cycle, on a single goroutine. The
// cadence throttles outbound load; connectivity loss only lengthens the
// sleep, it never consumes retry attempts.
type Worker struct {
	store           Store
	probe           Reachability
	handlers        map[string]Handler
	pollInterval    time.Duration
	offlineInterval time.Duration
	maxAttempts     int
	log             zerolog.Logger

	done chan struct{}
}

func NewWorker(store Store, probe Reachability, handlers map[string]Handler,
	pollInterval, offlineInterval time.Duration, maxAttempts int, log zerolog.Logger) *Worker {
	return &Worker{
		store:           store,
		probe:           probe,
		handlers:        handlers,
		pollInterval:    pollInterval,
		offlineInterval: offlineInterval,
		maxAttempts:     maxAttempts,
		log:             log.With().Str("component", "outbox-worker").Logger(),
		done:            make(chan struct{}),
	}
}

// Done is closed when Run has returned; shutdown joins on it with a timeout.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Run loops until ctx is cancelled. In-flight processing of a single item is
// not interrupted; cancellation only prevents the next cycle.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	w.log.Info().
		Dur("poll_interval", w.pollInterval).
		Dur("offline_interval", w.offlineInterval).
		Int("max_attempts", w.maxAttempts).
		Msg("outbox worker started")

	for {
		interval := w.pollInterval
		if !w.probe.Online(ctx) {
			w.log.Debug().Msg("offline, skipping queue drain")
			interval = w.offlineInterval
		} else {
			w.processOne(ctx)
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("outbox worker stopping")
			return
		case <-time.After(interval):
		}
	}
}

func (w *Worker) processOne(ctx context.Context) {
	item, err := w.store.DequeueNext(ctx, w.maxAttempts)
	if err != nil {
		w.log.Error().Err(err).Msg("dequeue outbox item")
		return
	}
	if item == nil {
		return
	}

	log := w.log.With().
		Int64("item_id", item.ID).
		Str("service", item.Service).
		Int("attempt", item.Attempts+1).
		Logger()

	handler, ok := w.handlers[item.Service]
	if !ok {
		log.Error().Msg("unknown outbox service")
		w.fail(ctx, item, log)
		return
	}

	if err := handler(ctx, item); err != nil {
		log.Warn().Err(err).Msg("outbox delivery failed")
		w.fail(ctx, item, log)
		return
	}

	if err := w.store.MarkSent(ctx, item.ID); err != nil {
		log.Error().Err(err).Msg("mark outbox item sent")
		return
	}
	log.Info().Msg("outbox item delivered")
}

func (w *Worker) fail(ctx context.Context, item *Item, log zerolog.Logger) {
	dropped, err := w.store.MarkFailed(ctx, item.ID, w.maxAttempts)
	if err != nil {
		log.Error().Err(err).Msg("mark outbox item failed")
		return
	}
	if dropped {
		// Best-effort delivery: the command is lost on purpose here, and
		// the log line is the only trace of it.
		log.Error().Msg("outbox item dropped after max attempts")
	}
}
