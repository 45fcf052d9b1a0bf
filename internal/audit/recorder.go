package audit

import (
	"context"
	"sync"
	"time"

	"paltransport.org/internal/ids"
	"paltransport.org/internal/obs"
)

const persistTimeout = 5 * time.Second

// Recorder enriches, logs and persists audit events. Every event is
// written to the structured log synchronously; persistence happens on a
// detached goroutine so a slow store never stalls request handling.
type Recorder struct {
	store Store
	now   func() time.Time
	wg    sync.WaitGroup
}

// RecorderOption configures Recorder behavior.
type RecorderOption func(*Recorder)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder constructs a Recorder. A nil store disables persistence but
// keeps logging and alerting.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record finalizes the event (id, timestamp, risk, request id) and emits
// it. Errors are swallowed after logging; auditing never fails a request.
func (r *Recorder) Record(ctx context.Context, e Event) {
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.At.IsZero() {
		e.At = r.now().UTC()
	}
	e.Risk = Risk(e.Type)
	if e.RequestID == "" {
		e.RequestID = RequestIDFromContext(ctx)
	}

	r.logEvent(e)
	if e.Risk == RiskHigh || e.Risk == RiskCritical {
		obs.SecurityAlert(string(e.Type), string(e.Risk))
	}

	if r.store == nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := r.store.Append(ctx, e); err != nil {
			obs.Error("audit event persist failed", map[string]any{
				"event_id": e.ID, "event_type": string(e.Type), "error": err.Error(),
			})
		}
	}()
}

// Flush waits for in-flight persists. Called on shutdown and in tests.
func (r *Recorder) Flush() {
	r.wg.Wait()
}

func (r *Recorder) logEvent(e Event) {
	fields := map[string]any{
		"event_id":   e.ID,
		"event_type": string(e.Type),
		"risk":       string(e.Risk),
	}
	if e.Principal != "" {
		fields["principal"] = e.Principal
	}
	if e.UserID != "" {
		fields["user_id"] = e.UserID
	}
	if e.ClientIP != "" {
		fields["client_ip"] = e.ClientIP
	}
	if e.RequestID != "" {
		fields["request_id"] = e.RequestID
	}
	if e.Method != "" {
		fields["http_method"] = e.Method
	}
	if e.Path != "" {
		fields["path"] = e.Path
	}
	if e.Status != 0 {
		fields["status"] = e.Status
	}
	for k, v := range e.Details {
		fields["detail_"+k] = v
	}

	switch e.Risk {
	case RiskCritical, RiskHigh:
		obs.Warn("security event", fields)
	default:
		obs.Info("security event", fields)
	}
}
