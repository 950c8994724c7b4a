// Package taskbroker drives providers that only answer through
// submit-now/collect-later task queues.
package taskbroker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"reviewsync/internal/domain"
)

// StatusOK is the provider's success status code for envelopes and tasks.
const StatusOK = 20000

// Transport is the subset of apiclient.Client the broker needs.
type Transport interface {
	GetJSON(ctx context.Context, u string, hdr http.Header, out any) error
	PostJSON(ctx context.Context, u string, body any, hdr http.Header, out any) error
}

type envelope struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
	Tasks         []task `json:"tasks"`
}

type task struct {
	ID            string           `json:"id"`
	StatusCode    int              `json:"status_code"`
	StatusMessage string           `json:"status_message"`
	Result        []map[string]any `json:"result"`
}

// Broker talks to one data type, e.g. "business_data/google/reviews".
// Task state is never stored locally; readiness is re-derived by polling.
type Broker struct {
	t      Transport
	base   string // e.g. https://api.dataforseo.com/v3
	prefix string
}

func New(t Transport, base, prefix string) *Broker {
	return &Broker{t: t, base: strings.TrimRight(base, "/"), prefix: strings.Trim(prefix, "/")}
}

func (b *Broker) url(endpoint string) string {
	return b.base + "/" + b.prefix + "/" + endpoint
}

// Cycle collects the newest ready task (if any) and then always submits a
// new task for a later cycle. A submit failure is logged, never returned:
// the collected yield is still valid.
func (b *Broker) Cycle(ctx context.Context, payload map[string]any) ([]map[string]any, error) {
	items, cerr := b.Collect(ctx)
	if _, err := b.Submit(ctx, payload); err != nil {
		log.Warn().Err(err).Str("broker", b.prefix).Msg("task submit failed; next cycle will have nothing to collect")
	}
	return items, cerr
}

// Collect polls tasks_ready and fetches the items of the most recently
// completed task. Older ready tasks are left unconsumed.
func (b *Broker) Collect(ctx context.Context) ([]map[string]any, error) {
	var ready envelope
	if err := b.t.GetJSON(ctx, b.url("tasks_ready"), nil, &ready); err != nil {
		return nil, fmt.Errorf("tasks_ready: %w", err)
	}
	if ready.StatusCode != StatusOK {
		return nil, fmt.Errorf("tasks_ready status %d %s: %w", ready.StatusCode, ready.StatusMessage, domain.ErrProviderUnavailable)
	}

	id, n := latestReady(ready)
	if id == "" {
		log.Debug().Str("broker", b.prefix).Msg("no ready task")
		return nil, nil
	}
	if n > 1 {
		log.Info().Str("broker", b.prefix).Int("ready", n).Str("task_id", id).Msg("several ready tasks, consuming newest only")
	}

	var got envelope
	if err := b.t.GetJSON(ctx, b.url("task_get/"+id), nil, &got); err != nil {
		return nil, fmt.Errorf("task_get %s: %w", id, err)
	}
	if len(got.Tasks) == 0 {
		return nil, fmt.Errorf("task_get %s: no tasks in envelope: %w", id, domain.ErrMalformedResponse)
	}
	tk := got.Tasks[0]
	if tk.StatusCode != StatusOK {
		// failed task: empty yield, the next one is queued by Cycle anyway
		log.Warn().Str("broker", b.prefix).Str("task_id", id).Int("status", tk.StatusCode).
			Str("msg", tk.StatusMessage).Msg("task completed without success")
		return nil, nil
	}

	var items []map[string]any
	for _, res := range tk.Result {
		raw, ok := res["items"].([]any)
		if !ok {
			continue
		}
		for _, it := range raw {
			if m, ok := it.(map[string]any); ok {
				items = append(items, m)
			}
		}
	}
	return items, nil
}

// Submit posts one task and returns the provider's task id.
func (b *Broker) Submit(ctx context.Context, payload map[string]any) (string, error) {
	var out envelope
	if err := b.t.PostJSON(ctx, b.url("task_post"), []map[string]any{payload}, nil, &out); err != nil {
		return "", fmt.Errorf("task_post: %w", err)
	}
	if len(out.Tasks) == 0 {
		return "", fmt.Errorf("task_post: empty envelope: %w", domain.ErrMalformedResponse)
	}
	tk := out.Tasks[0]
	// 20100 is "Task Created."
	if tk.StatusCode != 20100 && tk.StatusCode != StatusOK {
		return "", fmt.Errorf("task_post status %d %s: %w", tk.StatusCode, tk.StatusMessage, domain.ErrProviderUnavailable)
	}
	return tk.ID, nil
}

var errNoDate = errors.New("no date")

// latestReady returns the id of the ready task with the newest date_posted
// (later entries win ties) and the total number of ready tasks.
func latestReady(env envelope) (string, int) {
	var (
		bestID string
		bestAt time.Time
		n      int
	)
	for _, tk := range env.Tasks {
		for _, r := range tk.Result {
			id, _ := r["id"].(string)
			if id == "" {
				continue
			}
			n++
			at, err := parsePosted(r["date_posted"])
			if err != nil {
				at = time.Time{}
			}
			if bestID == "" || !at.Before(bestAt) {
				bestID, bestAt = id, at
			}
		}
	}
	return bestID, n
}

func parsePosted(v any) (time.Time, error) {
	s, _ := v.(string)
	if s == "" {
		return time.Time{}, errNoDate
	}
	return time.Parse("2006-01-02 15:04:05 -07:00", s)
}
