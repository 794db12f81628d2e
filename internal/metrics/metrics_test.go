package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/relay/internal/domain"
)

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			if g := metric.GetGauge(); g != nil {
				return g.GetValue()
			}
		}
	}
	return 0
}

func TestCommandOutcomes(t *testing.T) {
	m := New()
	m.Command("send_message", time.Millisecond, nil)
	m.Command("send_message", time.Millisecond, domain.NotFound("conversation", "c1"))
	m.Command("send_message", time.Millisecond, errors.New("disk full"))

	for outcome, want := range map[string]float64{"ok": 1, "not_found": 1, "error": 1} {
		got := counterValue(t, m, "relay_commands_total", map[string]string{"op": "send_message", "outcome": outcome})
		if got != want {
			t.Errorf("commands_total{outcome=%s} = %v, want %v", outcome, got, want)
		}
	}
}

func TestLiveObserver(t *testing.T) {
	m := New()
	m.SubscriptionOpened()
	m.SubscriptionOpened()
	m.SubscriptionClosed()
	m.Evaluated("messages(c1)", time.Millisecond, nil)
	m.Pushed("messages(c1)")
	m.Pushed("messages(c2)")

	if got := counterValue(t, m, "relay_live_subscriptions", nil); got != 1 {
		t.Errorf("live_subscriptions = %v, want 1", got)
	}
	if got := counterValue(t, m, "relay_live_pushes_total", map[string]string{"query": "messages"}); got != 2 {
		t.Errorf("pushes{query=messages} = %v, want 2", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.NotificationQueued("new_message")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `relay_notifications_queued_total{kind="new_message"} 1`) {
		t.Errorf("metrics output missing queued counter:\n%s", body)
	}
}
