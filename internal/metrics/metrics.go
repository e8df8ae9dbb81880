// Package metrics provides Prometheus instrumentation for the circle client.
// It exposes the chat connection state, message throughput by direction,
// reconnect and history counters, and survey submission results.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ChatConnectionState is 1 for the state the chat session is in, 0 for
	// the others.
	ChatConnectionState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circle_chat_connection_state",
		Help: "Current chat connection state",
	}, []string{"state"}) // state = "disconnected", "connecting", "connected"

	// ChatMessagesTotal counts chat messages, labeled by direction:
	// "received", "sent", "dropped" or "throttled".
	ChatMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "circle_chat_messages_total",
		Help: "Total number of chat messages handled",
	}, []string{"direction"})

	// ChatHistoryReplays counts history payloads that replaced the log.
	ChatHistoryReplays = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "circle_chat_history_replays_total",
		Help: "Total number of history replays applied",
	})

	// BrokerReconnects counts transport reconnect attempts.
	BrokerReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "circle_broker_reconnects_total",
		Help: "Total number of broker reconnect attempts",
	})

	// BrokerErrors counts ERROR frames reported by the broker.
	BrokerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "circle_broker_errors_total",
		Help: "Total number of broker protocol errors",
	})

	// SurveySubmissions counts registration attempts by result: "ok", "failed".
	SurveySubmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "circle_survey_submissions_total",
		Help: "Total number of survey submissions",
	}, []string{"result"})

	// ActivityFallbacks counts activity loads served from the built-in list.
	ActivityFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "circle_activity_fallbacks_total",
		Help: "Total number of activity list fallbacks",
	})
)

func init() {
	prometheus.MustRegister(
		ChatConnectionState,
		ChatMessagesTotal,
		ChatHistoryReplays,
		BrokerReconnects,
		BrokerErrors,
		SurveySubmissions,
		ActivityFallbacks,
	)
}

// SetChatState marks state as the current chat connection state.
func SetChatState(state string) {
	for _, s := range []string{"disconnected", "connecting", "connected"} {
		v := 0.0
		if s == state {
			v = 1
		}
		ChatConnectionState.WithLabelValues(s).Set(v)
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
