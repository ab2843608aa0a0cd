// Package metrics counts session and playback outcomes on a private
// Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ytget/streamsession/errs"
)

const namespace = "streamsession"

// Result labels.
const (
	ResultOK = "ok"
	// ResultError is used for errors that carry no errs.Kind.
	ResultError = "error"
)

// Collector holds the counters. A nil *Collector is valid and records nothing.
type Collector struct {
	Registry *prometheus.Registry

	logins    *prometheus.CounterVec
	refreshes *prometheus.CounterVec
	playbacks *prometheus.CounterVec
	unlocks   *prometheus.CounterVec
	kicks     *prometheus.CounterVec
}

// New registers the counters on a fresh registry.
func New() *Collector {
	c := &Collector{
		Registry: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by provider and result.",
		}, []string{"provider", "result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Token refreshes by provider and result.",
		}, []string{"provider", "result"}),
		playbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_resolutions_total",
			Help:      "Playback resolutions by provider and result.",
		}, []string{"provider", "result"}),
		unlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unlocks_total",
			Help:      "Concurrency lock releases by provider and result.",
		}, []string{"provider", "result"}),
		kicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_kicks_total",
			Help:      "Device deregistrations requested during login.",
		}, []string{"provider"}),
	}
	c.Registry.MustRegister(c.logins, c.refreshes, c.playbacks, c.unlocks, c.kicks)
	return c
}

// Result maps an error to a label value.
func Result(err error) string {
	if err == nil {
		return ResultOK
	}
	if k := errs.KindOf(err); k != "" {
		return string(k)
	}
	return ResultError
}

// Login records a login outcome.
func (c *Collector) Login(provider string, err error) {
	if c == nil {
		return
	}
	c.logins.WithLabelValues(provider, Result(err)).Inc()
}

// Refresh records a refresh outcome.
func (c *Collector) Refresh(provider string, err error) {
	if c == nil {
		return
	}
	c.refreshes.WithLabelValues(provider, Result(err)).Inc()
}

// Playback records a playback resolution outcome.
func (c *Collector) Playback(provider string, err error) {
	if c == nil {
		return
	}
	c.playbacks.WithLabelValues(provider, Result(err)).Inc()
}

// Unlock records a lock release outcome.
func (c *Collector) Unlock(provider string, err error) {
	if c == nil {
		return
	}
	c.unlocks.WithLabelValues(provider, Result(err)).Inc()
}

// Kick records a device deregistration request.
func (c *Collector) Kick(provider string) {
	if c == nil {
		return
	}
	c.kicks.WithLabelValues(provider).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})
}
