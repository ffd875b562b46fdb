package rejit

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	compileTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rejit",
		Name:      "compile_total",
		Help:      "Patterns compiled, by resulting engine or error.",
	}, []string{"result"})

	matchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rejit",
		Name:      "match_total",
		Help:      "Match calls, by engine.",
	}, []string{"engine"})

	fallbackTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rejit",
		Name:      "native_fallback_total",
		Help:      "Native closures rerun by the interpreter after an outbox overflow.",
	})
)

// Collectors returns the package metrics.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{compileTotal, matchTotal, fallbackTotal}
}

// RegisterMetrics registers the package metrics with reg. Registering twice
// is not an error.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
