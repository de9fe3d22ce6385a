/*
Package observability turns engine lifecycle hooks into Prometheus metrics
and structured log lines.

	m, err := observability.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	hooks := m.Hooks().Merge(observability.LoggingHooks(logger))
	eng, err := fable.New(story, fable.WithLifecycleHooks(hooks))
*/
package observability
