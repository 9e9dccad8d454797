// Package httpapi exposes the schema registry, the event tracker and the query engine over HTTP.
//
// Routes:
//
//	GET  /health
//	GET  /schemas/{entityType}
//	GET  /schemas/{entityType}/latest
//	GET  /schemas/{entityType}/versions/{version}
//	POST /schemas
//	GET  /events
//	POST /api/events
//	GET  /api/events/search?entityType=&eventType=&Email=&Name=&Status=&limit=
//	GET  /api/events/{eventId}/changes
//	GET  /api/events/{entityType}/{entityId}?fields=a,b
//
// Failures are answered with a JSON body {"error": "<message>"}: 404 for unknown schemas and events,
// 409 for duplicate schema versions, 429 when the client exceeds its rate limit and 400 otherwise.
//
// Usage:
//
//	server, err := httpapi.NewServer(
//		registry, eventTracker, queryEngine,
//		httpapi.WithLogger(logger),
//		httpapi.WithRateLimit(50, 100),
//		httpapi.WithMetrics(httpapi.NewMetrics(prometheus.DefaultRegisterer)),
//	)
//	http.ListenAndServe(":8080", server.Handler())
package httpapi
