// Package prometheus renders authcore engine metrics in the Prometheus text
// exposition format, either as a string or as an http.Handler for a
// /metrics endpoint.
//
// # Architecture boundaries
//
// The exporter only reads engine snapshots. It holds no state of its own and
// never blocks the engine's hot path.
//
// # What this package must NOT do
//
//   - Mutate engine metrics.
//   - Scrape on a timer (the HTTP scraper drives collection).
package prometheus
