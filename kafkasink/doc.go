// Package kafkasink streams engine audit events to Kafka for downstream
// fraud and analytics consumers.
//
// The sink is synchronous per message; pair it with the engine's buffered
// audit dispatcher so broker latency never reaches the login path.
//
// # What this package must NOT do
//
//   - Filter or enrich events (consumers own interpretation).
//   - Retry indefinitely; failed publishes are logged and dropped.
package kafkasink
