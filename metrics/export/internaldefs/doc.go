// Package internaldefs carries the shared metric name, help, and bucket
// tables used by the exporter packages. It exists so the exporters agree on
// exposition names without each maintaining its own copy.
//
// # What this package must NOT do
//
//   - Record or aggregate metric values (core Metrics owns that).
//   - Be imported from outside metrics/export.
package internaldefs
