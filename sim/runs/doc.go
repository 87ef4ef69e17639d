// Package runs provides run tracking and report persistence for the
// cleaning agent simulator.
//
// Manager is the in-memory registry behind service.RunRegistry. It hands
// out short random IDs derived from UUIDs, looks runs up
// case-insensitively and evicts finished runs that have not been accessed
// for a while.
//
// FileStore writes one report per finished run to a directory, as JSON or
// YAML, and reads either format back. Reports carry the config, outcome,
// metrics and final grid; per-step telemetry is not stored because any
// run can be replayed from its config and seed.
//
// Usage:
//
//	store, err := runs.NewFileStore("reports", runs.FormatJSON)
//	registry := runs.NewManagerWithStore(store)
//	restored, err := registry.LoadPersisted()
//
//	svc := service.NewRunService(registry, configs, service.WithReportStore(store))
//
// Concurrency:
//
// Manager is safe for concurrent use. FileStore relies on the file system
// for atomicity and does not serialise writers.
package runs
