// Package services defines shared utilities consumed by the pipelines and the
// external tool adapters.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and frame indices for
//     logging.
//   - Structured error markers plus the Wrap helper so failures stay
//     classifiable (cancelled, worker crash, bad carrier, corrupt container)
//     after being annotated with stage context.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
