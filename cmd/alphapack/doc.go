// Package main hosts the alphapack CLI entrypoint and command graph.
//
// The Cobra command tree loads configuration, applies per-invocation flag
// overrides and hands the work to internal/pipeline. It also exposes the
// remap table editor, the job ledger, container inspection and environment
// diagnostics.
//
// Keep this package lean: conversions live in internal/pipeline and the
// commands here only translate flags and render results.
package main
