// Package staging manages scratch files in the configured work directory.
//
// Pipelines write intermediate audio there under names that embed the job
// id. Crashed runs leave these behind; CleanStale reclaims them.
package staging
