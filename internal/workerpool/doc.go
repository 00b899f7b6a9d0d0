// Package workerpool schedules typed tasks onto a bounded set of goroutine
// workers.
//
// Tasks are queued by priority (higher first, submission order breaking
// ties) and handed to workers that have room under MaxTasksPerWorker. A
// handler that panics, or overruns TaskTimeout when one is configured,
// crashes its worker: every task that worker owned is rejected with
// services.ErrWorkerFailure (or services.ErrTimeout for the overrun task)
// and a replacement worker is started when work remains. Crashed tasks are
// never retried. An overrun is detected through the handler's context, so
// handlers should watch ctx; the rejection is delivered only once the
// handler has returned. An idle sweep trims workers that have been idle longer
// than IdleTimeout, never going below MinWorkers.
package workerpool
