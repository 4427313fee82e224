// Package poller fetches stitcher summaries over HTTP with bounded retries.
//
// The stitcher answers 404 while a summary is still being computed. A
// [Fetcher] treats that as "not ready", waits a fixed backoff and asks
// again, up to a retry limit. Any other failure ends the fetch at once.
//
// The main components are:
//
//   - [Client]: resty-based [Transport] with timeout and size limits
//   - [Fetcher]: the retry state machine, usable blocking ([Fetcher.Do]) or
//     in the background with callbacks and cancellation ([Fetcher.Go])
//   - [Scheduler]: periodic refresh of every configured source
//   - [Metrics]: Prometheus collectors for requests, retries and outcomes
//
// Users of the stitchboard library should not need to interact with this
// package directly. Configuration is done through the main stitchboard package.
package poller
