/*
Package observability provides tools for monitoring the Strata engine.

It includes a Prometheus collector exposing resolution cache statistics at scrape
time, lifecycle hooks recording generation latency, failures and degraded renders,
and structured-logging hooks for auditing every generation and validation pass.
*/
package observability
