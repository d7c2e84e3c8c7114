/*
Package observability turns engine lifecycle events into logs and
Prometheus metrics.

Metrics owns a private registry, so several engines (or tests) can run in
one process without colliding on the global one.
*/
package observability
