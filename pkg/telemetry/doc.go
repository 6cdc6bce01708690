// Package telemetry provides the observability stack for OpenLoom:
// structured logging (zerolog), distributed tracing (OpenTelemetry)
// and Prometheus metrics, all driven by one Config.
package telemetry
