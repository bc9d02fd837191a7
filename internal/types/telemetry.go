package types

// Telemetry metric names and dimension keys shared by the Prometheus and
// CloudWatch backends.
const (
	MetricAPIRequests     = "APIRequests"
	MetricAPILatency      = "APILatency"
	MetricReconciliations = "Reconciliations"
	MetricAccessEvents    = "AccessEvents"
	MetricGatewayFailures = "GatewayFailures"

	DimMethod   = "Method"
	DimEndpoint = "Endpoint"
	DimStatus   = "Status"
	DimSource   = "Source"
	DimOutcome  = "Outcome"
	DimAction   = "Action"
	DimResult   = "Result"

	MetricNamespace = "CoworkGate"
)

// Reconciliation outcomes recorded by the reconciler.
const (
	OutcomeApplied  = "applied"
	OutcomeNoop     = "noop"
	OutcomeIgnored  = "ignored"
	OutcomeNotFound = "not_found"
	OutcomeFailed   = "failed"
)
