package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricMessagesBuilt     = "MessagesBuilt"
	MetricMessagesDiscarded = "MessagesDiscarded"
	MetricDeliveryAttempt   = "DeliveryAttempt"
	MetricDeliverySuccess   = "DeliverySuccess"
	MetricDeliveryFailed    = "DeliveryFailed"
	MetricDeliveryLatency   = "DeliveryLatency"
	MetricAPIRequestCount   = "APIRequestCount"
	MetricAPILatency        = "APILatency"

	// Dimension Keys
	DimMode     = "Mode"
	DimProvider = "Provider"
	DimQueue    = "Queue"
	DimMethod   = "Method"
	DimStatus   = "Status"

	// Metric Namespace
	MetricNamespace = "Emailer"
)

// DeliveryMode names the two delivery paths.
type DeliveryMode string

const (
	DeliveryImmediate DeliveryMode = "immediate"
	DeliveryQueued    DeliveryMode = "queued"
)
