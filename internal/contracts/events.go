package contracts

// Outbound event names. These are the dispatch channel's wire contract and
// must match the server byte for byte.
const (
	EventAffiliate      = "affiliate"
	EventStartRoute     = "startRoute"
	EventEndRoute       = "endRoute"
	EventUpdateLocation = "updateLocation"
	EventToggleTracking = "toggleTracking"
)

// Inbound event names.
const (
	EventLocationAcknowledged = "locationAcknowledged"
	EventTrackingError        = "trackingError"
	EventRouteStarted         = "routeStarted"
	EventRouteCompleted       = "routeCompleted"
)
