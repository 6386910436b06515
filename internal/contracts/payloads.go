package contracts

import "encoding/json"

// Envelope frames every message on the dispatch channel, in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into a framed envelope.
func NewEnvelope(event string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}

// Affiliate associates the channel connection with a technician identity.
// Sent on every (re)connection, not only the first one.
type Affiliate struct {
	TechID string `json:"techId"`
}

// RoutePoint marks one end of a tracked route. Used for both startRoute and
// endRoute.
type RoutePoint struct {
	TechID string  `json:"techId"`
	JobID  string  `json:"jobId"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
}

// LocationUpdate is one periodic sample. JobID is null in standalone mode.
type LocationUpdate struct {
	TechID string  `json:"techId"`
	JobID  *string `json:"jobId"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
}

// ToggleTracking flips ambient location sharing. Lat/Lng are present only
// when enabling.
type ToggleTracking struct {
	TechID  string   `json:"techId"`
	Enabled bool     `json:"enabled"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

// TrackingError is the server's inbound failure report.
type TrackingError struct {
	Message string `json:"message"`
}
