package domain

import "time"

const (
	ACTOR_ID_MASTER = "master"
	ACTOR_ID_MQTT   = "mqtt"
)

// RawMeasurement is one decoded transport event. The MQTT actor sends
// it to the master, which routes it to the meter actor owning the
// matching topic prefix.
type RawMeasurement struct {
	Topic   string
	Payload []byte
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}

// GetMeterValuesRequest asks a meter actor for a snapshot of its
// service model, raw values plus formatted text.
type GetMeterValuesRequest struct {
	ActorRequestMixIn
	Service string
}

type PathValue struct {
	Value any    `json:"value"`
	Text  string `json:"text"`
}

type GetMeterValuesResponse struct {
	ActorResponseMixIn
	Service     string
	ServiceName string
	Values      map[string]PathValue
}

// GetMeterStatusRequest asks a meter actor how fresh its data is.
type GetMeterStatusRequest struct {
	ActorRequestMixIn
	Service string
}

type GetMeterStatusResponse struct {
	ActorResponseMixIn
	Service    string
	LastUpdate time.Time
	Passes     uint64
}

// ListMetersRequest asks the master for the configured meter services.
type ListMetersRequest struct {
	ActorRequestMixIn
}

type MeterInfo struct {
	Service string `json:"service"`
	Topic   string `json:"topic"`
}

type ListMetersResponse struct {
	ActorResponseMixIn
	Meters []MeterInfo
}
