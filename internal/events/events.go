// Package events carries scan traffic over Redis: a stream of inbound
// badge reads from edge devices, a stream of outbound device feedback,
// and a Pub/Sub channel fanning full outcomes out to dashboards.
package events

import "time"

// Stream and channel names.
const (
	ScanEventsStream  = "scan.events"   // inbound: raw badge reads from readers
	ScanResultsStream = "scan.results"  // outbound: device feedback
	RealtimeChannel   = "scan.realtime" // pub/sub fan-out to dashboards
)

// Event types.
const (
	ScanReceived = "scan.received"
	ScanResult   = "scan.result"
)

// Event is the envelope stored in each stream entry.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// ScanMessage is the decoded payload of one inbound scan entry.
type ScanMessage struct {
	UID        string    `json:"uid"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// DeviceResult is the payload written to ScanResultsStream; it is the
// minimal feedback a reader needs to show on its display.
type DeviceResult struct {
	Status  string `json:"status"`
	Action  string `json:"action"`
	UID     string `json:"uid"`
	Name    string `json:"name"`
	Message string `json:"message"`
}
