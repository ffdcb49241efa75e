package lcservice

// ProtocolVersion is the newest envelope version this package understands.
const ProtocolVersion = 1

// EventType names a kind of envelope sent by the platform. The set is closed:
// adding a type is a protocol change.
type EventType string

// Built-in event types.
const (
	EventHealth          EventType = "health"
	EventGetResource     EventType = "get_resource"
	EventOrgInstall      EventType = "org_install"
	EventOrgUninstall    EventType = "org_uninstall"
	EventDetection       EventType = "detection"
	EventRequest         EventType = "request"
	EventNewSensor       EventType = "new_sensor"
	EventDeploymentEvent EventType = "deployment_event"
	EventLogEvent        EventType = "log_event"
	EventServiceError    EventType = "service_error"
)

// Period is the cadence of a periodic event.
type Period string

// Supported periods.
const (
	Every1Hour   Period = "1h"
	Every3Hours  Period = "3h"
	Every12Hours Period = "12h"
	Every24Hours Period = "24h"
	Every7Days   Period = "7d"
	Every30Days  Period = "30d"
)

// Periods lists every supported cadence, shortest first.
var Periods = []Period{Every1Hour, Every3Hours, Every12Hours, Every24Hours, Every7Days, Every30Days}

// OrgPer is the event sent once per organization every p.
func OrgPer(p Period) EventType { return EventType("org_per_" + string(p)) }

// OncePer is the event sent once per service every p.
func OncePer(p Period) EventType { return EventType("once_per_" + string(p)) }

// SensorPer is the event sent once per sensor every p.
func SensorPer(p Period) EventType { return EventType("sensor_per_" + string(p)) }

var knownEvents = func() map[EventType]struct{} {
	m := map[EventType]struct{}{
		EventHealth:          {},
		EventGetResource:     {},
		EventOrgInstall:      {},
		EventOrgUninstall:    {},
		EventDetection:       {},
		EventRequest:         {},
		EventNewSensor:       {},
		EventDeploymentEvent: {},
		EventLogEvent:        {},
		EventServiceError:    {},
	}
	for _, p := range Periods {
		m[OrgPer(p)] = struct{}{}
		m[OncePer(p)] = struct{}{}
		m[SensorPer(p)] = struct{}{}
	}
	return m
}()

// Known reports whether t is part of the protocol.
func (t EventType) Known() bool {
	_, ok := knownEvents[t]
	return ok
}

// builtin reports whether t is answered by the service itself.
func (t EventType) builtin() bool {
	return t == EventHealth || t == EventGetResource
}
