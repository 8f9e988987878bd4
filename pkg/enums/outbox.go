package enums

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateProcessingJob OutboxAggregateType = "processing_job"
	AggregateMaterial      OutboxAggregateType = "material"
)

var aggregateTypes = []OutboxAggregateType{AggregateProcessingJob, AggregateMaterial}

func (a OutboxAggregateType) IsValid() bool { return oneOf(a, aggregateTypes) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(value, aggregateTypes, "aggregate type")
}

// OutboxEventType names the domain event carried by an outbox row.
type OutboxEventType string

const (
	EventMaterialUploaded OutboxEventType = "material_uploaded"
	EventJobDispatched    OutboxEventType = "processing_job_dispatched"
	EventJobCompleted     OutboxEventType = "processing_job_completed"
	EventJobFailed        OutboxEventType = "processing_job_failed"
)

var outboxEventTypes = []OutboxEventType{EventMaterialUploaded, EventJobDispatched, EventJobCompleted, EventJobFailed}

func (e OutboxEventType) IsValid() bool { return oneOf(e, outboxEventTypes) }

// Aggregate returns the aggregate type that emits this event.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	if e == EventMaterialUploaded {
		return AggregateMaterial
	}
	return AggregateProcessingJob
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(value, outboxEventTypes, "event type")
}
