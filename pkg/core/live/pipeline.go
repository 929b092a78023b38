package live

// Stage is one unit in the stream pipeline. A stage receives an event,
// may produce side effects, and returns the events to forward to the
// next stage. Returning the received event unchanged is the default.
//
// Stages run sequentially on the forward path and must not block; any
// network or timer work belongs in a background task.
type Stage interface {
	// Name identifies the stage in debug output.
	Name() string

	// HandleUpstream processes an event flowing toward the
	// conversational model (utterances, directives).
	HandleUpstream(ev Event) []Event

	// HandleDownstream processes an event flowing toward speech
	// synthesis (reply deltas, end-of-reply markers).
	HandleDownstream(ev Event) []Event
}

// PassthroughStage forwards every event unchanged. Embed it to implement
// only the direction a stage cares about.
type PassthroughStage struct{}

func (PassthroughStage) HandleUpstream(ev Event) []Event   { return []Event{ev} }
func (PassthroughStage) HandleDownstream(ev Event) []Event { return []Event{ev} }

// Pipeline is an ordered list of stages with two delivery callbacks:
// onUpstream receives events that traversed all stages toward the model,
// onDownstream receives events that traversed all stages toward synthesis.
//
// Downstream events traverse the stage list in reverse so that the stage
// closest to the model sees reply text first.
type Pipeline struct {
	stages       []Stage
	onUpstream   func(Event)
	onDownstream func(Event)
}

// NewPipeline creates a pipeline over the given ordered stages.
func NewPipeline(stages []Stage, onUpstream, onDownstream func(Event)) *Pipeline {
	return &Pipeline{
		stages:       stages,
		onUpstream:   onUpstream,
		onDownstream: onDownstream,
	}
}

// PushUpstream feeds an event through all stages toward the model.
func (p *Pipeline) PushUpstream(ev Event) {
	events := []Event{ev}
	for _, stage := range p.stages {
		var next []Event
		for _, e := range events {
			next = append(next, stage.HandleUpstream(e)...)
		}
		events = next
	}
	if p.onUpstream != nil {
		for _, e := range events {
			p.onUpstream(e)
		}
	}
}

// PushDownstream feeds an event through all stages toward synthesis, in
// reverse stage order.
func (p *Pipeline) PushDownstream(ev Event) {
	events := []Event{ev}
	for i := len(p.stages) - 1; i >= 0; i-- {
		stage := p.stages[i]
		var next []Event
		for _, e := range events {
			next = append(next, stage.HandleDownstream(e)...)
		}
		events = next
	}
	if p.onDownstream != nil {
		for _, e := range events {
			p.onDownstream(e)
		}
	}
}
