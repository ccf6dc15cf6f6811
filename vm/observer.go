package vm

import (
	"github.com/rs/zerolog"

	"github.com/deepnoodle-ai/riv/op"
)

// StepEvent describes one instruction about to execute.
type StepEvent struct {
	PC         int
	Opcode     op.Code
	OpcodeName string
	StackDepth int
	FrameDepth int
}

// CallEvent describes a closure call about to run.
type CallEvent struct {
	Call       string
	FrameDepth int
}

// ReturnEvent describes a closure call that finished.
type ReturnEvent struct {
	Call       string
	FrameDepth int
}

// Observer receives callbacks for interpreter execution events. Returning
// false from any callback halts execution.
type Observer interface {
	OnStep(e StepEvent) bool
	OnCall(e CallEvent) bool
	OnReturn(e ReturnEvent) bool
}

// TraceObserver logs every event through a zerolog logger. It is intended
// for debugging compiled code and is far too verbose for production use.
type TraceObserver struct {
	log zerolog.Logger
}

// NewTraceObserver creates an observer writing through the given logger.
func NewTraceObserver(log zerolog.Logger) *TraceObserver {
	return &TraceObserver{log: log}
}

func (t *TraceObserver) OnStep(e StepEvent) bool {
	t.log.Trace().
		Int("pc", e.PC).
		Str("op", e.OpcodeName).
		Int("sp", e.StackDepth).
		Int("frames", e.FrameDepth).
		Msg("step")
	return true
}

func (t *TraceObserver) OnCall(e CallEvent) bool {
	t.log.Debug().
		Str("call", e.Call).
		Int("frames", e.FrameDepth).
		Msg("call")
	return true
}

func (t *TraceObserver) OnReturn(e ReturnEvent) bool {
	t.log.Debug().
		Str("call", e.Call).
		Int("frames", e.FrameDepth).
		Msg("return")
	return true
}
