package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
)

type namedStep struct {
	name   string
	params []string
}

func (s *namedStep) Execute(ctx context.Context, jobExecution *JobExecution, stepExecution *StepExecution) error {
	stepExecution.MarkAsCompleted()
	return nil
}
func (s *namedStep) StepName() string             { return s.name }
func (s *namedStep) RequiredParameters() []string { return s.params }

func TestFlow_ValidateAndSteps(t *testing.T) {
	step1 := &namedStep{name: "step1", params: []string{"inputXmlFile"}}
	step2 := &namedStep{name: "step2", params: []string{"inputFlatFile", "inputXmlFile"}}

	flow := NewSplitFlow("parallelFlow",
		NewStepFlow(step1),
		NewSequentialFlow("secondFlow", NewStepFlow(step2)),
	)

	require.NoError(t, flow.Validate())
	assert.Equal(t, FlowKindSplit, flow.Kind())
	assert.Equal(t, "parallelFlow", flow.Name())
	assert.Len(t, flow.Children(), 2)
	assert.Equal(t, []Step{step1, step2}, flow.Steps())
	assert.Equal(t, []string{"inputFlatFile", "inputXmlFile"}, flow.RequiredParameters())
}

func TestFlow_ValidateErrors(t *testing.T) {
	step1 := &namedStep{name: "step1"}

	selfContaining := NewSequentialFlow("loop", NewStepFlow(step1))
	selfContaining.children = append(selfContaining.children, selfContaining)

	tests := []struct {
		name  string
		flow  *Flow
		cause error
	}{
		{"nil flow", nil, exception.ErrInvalidFlow},
		{"leaf without step", NewStepFlow(nil), exception.ErrUnresolvedFlowElement},
		{"empty sequential", NewSequentialFlow("empty"), exception.ErrInvalidFlow},
		{"empty split", NewSplitFlow("empty"), exception.ErrInvalidFlow},
		{"nil child", NewSequentialFlow("s", nil), exception.ErrInvalidFlow},
		{"duplicate step", NewSplitFlow("s", NewStepFlow(step1), NewStepFlow(step1)), exception.ErrInvalidFlow},
		{"contains itself", selfContaining, exception.ErrFlowCycle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.flow.Validate()
			require.Error(t, err)
			assert.True(t, exception.IsConfigurationError(err))
			assert.True(t, errors.Is(err, tt.cause), "got %v", err)
		})
	}
}

func TestFlowBuilder_Build(t *testing.T) {
	step1 := &namedStep{name: "step1"}
	step2 := &namedStep{name: "step2"}

	flow, err := NewFlowBuilder().
		AddStep(step1).
		AddStep(step2).
		AddSequential("secondFlow", "step2").
		AddSplit("parallelFlow", "step1", "secondFlow").
		Build("parallelFlow")

	require.NoError(t, err)
	assert.Equal(t, FlowKindSplit, flow.Kind())
	children := flow.Children()
	require.Len(t, children, 2)
	assert.Equal(t, FlowKindStep, children[0].Kind())
	assert.Same(t, step1, children[0].Step())
	assert.Equal(t, FlowKindSequential, children[1].Kind())
	assert.Equal(t, "secondFlow", children[1].Name())
}

func TestFlowBuilder_BuildErrors(t *testing.T) {
	step1 := &namedStep{name: "step1"}

	tests := []struct {
		name    string
		builder *FlowBuilder
		root    string
		cause   error
	}{
		{
			name:    "unresolved reference",
			builder: NewFlowBuilder().AddStep(step1).AddSequential("main", "step1", "step9"),
			root:    "main",
			cause:   exception.ErrUnresolvedFlowElement,
		},
		{
			name:    "unknown root",
			builder: NewFlowBuilder().AddStep(step1),
			root:    "main",
			cause:   exception.ErrUnresolvedFlowElement,
		},
		{
			name:    "direct cycle",
			builder: NewFlowBuilder().AddStep(step1).AddSequential("main", "step1", "main"),
			root:    "main",
			cause:   exception.ErrFlowCycle,
		},
		{
			name:    "indirect cycle",
			builder: NewFlowBuilder().AddStep(step1).AddSplit("a", "b").AddSequential("b", "step1", "a"),
			root:    "a",
			cause:   exception.ErrFlowCycle,
		},
		{
			name:    "duplicate name",
			builder: NewFlowBuilder().AddStep(step1).AddSequential("step1", "step1"),
			root:    "step1",
			cause:   exception.ErrInvalidFlow,
		},
		{
			name:    "shared step between branches",
			builder: NewFlowBuilder().AddStep(step1).AddSequential("a", "step1").AddSplit("main", "a", "step1"),
			root:    "main",
			cause:   exception.ErrInvalidFlow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow, err := tt.builder.Build(tt.root)
			assert.Nil(t, flow)
			require.Error(t, err)
			assert.True(t, exception.IsConfigurationError(err))
			assert.True(t, errors.Is(err, tt.cause), "got %v", err)
		})
	}
}

func TestFlowKind_String(t *testing.T) {
	assert.Equal(t, "STEP", FlowKindStep.String())
	assert.Equal(t, "SEQUENTIAL", FlowKindSequential.String())
	assert.Equal(t, "SPLIT", FlowKindSplit.String())
	assert.Equal(t, "FlowKind(9)", FlowKind(9).String())
}
