package core

import (
	"fmt"
	"strings"

	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
)

// FlowBuilder は名前参照でフローグラフを組み立てます。
// 参照の解決と循環の検出は Build で行われます。
type FlowBuilder struct {
	steps map[string]Step
	nodes map[string]flowDecl
	err   error
}

type flowDecl struct {
	kind FlowKind
	refs []string
}

// NewFlowBuilder は新しい FlowBuilder を作成します。
func NewFlowBuilder() *FlowBuilder {
	return &FlowBuilder{
		steps: make(map[string]Step),
		nodes: make(map[string]flowDecl),
	}
}

// AddStep はステップを登録します。ステップ名がそのまま参照名になります。
func (b *FlowBuilder) AddStep(step Step) *FlowBuilder {
	if step == nil {
		b.fail(invalidFlow("nil のステップは登録できません", exception.ErrInvalidFlow))
		return b
	}
	b.declare(step.StepName())
	b.steps[step.StepName()] = step
	return b
}

// AddSequential は refs を順に実行するフローを登録します。
func (b *FlowBuilder) AddSequential(name string, refs ...string) *FlowBuilder {
	return b.addNode(name, FlowKindSequential, refs)
}

// AddSplit は refs を並行に実行するフローを登録します。
func (b *FlowBuilder) AddSplit(name string, refs ...string) *FlowBuilder {
	return b.addNode(name, FlowKindSplit, refs)
}

func (b *FlowBuilder) addNode(name string, kind FlowKind, refs []string) *FlowBuilder {
	b.declare(name)
	b.nodes[name] = flowDecl{kind: kind, refs: append([]string(nil), refs...)}
	return b
}

func (b *FlowBuilder) declare(name string) {
	if name == "" {
		b.fail(invalidFlow("フロー要素の名前が空です", exception.ErrInvalidFlow))
		return
	}
	_, isStep := b.steps[name]
	_, isNode := b.nodes[name]
	if isStep || isNode {
		b.fail(invalidFlow(fmt.Sprintf("フロー要素 '%s' が重複して定義されています", name), exception.ErrInvalidFlow))
	}
}

func (b *FlowBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build は root から到達できるフローを組み立てて検証します。
func (b *FlowBuilder) Build(root string) (*Flow, error) {
	if b.err != nil {
		return nil, b.err
	}
	built := make(map[string]*Flow)
	var path []string
	onPath := make(map[string]bool)

	var resolve func(name string) (*Flow, error)
	resolve = func(name string) (*Flow, error) {
		if onPath[name] {
			cycle := append(append([]string(nil), path...), name)
			return nil, invalidFlow(fmt.Sprintf("フロー '%s' が自分自身を含んでいます (%s)", name, strings.Join(cycle, " -> ")), exception.ErrFlowCycle)
		}
		if f, ok := built[name]; ok {
			return f, nil
		}
		if step, ok := b.steps[name]; ok {
			f := NewStepFlow(step)
			built[name] = f
			return f, nil
		}
		decl, ok := b.nodes[name]
		if !ok {
			from := "(root)"
			if len(path) > 0 {
				from = path[len(path)-1]
			}
			return nil, invalidFlow(fmt.Sprintf("'%s' から参照されている '%s' はステップにもフローにも解決できません", from, name), exception.ErrUnresolvedFlowElement)
		}

		onPath[name] = true
		path = append(path, name)
		children := make([]*Flow, 0, len(decl.refs))
		for _, ref := range decl.refs {
			c, err := resolve(ref)
			if err != nil {
				return nil, err
			}
			children = append(children, c)
		}
		path = path[:len(path)-1]
		delete(onPath, name)

		var f *Flow
		if decl.kind == FlowKindSplit {
			f = NewSplitFlow(name, children...)
		} else {
			f = NewSequentialFlow(name, children...)
		}
		built[name] = f
		return f, nil
	}

	flow, err := resolve(root)
	if err != nil {
		return nil, err
	}
	if err := flow.Validate(); err != nil {
		return nil, err
	}
	return flow, nil
}
