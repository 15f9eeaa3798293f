package core

import (
	"fmt"
	"sort"

	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
)

// FlowKind はフローノードの種類です。
type FlowKind int

const (
	FlowKindStep FlowKind = iota
	FlowKindSequential
	FlowKindSplit
)

// String は FlowKind の文字列表現を返します。
func (k FlowKind) String() string {
	switch k {
	case FlowKindStep:
		return "STEP"
	case FlowKindSequential:
		return "SEQUENTIAL"
	case FlowKindSplit:
		return "SPLIT"
	default:
		return fmt.Sprintf("FlowKind(%d)", int(k))
	}
}

// Flow はステップとサブフローの合成です。
// STEP は Step を一つ持つ葉、SEQUENTIAL は順序付きの子、SPLIT は並行に実行されるブランチを持ちます。
type Flow struct {
	name     string
	kind     FlowKind
	step     Step
	children []*Flow
}

// NewStepFlow は Step を葉とするフローを作成します。
func NewStepFlow(step Step) *Flow {
	f := &Flow{kind: FlowKindStep, step: step}
	if step != nil {
		f.name = step.StepName()
	}
	return f
}

// NewSequentialFlow は children を順に実行するフローを作成します。
func NewSequentialFlow(name string, children ...*Flow) *Flow {
	return &Flow{name: name, kind: FlowKindSequential, children: append([]*Flow(nil), children...)}
}

// NewSplitFlow は branches を並行に実行するフローを作成します。
func NewSplitFlow(name string, branches ...*Flow) *Flow {
	return &Flow{name: name, kind: FlowKindSplit, children: append([]*Flow(nil), branches...)}
}

// Name はフロー名を返します。STEP の場合はステップ名です。
func (f *Flow) Name() string { return f.name }

// Kind はフローの種類を返します。
func (f *Flow) Kind() FlowKind { return f.kind }

// Step は STEP ノードのステップを返します。それ以外では nil です。
func (f *Flow) Step() Step { return f.step }

// Children は子ノードのコピーを返します。
func (f *Flow) Children() []*Flow {
	return append([]*Flow(nil), f.children...)
}

// Steps はフロー内のステップを深さ優先の順で返します。
func (f *Flow) Steps() []Step {
	var steps []Step
	f.walk(func(n *Flow) {
		if n.kind == FlowKindStep && n.step != nil {
			steps = append(steps, n.step)
		}
	})
	return steps
}

// RequiredParameters はフロー内の全ステップが参照するパラメータ名をソートして返します。
func (f *Flow) RequiredParameters() []string {
	seen := make(map[string]struct{})
	for _, s := range f.Steps() {
		for _, name := range s.RequiredParameters() {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *Flow) walk(visit func(*Flow)) {
	visit(f)
	for _, c := range f.children {
		if c != nil {
			c.walk(visit)
		}
	}
}

// Validate はフロー構造を検証します。
// 葉が Step を持つこと、合成ノードが空でないこと、ステップ名が重複しないこと、
// フローが自分自身を含まないことを確認し、違反は ConfigurationError として返します。
func (f *Flow) Validate() error {
	if f == nil {
		return invalidFlow("フローが nil です", exception.ErrInvalidFlow)
	}
	v := &flowValidator{onPath: make(map[*Flow]bool), stepNames: make(map[string]string)}
	return v.visit(f, f.name)
}

type flowValidator struct {
	onPath    map[*Flow]bool
	stepNames map[string]string
}

func (v *flowValidator) visit(f *Flow, path string) error {
	if f == nil {
		return invalidFlow(fmt.Sprintf("'%s' に nil の子フローがあります", path), exception.ErrInvalidFlow)
	}
	if v.onPath[f] {
		return invalidFlow(fmt.Sprintf("フロー '%s' が自分自身を含んでいます", f.name), exception.ErrFlowCycle)
	}
	v.onPath[f] = true
	defer delete(v.onPath, f)

	switch f.kind {
	case FlowKindStep:
		if f.step == nil {
			return invalidFlow(fmt.Sprintf("'%s' の STEP ノードにステップがありません", path), exception.ErrUnresolvedFlowElement)
		}
		name := f.step.StepName()
		if name == "" {
			return invalidFlow(fmt.Sprintf("'%s' のステップ名が空です", path), exception.ErrInvalidFlow)
		}
		if prev, ok := v.stepNames[name]; ok {
			return invalidFlow(fmt.Sprintf("ステップ '%s' が '%s' と '%s' で重複しています", name, prev, path), exception.ErrInvalidFlow)
		}
		v.stepNames[name] = path
	case FlowKindSequential, FlowKindSplit:
		if len(f.children) == 0 {
			return invalidFlow(fmt.Sprintf("%s フロー '%s' に子がありません", f.kind, f.name), exception.ErrInvalidFlow)
		}
		for _, c := range f.children {
			childPath := path
			if c != nil {
				childPath = path + "/" + c.name
			}
			if err := v.visit(c, childPath); err != nil {
				return err
			}
		}
	default:
		return invalidFlow(fmt.Sprintf("フロー '%s' の種類 %s は不明です", f.name, f.kind), exception.ErrInvalidFlow)
	}
	return nil
}

func invalidFlow(message string, cause error) error {
	return exception.NewConfigurationError("flow", message, cause)
}
