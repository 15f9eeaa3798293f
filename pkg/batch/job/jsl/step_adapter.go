package jsl

import (
	"fmt"
	"sort"

	"github.com/tusharparekh/scaling-demos/pkg/batch/job/component"
	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/step"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

const converterModule = "jsl_converter"

// Converter は JSL のフロー定義を core.Flow に変換します。
// ステップのコンポーネントはここでは生成せず、ステップ開始時に JobParameters で解決したプロパティから生成します。
type Converter struct {
	Registry         *component.Registry
	Deps             component.Dependencies
	DefaultChunkSize int
	// StepListeners と ChunkListeners はすべてのステップに追加されます。
	StepListeners  []core.StepExecutionListener
	ChunkListeners []core.ChunkListener
}

// ConvertFlow は JSL の Flow を FlowBuilder で組み立てます。
// 参照先の欠落や循環は ConfigurationError になります。
func (c *Converter) ConvertFlow(jslFlow Flow) (*core.Flow, error) {
	if _, ok := jslFlow.Elements[jslFlow.StartElement]; !ok {
		return nil, exception.NewConfigurationError(converterModule,
			fmt.Sprintf("フローの 'start-element' '%s' が 'elements' に見つかりません", jslFlow.StartElement), exception.ErrUnresolvedFlowElement)
	}

	ids := make([]string, 0, len(jslFlow.Elements))
	for id := range jslFlow.Elements {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	b := core.NewFlowBuilder()
	for _, id := range ids {
		el := jslFlow.Elements[id]
		switch el.Kind() {
		case ElementTypeStep:
			s, err := c.buildStep(id, el)
			if err != nil {
				return nil, err
			}
			b.AddStep(s)
		case ElementTypeSequential:
			b.AddSequential(id, el.Elements...)
		case ElementTypeSplit:
			b.AddSplit(id, el.Elements...)
		default:
			return nil, exception.NewConfigurationError(converterModule,
				fmt.Sprintf("フロー要素 '%s' の type '%s' は不明です", id, el.Type), exception.ErrInvalidFlow)
		}
	}
	return b.Build(jslFlow.StartElement)
}

func (c *Converter) buildStep(id string, el Element) (core.Step, error) {
	if el.Reader.Ref == "" || el.Writer.Ref == "" {
		return nil, exception.NewConfigurationError(converterModule, fmt.Sprintf("チャンクステップ '%s' には reader と writer が必要です", id), nil)
	}
	readerBuilder, err := c.Registry.Reader(el.Reader.Ref)
	if err != nil {
		return nil, err
	}
	var processorBuilder component.ProcessorBuilder
	if el.Processor.Ref != "" {
		if processorBuilder, err = c.Registry.Processor(el.Processor.Ref); err != nil {
			return nil, err
		}
	}
	writerBuilder, err := c.Registry.Writer(el.Writer.Ref)
	if err != nil {
		return nil, err
	}

	chunkSize := c.DefaultChunkSize
	if el.Chunk != nil && el.Chunk.ItemCount != 0 {
		chunkSize = el.Chunk.ItemCount
	}
	if chunkSize < 1 {
		return nil, exception.NewConfigurationError(converterModule, fmt.Sprintf("ステップ '%s' の chunk item-count は 1 以上である必要があります: %d", id, chunkSize), nil)
	}

	stepListeners := append([]core.StepExecutionListener(nil), c.StepListeners...)
	for _, ref := range el.Listeners {
		builder, err := c.Registry.StepListener(ref.Ref)
		if err != nil {
			return nil, err
		}
		l, err := builder(c.Deps)
		if err != nil {
			return nil, exception.NewConfigurationError(converterModule, fmt.Sprintf("StepExecutionListener '%s' のビルドに失敗しました", ref.Ref), err)
		}
		stepListeners = append(stepListeners, l)
	}
	chunkListeners := append([]core.ChunkListener(nil), c.ChunkListeners...)
	for _, ref := range el.ChunkListeners {
		builder, err := c.Registry.ChunkListener(ref.Ref)
		if err != nil {
			return nil, err
		}
		l, err := builder(c.Deps)
		if err != nil {
			return nil, exception.NewConfigurationError(converterModule, fmt.Sprintf("ChunkListener '%s' のビルドに失敗しました", ref.Ref), err)
		}
		chunkListeners = append(chunkListeners, l)
	}

	deps := c.Deps
	resolve := func(params core.JobParameters) (step.Resources[any, any], error) {
		var res step.Resources[any, any]
		props, err := core.ResolveProperties(el.Reader.Properties, params)
		if err != nil {
			return res, err
		}
		if res.Reader, err = readerBuilder(deps, props); err != nil {
			return res, exception.WithKind(err, exception.KindConfiguration, converterModule, fmt.Sprintf("リーダー '%s' のビルドに失敗しました", el.Reader.Ref))
		}
		if processorBuilder != nil {
			if props, err = core.ResolveProperties(el.Processor.Properties, params); err != nil {
				return res, err
			}
			if res.Processor, err = processorBuilder(deps, props); err != nil {
				return res, exception.WithKind(err, exception.KindConfiguration, converterModule, fmt.Sprintf("プロセッサ '%s' のビルドに失敗しました", el.Processor.Ref))
			}
		}
		if props, err = core.ResolveProperties(el.Writer.Properties, params); err != nil {
			return res, err
		}
		if res.Writer, err = writerBuilder(deps, props); err != nil {
			return res, exception.WithKind(err, exception.KindConfiguration, converterModule, fmt.Sprintf("ライター '%s' のビルドに失敗しました", el.Writer.Ref))
		}
		return res, nil
	}

	required := requiredParameters(el.Reader.Properties, el.Processor.Properties, el.Writer.Properties)
	logger.Debugf("JSL ステップ '%s' を組み立てました。chunk: %d, 必要なパラメータ: %v", id, chunkSize, required)
	return step.NewChunkStep[any, any](id, chunkSize, deps.DB, resolve,
		step.WithRequiredParameters(required...),
		step.WithStepListeners(stepListeners...),
		step.WithChunkListeners(chunkListeners...),
	), nil
}

func requiredParameters(propertySets ...map[string]string) []string {
	merged := make(map[string]string)
	for i, props := range propertySets {
		for k, v := range props {
			merged[fmt.Sprintf("%d.%s", i, k)] = v
		}
	}
	return core.PropertyPlaceholders(merged)
}
