package component

import (
	"fmt"
	"sort"
	"sync"

	config "github.com/tusharparekh/scaling-demos/pkg/batch/config"
	"github.com/tusharparekh/scaling-demos/pkg/batch/database"
	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

// Dependencies はコンポーネントのビルダーに渡される共有の依存関係です。
type Dependencies struct {
	Config  *config.Config
	DB      database.DBConnection
	Dialect database.Dialect
}

// ReaderBuilder は JSL のプロパティから ItemReader を生成する関数型です。
// properties のプレースホルダーは解決済みです。
type ReaderBuilder func(deps Dependencies, properties map[string]string) (core.ItemReader[any], error)

// ProcessorBuilder は JSL のプロパティから ItemProcessor を生成する関数型です。
type ProcessorBuilder func(deps Dependencies, properties map[string]string) (core.ItemProcessor[any, any], error)

// WriterBuilder は JSL のプロパティから ItemWriter を生成する関数型です。
type WriterBuilder func(deps Dependencies, properties map[string]string) (core.ItemWriter[any], error)

// JobListenerBuilder は JobExecutionListener を生成する関数型です。
type JobListenerBuilder func(deps Dependencies) (core.JobExecutionListener, error)

// StepListenerBuilder は StepExecutionListener を生成する関数型です。
type StepListenerBuilder func(deps Dependencies) (core.StepExecutionListener, error)

// ChunkListenerBuilder は ChunkListener を生成する関数型です。
type ChunkListenerBuilder func(deps Dependencies) (core.ChunkListener, error)

// IncrementerBuilder は JobParametersIncrementer を生成する関数型です。
type IncrementerBuilder func(properties map[string]string) (core.JobParametersIncrementer, error)

// Registry は JSL から参照される名前付きビルダーの登録先です。
// 登録はアプリケーションの初期化時に、参照はジョブの組み立て時に行われます。
type Registry struct {
	mu             sync.RWMutex
	readers        map[string]ReaderBuilder
	processors     map[string]ProcessorBuilder
	writers        map[string]WriterBuilder
	jobListeners   map[string]JobListenerBuilder
	stepListeners  map[string]StepListenerBuilder
	chunkListeners map[string]ChunkListenerBuilder
	incrementers   map[string]IncrementerBuilder
}

// NewRegistry は空の Registry を作成します。
func NewRegistry() *Registry {
	return &Registry{
		readers:        make(map[string]ReaderBuilder),
		processors:     make(map[string]ProcessorBuilder),
		writers:        make(map[string]WriterBuilder),
		jobListeners:   make(map[string]JobListenerBuilder),
		stepListeners:  make(map[string]StepListenerBuilder),
		chunkListeners: make(map[string]ChunkListenerBuilder),
		incrementers:   make(map[string]IncrementerBuilder),
	}
}

func register[B any](r *Registry, m map[string]B, kind, name string, builder B) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := m[name]; exists {
		logger.Warnf("Registry: %s ビルダー '%s' を上書きします。", kind, name)
	}
	m[name] = builder
	logger.Debugf("Registry: %s ビルダー '%s' を登録しました。", kind, name)
}

func lookup[B any](r *Registry, m map[string]B, kind, name string) (B, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := m[name]
	if !ok {
		var zero B
		return zero, exception.NewConfigurationError("component", fmt.Sprintf("%s '%s' のビルダーが登録されていません", kind, name), nil)
	}
	return b, nil
}

func (r *Registry) RegisterReader(name string, builder ReaderBuilder) {
	register(r, r.readers, "Reader", name, builder)
}

func (r *Registry) RegisterProcessor(name string, builder ProcessorBuilder) {
	register(r, r.processors, "Processor", name, builder)
}

func (r *Registry) RegisterWriter(name string, builder WriterBuilder) {
	register(r, r.writers, "Writer", name, builder)
}

func (r *Registry) RegisterJobListener(name string, builder JobListenerBuilder) {
	register(r, r.jobListeners, "JobExecutionListener", name, builder)
}

func (r *Registry) RegisterStepListener(name string, builder StepListenerBuilder) {
	register(r, r.stepListeners, "StepExecutionListener", name, builder)
}

func (r *Registry) RegisterChunkListener(name string, builder ChunkListenerBuilder) {
	register(r, r.chunkListeners, "ChunkListener", name, builder)
}

func (r *Registry) RegisterIncrementer(name string, builder IncrementerBuilder) {
	register(r, r.incrementers, "JobParametersIncrementer", name, builder)
}

func (r *Registry) Reader(name string) (ReaderBuilder, error) {
	return lookup(r, r.readers, "Reader", name)
}

func (r *Registry) Processor(name string) (ProcessorBuilder, error) {
	return lookup(r, r.processors, "Processor", name)
}

func (r *Registry) Writer(name string) (WriterBuilder, error) {
	return lookup(r, r.writers, "Writer", name)
}

func (r *Registry) JobListener(name string) (JobListenerBuilder, error) {
	return lookup(r, r.jobListeners, "JobExecutionListener", name)
}

func (r *Registry) StepListener(name string) (StepListenerBuilder, error) {
	return lookup(r, r.stepListeners, "StepExecutionListener", name)
}

func (r *Registry) ChunkListener(name string) (ChunkListenerBuilder, error) {
	return lookup(r, r.chunkListeners, "ChunkListener", name)
}

func (r *Registry) Incrementer(name string) (IncrementerBuilder, error) {
	return lookup(r, r.incrementers, "JobParametersIncrementer", name)
}

// Names は登録されているビルダー名を種類ごとにソートして返します。
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		"reader":        sortedKeys(r.readers),
		"processor":     sortedKeys(r.processors),
		"writer":        sortedKeys(r.writers),
		"jobListener":   sortedKeys(r.jobListeners),
		"stepListener":  sortedKeys(r.stepListeners),
		"chunkListener": sortedKeys(r.chunkListeners),
		"incrementer":   sortedKeys(r.incrementers),
	}
}

func sortedKeys[B any](m map[string]B) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
