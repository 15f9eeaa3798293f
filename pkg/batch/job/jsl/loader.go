package jsl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

const loaderModule = "jsl_loader"

// Definitions はロード済みの JSL ジョブ定義を ID で保持します。
type Definitions struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

// NewDefinitions は空の Definitions を作成します。
func NewDefinitions() *Definitions {
	return &Definitions{jobs: make(map[string]Job)}
}

// LoadFromBytes は YAML のバイトデータからジョブ定義をロードします。
// "---" で区切った複数のドキュメントに、それぞれ一つのジョブを定義できます。
func (d *Definitions) LoadFromBytes(data []byte) error {
	logger.Infof("JSL 定義のロードを開始します。")

	dec := yaml.NewDecoder(bytes.NewReader(data))
	loaded := 0
	for {
		var jobDef Job
		err := dec.Decode(&jobDef)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return exception.NewConfigurationError(loaderModule, "JSL ファイルのパースに失敗しました", err)
		}
		if err := validate(jobDef); err != nil {
			return err
		}
		if err := d.add(jobDef); err != nil {
			return err
		}
		loaded++
		logger.Infof("JSL ジョブ '%s' をロードしました。", jobDef.ID)
	}
	if loaded == 0 {
		return exception.NewConfigurationError(loaderModule, "JSL ファイルにジョブが定義されていません", nil)
	}
	logger.Infof("JSL 定義のロードが完了しました。ロードされたジョブ数: %d", d.Count())
	return nil
}

func validate(jobDef Job) error {
	if jobDef.ID == "" {
		return exception.NewConfigurationError(loaderModule, "JSL ファイルに 'id' が定義されていません", nil)
	}
	if jobDef.Flow.StartElement == "" {
		return exception.NewConfigurationError(loaderModule, fmt.Sprintf("JSL ジョブ '%s' のフローに 'start-element' が定義されていません", jobDef.ID), nil)
	}
	if len(jobDef.Flow.Elements) == 0 {
		return exception.NewConfigurationError(loaderModule, fmt.Sprintf("JSL ジョブ '%s' のフローに 'elements' が定義されていません", jobDef.ID), nil)
	}
	return nil
}

func (d *Definitions) add(jobDef Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.jobs[jobDef.ID]; exists {
		return exception.NewConfigurationError(loaderModule, fmt.Sprintf("JSL ジョブID '%s' が重複しています", jobDef.ID), nil)
	}
	d.jobs[jobDef.ID] = jobDef
	return nil
}

// Get は ID でジョブ定義を返します。
func (d *Definitions) Get(jobID string) (Job, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	job, ok := d.jobs[jobID]
	return job, ok
}

// Count はロード済みのジョブ定義の数を返します。
func (d *Definitions) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.jobs)
}

// IDs はロード済みのジョブ ID をソートして返します。
func (d *Definitions) IDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.jobs))
	for id := range d.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
