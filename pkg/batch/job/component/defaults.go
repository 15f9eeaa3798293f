package component

import (
	"strconv"

	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/job/incrementer"
	joblistener "github.com/tusharparekh/scaling-demos/pkg/batch/job/listener"
	steplistener "github.com/tusharparekh/scaling-demos/pkg/batch/step/listener"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
)

// ビルトインコンポーネントの登録名です。
const (
	LoggingJobListener   = "loggingJobListener"
	LoggingStepListener  = "loggingStepListener"
	LoggingChunkListener = "loggingChunkListener"
	RunIDIncrementer     = "runIdIncrementer"
	TimestampIncrementer = "timestampIncrementer"
)

// RegisterDefaults はフレームワークが提供するリスナーとインクリメンタを登録します。
func RegisterDefaults(r *Registry) {
	r.RegisterJobListener(LoggingJobListener, func(Dependencies) (core.JobExecutionListener, error) {
		return joblistener.NewLoggingJobListener(), nil
	})
	r.RegisterStepListener(LoggingStepListener, func(Dependencies) (core.StepExecutionListener, error) {
		return steplistener.NewLoggingStepListener(), nil
	})
	r.RegisterChunkListener(LoggingChunkListener, func(Dependencies) (core.ChunkListener, error) {
		return steplistener.NewLoggingChunkListener(), nil
	})
	r.RegisterIncrementer(RunIDIncrementer, func(properties map[string]string) (core.JobParametersIncrementer, error) {
		return incrementer.NewRunIDIncrementer(properties["key"]), nil
	})
	r.RegisterIncrementer(TimestampIncrementer, func(properties map[string]string) (core.JobParametersIncrementer, error) {
		return incrementer.NewTimestampIncrementer(properties["key"]), nil
	})
}

// IntProperty は properties[name] を整数として返します。未指定の場合は defaultValue です。
func IntProperty(properties map[string]string, name string, defaultValue int) (int, error) {
	v, ok := properties[name]
	if !ok || v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, exception.NewConfigurationError("component", "プロパティ '"+name+"' は整数である必要があります: "+v, err)
	}
	return n, nil
}

// RequiredProperty は properties[name] を返します。未指定または空の場合は ConfigurationError です。
func RequiredProperty(properties map[string]string, name string) (string, error) {
	v := properties[name]
	if v == "" {
		return "", exception.NewConfigurationError("component", "プロパティ '"+name+"' が指定されていません", nil)
	}
	return v, nil
}
