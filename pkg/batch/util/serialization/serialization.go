package serialization

import (
	"encoding/json"

	core "github.com/tusharparekh/scaling-demos/pkg/batch/job/core"
	"github.com/tusharparekh/scaling-demos/pkg/batch/util/exception"
	logger "github.com/tusharparekh/scaling-demos/pkg/batch/util/logger"
)

const module = "serialization"

func isEmpty(data []byte) bool {
	return len(data) == 0 || string(data) == "null"
}

// MarshalExecutionContext は ExecutionContext を JSON にシリアライズします。
func MarshalExecutionContext(ctx core.ExecutionContext) ([]byte, error) {
	if ctx == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(ctx)
	if err != nil {
		return nil, exception.NewBatchError(module, "ExecutionContext のシリアライズに失敗しました", err)
	}
	return data, nil
}

// UnmarshalExecutionContext は JSON を ExecutionContext にデシリアライズします。
// 空データの場合は空の ExecutionContext を返します。
func UnmarshalExecutionContext(data []byte) (core.ExecutionContext, error) {
	ec := core.NewExecutionContext()
	if isEmpty(data) {
		return ec, nil
	}
	if err := json.Unmarshal(data, &ec); err != nil {
		return nil, exception.NewBatchError(module, "ExecutionContext のデシリアライズに失敗しました", err)
	}
	return ec, nil
}

// MarshalJobParameters は JobParameters を JSON オブジェクトにシリアライズします。
func MarshalJobParameters(params core.JobParameters) ([]byte, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, exception.NewBatchError(module, "JobParameters のシリアライズに失敗しました", err)
	}
	return data, nil
}

// UnmarshalJobParameters は JSON オブジェクトを JobParameters にデシリアライズします。
func UnmarshalJobParameters(data []byte) (core.JobParameters, error) {
	var params core.JobParameters
	if isEmpty(data) {
		return core.NewJobParameters(nil), nil
	}
	if err := json.Unmarshal(data, &params); err != nil {
		return core.JobParameters{}, exception.NewBatchError(module, "JobParameters のデシリアライズに失敗しました", err)
	}
	return params, nil
}

// MarshalFailures は失敗原因を分類とメッセージの JSON 配列にシリアライズします。
func MarshalFailures(failures []error) ([]byte, error) {
	details := make([]core.FailureDetail, 0, len(failures))
	for _, err := range failures {
		if err == nil {
			continue
		}
		details = append(details, core.NewFailureDetail(err))
	}
	data, err := json.Marshal(details)
	if err != nil {
		return nil, exception.NewBatchError(module, "Failures のシリアライズに失敗しました", err)
	}
	return data, nil
}

// UnmarshalFailures は JSON 配列を失敗原因に戻します。
// 復元されたエラーは元の分類を保持し、Error は元のメッセージを返します。
func UnmarshalFailures(data []byte) ([]error, error) {
	if isEmpty(data) {
		return nil, nil
	}
	var details []core.FailureDetail
	if err := json.Unmarshal(data, &details); err != nil {
		return nil, exception.NewBatchError(module, "Failures のデシリアライズに失敗しました", err)
	}
	failures := make([]error, 0, len(details))
	for _, d := range details {
		failures = append(failures, exception.NewKindError("", d.Kind, d.Message, nil))
	}
	logger.Debugf("%d 件の失敗原因をデシリアライズしました。", len(failures))
	return failures, nil
}
