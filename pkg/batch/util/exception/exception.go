package exception

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorKind はエラーの分類を表します。
// ステップ実行結果の詳細 (StepExecution の失敗情報) にそのまま出力されます。
type ErrorKind string

const (
	KindUnknown       ErrorKind = "UnknownError"
	KindConfiguration ErrorKind = "ConfigurationError" // フロー定義の不備、必須パラメータの欠落など
	KindRead          ErrorKind = "ReadError"          // データソースの障害
	KindProcess       ErrorKind = "ProcessError"       // アイテム変換の障害
	KindWrite         ErrorKind = "WriteError"         // データシンクの障害
)

var (
	// ErrMissingParameter は参照されている JobParameters が存在しない場合のエラーです。
	ErrMissingParameter = errors.New("missing parameter")
	// ErrFlowCycle はフローが自分自身を含んでいる場合のエラーです。
	ErrFlowCycle = errors.New("flow contains itself")
	// ErrUnresolvedFlowElement はフロー要素の参照が解決できない場合のエラーです。
	ErrUnresolvedFlowElement = errors.New("unresolved flow element")
	// ErrInvalidFlow はフローの構造が不正な場合のエラーです。
	ErrInvalidFlow = errors.New("invalid flow")
)

// BatchError はバッチ処理中に発生するカスタムエラー型です。
// エラーの発生元モジュール、メッセージ、分類、ラップされた元のエラーを保持します。
type BatchError struct {
	Module      string    // エラーが発生したモジュール (例: "reader", "writer", "runner")
	Message     string    // エラーの簡潔な説明
	Kind        ErrorKind // エラーの分類
	OriginalErr error     // ラップされた元のエラー
	StackTrace  string    // スタックトレース (デバッグ用)
}

func newBatchError(module string, kind ErrorKind, message string, originalErr error) *BatchError {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)

	return &BatchError{
		Module:      module,
		Message:     message,
		Kind:        kind,
		OriginalErr: originalErr,
		StackTrace:  string(buf[:n]),
	}
}

// NewBatchError は分類を持たない BatchError を作成します。
func NewBatchError(module, message string, originalErr error) *BatchError {
	return newBatchError(module, KindUnknown, message, originalErr)
}

// NewBatchErrorf はフォーマット文字列からメッセージを組み立てて BatchError を作成します。
// 引数に %w が含まれる場合、そのエラーが OriginalErr になります。
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	wrapped := fmt.Errorf(format, a...)
	return newBatchError(module, KindUnknown, wrapped.Error(), errors.Unwrap(wrapped)).withoutCauseInMessage()
}

// NewKindError は指定した分類の BatchError を作成します。
// module が空の場合、Error は message だけを返します。永続化された失敗情報の復元に使います。
func NewKindError(module string, kind ErrorKind, message string, originalErr error) *BatchError {
	return newBatchError(module, kind, message, originalErr)
}

// NewConfigurationError は ConfigurationError を作成します。
func NewConfigurationError(module, message string, originalErr error) *BatchError {
	return newBatchError(module, KindConfiguration, message, originalErr)
}

// NewReadError は ReadError を作成します。
func NewReadError(module, message string, originalErr error) *BatchError {
	return newBatchError(module, KindRead, message, originalErr)
}

// NewProcessError は ProcessError を作成します。
func NewProcessError(module, message string, originalErr error) *BatchError {
	return newBatchError(module, KindProcess, message, originalErr)
}

// NewWriteError は WriteError を作成します。
func NewWriteError(module, message string, originalErr error) *BatchError {
	return newBatchError(module, KindWrite, message, originalErr)
}

// withoutCauseInMessage は NewBatchErrorf で %w により埋め込まれた原因を
// Error() で二重に出力しないようにします。
func (e *BatchError) withoutCauseInMessage() *BatchError {
	if e.OriginalErr == nil {
		return e
	}
	e.Message = strings.TrimSuffix(e.Message, ": "+e.OriginalErr.Error())
	return e
}

// Error は error インターフェースの実装です。
func (e *BatchError) Error() string {
	if e.Module == "" {
		return e.Message
	}
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap は errors.Unwrap のために元のエラーを返します。
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// KindOf はエラーチェーンの中で最初に分類を持つ BatchError の分類を返します。
// BatchError を含まない場合は KindUnknown です。
func KindOf(err error) ErrorKind {
	for err != nil {
		var be *BatchError
		if !errors.As(err, &be) {
			return KindUnknown
		}
		if be.Kind != KindUnknown && be.Kind != "" {
			return be.Kind
		}
		err = be.OriginalErr
	}
	return KindUnknown
}

// IsConfigurationError はエラーが ConfigurationError かどうかを判定します。
func IsConfigurationError(err error) bool {
	return KindOf(err) == KindConfiguration
}

// WithKind は err が既に分類を持っていればそのまま返し、
// そうでなければ指定された分類の BatchError で包みます。
func WithKind(err error, kind ErrorKind, module, message string) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return err
	}
	return newBatchError(module, kind, message, err)
}
