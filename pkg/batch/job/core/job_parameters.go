package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// JobParameters はジョブ実行時のパラメータを保持する不変のマップです。
// 起動時に一度だけ確定し、その JobExecution の全ステップから参照されます。
type JobParameters struct {
	params map[string]string
}

// NewJobParameters は与えられたマップをコピーして JobParameters を作成します。
func NewJobParameters(params map[string]string) JobParameters {
	copied := make(map[string]string, len(params))
	for k, v := range params {
		copied[k] = v
	}
	return JobParameters{params: copied}
}

// Get は指定された名前のパラメータを返します。
func (p JobParameters) Get(name string) (string, bool) {
	v, ok := p.params[name]
	return v, ok
}

// GetString はパラメータを返します。存在しない場合は defaultValue を返します。
func (p JobParameters) GetString(name, defaultValue string) string {
	if v, ok := p.params[name]; ok {
		return v
	}
	return defaultValue
}

// Has はパラメータが存在するかどうかを返します。
func (p JobParameters) Has(name string) bool {
	_, ok := p.params[name]
	return ok
}

// Len はパラメータの数を返します。
func (p JobParameters) Len() int {
	return len(p.params)
}

// Names はパラメータ名をソートして返します。
func (p JobParameters) Names() []string {
	names := make([]string, 0, len(p.params))
	for k := range p.params {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ToMap はパラメータのコピーを返します。
func (p JobParameters) ToMap() map[string]string {
	copied := make(map[string]string, len(p.params))
	for k, v := range p.params {
		copied[k] = v
	}
	return copied
}

// With は name=value を追加した新しい JobParameters を返します。元の値は変更されません。
func (p JobParameters) With(name, value string) JobParameters {
	copied := p.ToMap()
	copied[name] = value
	return JobParameters{params: copied}
}

// Missing は names のうち存在しないパラメータ名を返します。
func (p JobParameters) Missing(names []string) []string {
	var missing []string
	for _, name := range names {
		if !p.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Hash はパラメータ名でソートした組から SHA-256 ハッシュを計算します。
// JobInstance の識別に使用します。
func (p JobParameters) Hash() string {
	var sb strings.Builder
	for _, name := range p.Names() {
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(p.params[name])
		sb.WriteByte(';')
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// String はログ出力用の表現を返します。
func (p JobParameters) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, name := range p.Names() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(p.params[name])
	}
	sb.WriteByte('}')
	return sb.String()
}

// MarshalJSON は json.Marshaler の実装です。
func (p JobParameters) MarshalJSON() ([]byte, error) {
	if p.params == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p.params)
}

// UnmarshalJSON は json.Unmarshaler の実装です。
func (p *JobParameters) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*p = NewJobParameters(m)
	return nil
}
