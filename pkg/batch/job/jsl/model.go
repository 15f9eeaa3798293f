package jsl

// Job は JSL ファイルに定義されたジョブです。
type Job struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name,omitempty"`
	Description string         `yaml:"description,omitempty"`
	Flow        Flow           `yaml:"flow"`
	Listeners   []ComponentRef `yaml:"listeners,omitempty"`
	Incrementer ComponentRef   `yaml:"incrementer,omitempty"`
}

// JobName はジョブ名を返します。name が省略された場合は id です。
func (j Job) JobName() string {
	if j.Name != "" {
		return j.Name
	}
	return j.ID
}

// Flow はフロー要素の集合と、実行を開始する要素の ID です。
type Flow struct {
	StartElement string             `yaml:"start-element"`
	Elements     map[string]Element `yaml:"elements"`
}

// 要素の種類です。
const (
	ElementTypeStep       = "step"
	ElementTypeSequential = "sequential"
	ElementTypeSplit      = "split"
)

// Element はフローの要素です。
// step はチャンク指向のステップ、sequential と split は elements に並べた要素 ID の合成です。
type Element struct {
	Type        string `yaml:"type,omitempty"`
	Description string `yaml:"description,omitempty"`

	// step
	Reader         ComponentRef   `yaml:"reader,omitempty"`
	Processor      ComponentRef   `yaml:"processor,omitempty"`
	Writer         ComponentRef   `yaml:"writer,omitempty"`
	Chunk          *Chunk         `yaml:"chunk,omitempty"`
	Listeners      []ComponentRef `yaml:"listeners,omitempty"`
	ChunkListeners []ComponentRef `yaml:"chunk-listeners,omitempty"`

	// sequential / split
	Elements []string `yaml:"elements,omitempty"`
}

// Kind は要素の種類を返します。type が省略された場合、reader を持てば step です。
func (e Element) Kind() string {
	if e.Type != "" {
		return e.Type
	}
	if e.Reader.Ref != "" {
		return ElementTypeStep
	}
	return ElementTypeSequential
}

// ComponentRef は Registry に登録されたコンポーネントの参照です。
// Properties の値には #{jobParameters['name']} を含められます。
type ComponentRef struct {
	Ref        string            `yaml:"ref"`
	Properties map[string]string `yaml:"properties,omitempty"`
}

// Chunk はチャンクの設定です。
type Chunk struct {
	ItemCount int `yaml:"item-count"`
}
