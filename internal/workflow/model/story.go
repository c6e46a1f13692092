package model

// AttributesGenerateInput 第一阶段输入：自由文本提示 -> 结构化故事属性
type AttributesGenerateInput struct {
	Prompt string

	// Genres 可选体裁列表（schema enum）；PinnedGenre 非空时只允许该体裁
	Genres      []string
	PinnedGenre string

	LLMParams
}

// OutlineGenerateInput 第二阶段输入：属性 -> 有序片段
type OutlineGenerateInput struct {
	Prompt         string
	AttributesJSON string

	// CharacterNames 来自第一阶段输出，约束每个片段可引用的角色
	CharacterNames []string
	SegmentCount   int

	LLMParams
}

// ProseGenerateInput 第三阶段输入：单个片段 -> 正文
type ProseGenerateInput struct {
	AttributesJSON string
	OutlineJSON    string
	SegmentJSON    string

	SegmentIndex int
	SegmentCount int
	SegmentTitle string

	// PreviousTitle / PreviousProse 为紧邻的上一片段，首个片段为空
	PreviousTitle string
	PreviousProse string

	LLMParams
}
