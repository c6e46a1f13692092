package entity

// Segment 叙事片段（场景 / 章节级切片）
type Segment struct {
	Index      int      `json:"index"`
	Title      string   `json:"title" validate:"required,max=255"`
	Summary    string   `json:"summary" validate:"required,max=8000"`
	Characters []string `json:"characters" validate:"required,min=1,dive,required"`
	Setting    string   `json:"setting" validate:"max=1000"`
	Goal       string   `json:"goal" validate:"max=1000"`
}

// StoryOutline 第二阶段：有序片段列表
type StoryOutline struct {
	Segments []Segment `json:"segments" validate:"required,min=1,dive"`
}

// Len 返回片段数
func (o *StoryOutline) Len() int {
	if o == nil {
		return 0
	}
	return len(o.Segments)
}
