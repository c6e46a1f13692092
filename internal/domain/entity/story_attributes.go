// Package entity 定义领域实体
package entity

import (
	"strings"
)

// CharacterRole 角色定位
type CharacterRole string

const (
	RoleProtagonist CharacterRole = "protagonist"
	RoleAntagonist  CharacterRole = "antagonist"
	RoleSupporting  CharacterRole = "supporting"
	RoleMinor       CharacterRole = "minor"
)

// CharacterRoles 返回所有合法的角色定位（用于 schema enum）
func CharacterRoles() []CharacterRole {
	return []CharacterRole{RoleProtagonist, RoleAntagonist, RoleSupporting, RoleMinor}
}

// Character 故事角色
type Character struct {
	Name        string        `json:"name" validate:"required,max=128"`
	Role        CharacterRole `json:"role" validate:"required,oneof=protagonist antagonist supporting minor"`
	Description string        `json:"description" validate:"required,max=4000"`
}

// Setting 故事背景
type Setting struct {
	Place      string `json:"place" validate:"required,max=512"`
	Era        string `json:"era" validate:"max=256"`
	Atmosphere string `json:"atmosphere" validate:"max=1000"`
}

// StoryAttributes 第一阶段：从自由文本提示中抽取的结构化故事属性
type StoryAttributes struct {
	Title      string      `json:"title" validate:"required,max=255"`
	Genre      string      `json:"genre" validate:"required,max=64"`
	Themes     []string    `json:"themes" validate:"required,min=1,max=8,dive,required,max=128"`
	Characters []Character `json:"characters" validate:"required,min=1,max=24,dive"`
	Setting    Setting     `json:"setting"`
	Tone       string      `json:"tone" validate:"max=256"`
	Synopsis   string      `json:"synopsis" validate:"required,max=8000"`
}

// CharacterNames 按出现顺序返回角色名
func (a *StoryAttributes) CharacterNames() []string {
	if a == nil {
		return nil
	}
	names := make([]string, 0, len(a.Characters))
	for _, c := range a.Characters {
		names = append(names, c.Name)
	}
	return names
}

// FindCharacter 按名称查找角色（忽略大小写与首尾空白）
func (a *StoryAttributes) FindCharacter(name string) *Character {
	if a == nil {
		return nil
	}
	key := strings.ToLower(strings.TrimSpace(name))
	for i := range a.Characters {
		if strings.ToLower(strings.TrimSpace(a.Characters[i].Name)) == key {
			c := a.Characters[i]
			return &c
		}
	}
	return nil
}
