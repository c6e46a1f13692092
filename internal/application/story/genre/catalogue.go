// Package genre 提供内置的静态体裁目录。
package genre

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed genres.yaml
var builtinYAML []byte

type Genre struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Aliases     []string `yaml:"aliases"`
}

type Catalogue struct {
	genres []Genre
	index  map[string]string // 小写名称/别名 -> 规范名
}

var (
	builtinOnce sync.Once
	builtin     *Catalogue
	builtinErr  error
)

// Load 返回内置目录（只解析一次）
func Load() (*Catalogue, error) {
	builtinOnce.Do(func() {
		builtin, builtinErr = Parse(builtinYAML)
	})
	return builtin, builtinErr
}

// Parse 解析 YAML 目录；名称或别名重复视为错误。
func Parse(data []byte) (*Catalogue, error) {
	var doc struct {
		Genres []Genre `yaml:"genres"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse genre catalogue: %w", err)
	}
	if len(doc.Genres) == 0 {
		return nil, fmt.Errorf("genre catalogue is empty")
	}

	c := &Catalogue{
		genres: make([]Genre, 0, len(doc.Genres)),
		index:  make(map[string]string, len(doc.Genres)*3),
	}
	for i, g := range doc.Genres {
		g.Name = strings.TrimSpace(g.Name)
		if g.Name == "" {
			return nil, fmt.Errorf("genres[%d].name is required", i)
		}
		for _, key := range append([]string{g.Name}, g.Aliases...) {
			k := normalize(key)
			if k == "" {
				continue
			}
			if prev, ok := c.index[k]; ok {
				return nil, fmt.Errorf("genre key %q duplicated (%s, %s)", key, prev, g.Name)
			}
			c.index[k] = g.Name
		}
		c.genres = append(c.genres, g)
	}
	return c, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Names 按目录顺序返回规范名
func (c *Catalogue) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.genres))
	for _, g := range c.genres {
		names = append(names, g.Name)
	}
	return names
}

func (c *Catalogue) Genres() []Genre {
	if c == nil {
		return nil
	}
	return append([]Genre(nil), c.genres...)
}

func (c *Catalogue) Contains(name string) bool {
	_, ok := c.Canonical(name)
	return ok
}

// Canonical 把名称或别名映射为规范名（忽略大小写与多余空白）
func (c *Catalogue) Canonical(name string) (string, bool) {
	if c == nil {
		return "", false
	}
	v, ok := c.index[normalize(name)]
	return v, ok
}
