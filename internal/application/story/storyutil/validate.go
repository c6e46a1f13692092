package storyutil

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ValidationError 聚合一次阶段输出的全部形状问题
type ValidationError struct {
	Stage  string
	Issues []string
}

func (e ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return e.Stage + " validation failed"
	}
	return e.Stage + " validation failed: " + strings.Join(e.Issues, "; ")
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// 问题路径使用 json 字段名，和模型看到的 schema 一致
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// StructIssues 按 struct tag 校验 v，返回可读的问题列表。
func StructIssues(v any) []string {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	issues := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, describeFieldError(fe))
	}
	return issues
}

func describeFieldError(fe validator.FieldError) string {
	path := fe.Namespace()
	// 去掉顶层类型名：StoryAttributes.characters[0].name -> characters[0].name
	if i := strings.Index(path, "."); i >= 0 {
		path = path[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return path + " is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must have at least %s item(s)", path, fe.Param())
		}
		return fmt.Sprintf("%s too short", path)
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must have at most %s item(s)", path, fe.Param())
		}
		return fmt.Sprintf("%s too long", path)
	case "oneof":
		return fmt.Sprintf("%s invalid: %v", path, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", path, fe.Tag())
	}
}
