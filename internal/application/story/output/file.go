package output

import (
	"fmt"
	"os"
	"path/filepath"

	"storyforge/internal/application/story/storyutil"
	apperrors "storyforge/pkg/errors"
)

const maxNameSuffix = 1000

// DefaultPath 返回 <dir>/<slug(title)>.txt；已存在时追加 -2、-3 ...
func DefaultPath(dir, title string) string {
	slug := storyutil.Slugify(title)
	path := filepath.Join(dir, slug+".txt")
	for i := 2; i <= maxNameSuffix; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(dir, fmt.Sprintf("%s-%d.txt", slug, i))
	}
	return path
}

// WriteFile 原子写入：同目录临时文件 + rename，避免中断时留下半个文件。
func WriteFile(path, content string) error {
	if path == "" {
		return apperrors.ErrInvalidParam.WithDetail("output path is empty")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return storageError("create output directory", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return storageError("create temp file", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		cleanup()
		return storageError("write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return storageError("sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return storageError("close temp file", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return storageError("chmod temp file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return storageError("rename temp file", err)
	}
	return nil
}

func storageError(op string, err error) error {
	return apperrors.Wrap(err, apperrors.CodeStorageError, "failed to write story file").WithDetail(op)
}
