package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/taskpath/internal/model"
)

// Write renders result and replaces path with it atomically.
func Write(path string, result *model.QueryResult, format model.OutputFormat, joiner string) error {
	content, err := Render(result, format, joiner)
	if err != nil {
		return err
	}
	return WriteRaw(path, content, format)
}

// WriteRaw replaces path with content: temp file in the same directory,
// fsync, re-read and validate for format, keep the previous file as .bak,
// then rename over path. On failure path is left untouched.
func WriteRaw(path string, content []byte, format model.OutputFormat) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".taskpath-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	written, err := os.ReadFile(tmpName)
	if err != nil {
		return fmt.Errorf("read temp file for validation: %w", err)
	}
	if err := validate(written, format); err != nil {
		return fmt.Errorf("%s validation failed: %w", format, err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".bak"); err != nil {
			return fmt.Errorf("create backup: %w", err)
		}
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

// WriteYAML marshals data with yaml.v3 and writes it through WriteRaw.
func WriteYAML(path string, data any) error {
	content, err := yamlv3.Marshal(data)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}
	return WriteRaw(path, content, model.OutputFormatYAML)
}

func validate(content []byte, format model.OutputFormat) error {
	switch format {
	case model.OutputFormatYAML:
		var v any
		return yamlv3.Unmarshal(content, &v)
	case model.OutputFormatJSON:
		if !json.Valid(content) {
			return fmt.Errorf("invalid json")
		}
		return nil
	default:
		return nil
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
