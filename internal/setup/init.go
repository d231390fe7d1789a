// Package setup creates the .taskpath/ directory of a project.
package setup

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/taskpath/internal/model"
	"github.com/msageha/taskpath/internal/report"
	"github.com/msageha/taskpath/templates"
)

// DirName is the per-project state directory.
const DirName = ".taskpath"

type Options struct {
	// Name overrides the project name; defaults to the directory basename.
	Name string
	// Example writes the sample input files into the project directory
	// unless files with those names already exist.
	Example bool
}

// Run initialises <projectDir>/.taskpath and returns the written config.
func Run(projectDir string, opts Options) (*model.Config, error) {
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("project dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", absDir)
	}

	base := filepath.Join(absDir, DirName)
	if _, err := os.Stat(base); err == nil {
		return nil, fmt.Errorf("%s already exists", base)
	}

	for _, d := range []string{"logs", "locks", "results"} {
		if err := os.MkdirAll(filepath.Join(base, d), 0755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	cfg, err := generateConfig(absDir, opts.Name)
	if err != nil {
		return nil, fmt.Errorf("generate config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config template: %w", err)
	}
	if err := report.WriteYAML(filepath.Join(base, "config.yaml"), cfg); err != nil {
		return nil, fmt.Errorf("write config.yaml: %w", err)
	}

	if opts.Example {
		examples := map[string]string{
			"relations.txt": cfg.Inputs.RelationsFile,
			"task_ids.txt":  cfg.Inputs.TasksFile,
			"question.txt":  cfg.Inputs.QueryFile,
		}
		for name, dst := range examples {
			if err := copyExample(name, cfg.ResolvePath(dst)); err != nil {
				return nil, err
			}
		}
	}
	return cfg, nil
}

func generateConfig(projectDir, projectName string) (*model.Config, error) {
	data, err := fs.ReadFile(templates.FS, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("read config template: %w", err)
	}

	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config template: %w", err)
	}

	if projectName != "" {
		cfg.Project.Name = projectName
	} else {
		cfg.Project.Name = filepath.Base(projectDir)
	}
	cfg.Taskpath.ProjectRoot = projectDir
	cfg.Taskpath.Created = time.Now().Format(time.RFC3339)
	cfg.ApplyDefaults()
	return &cfg, nil
}

func copyExample(name, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	data, err := fs.ReadFile(templates.FS, path.Join("example", name))
	if err != nil {
		return fmt.Errorf("read template %s: %w", name, err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}
