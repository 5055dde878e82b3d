package publish

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/raphaelgruber/council-go/internal/models"
	"gopkg.in/yaml.v3"
)

// IndexEntry is one published commit directory in the top-level index.
type IndexEntry struct {
	Dir       string          `yaml:"dir"`
	Run       string          `yaml:"run"`
	Project   string          `yaml:"project"`
	TaskType  models.TaskType `yaml:"task_type"`
	CreatedAt time.Time       `yaml:"created_at"`
}

// Index maps the latest and all historical commit directories for a target
// root. History is append-only.
type Index struct {
	Latest  string       `yaml:"latest"`
	History []IndexEntry `yaml:"history"`
}

func (w *Writer) indexPath() string {
	return filepath.Join(w.targetRoot, versionsDir, indexFile)
}

// ReadIndex loads the published index, empty if none exists yet.
func (w *Writer) ReadIndex() (*Index, error) {
	data, err := os.ReadFile(w.indexPath())
	if os.IsNotExist(err) {
		return &Index{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	var idx Index
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}
	return &idx, nil
}

// appendIndex records a newly published directory and points latest at it.
func (w *Writer) appendIndex(dir string, run *models.Run, ts time.Time) error {
	idx, err := w.ReadIndex()
	if err != nil {
		return err
	}

	dir = filepath.ToSlash(dir)
	idx.Latest = dir
	idx.History = append(idx.History, IndexEntry{
		Dir:       dir,
		Run:       models.MustRecordIDString(run.ID),
		Project:   run.Project,
		TaskType:  run.TaskType,
		CreatedAt: ts,
	})

	data, err := yaml.Marshal(idx)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	if err := os.WriteFile(w.indexPath(), data, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}
