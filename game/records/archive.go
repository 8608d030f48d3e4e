package records

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wricardo/startlights/game/engine"
)

// FileArchive writes completed sessions as JSON files
type FileArchive struct {
	dir string
}

// NewFileArchive creates an archive rooted at dir
func NewFileArchive(dir string) (*FileArchive, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &FileArchive{dir: dir}, nil
}

// Name identifies the archive in upload logs.
func (fa *FileArchive) Name() string { return "file" }

// Send writes a summary to <completed>-<session>.json. The name sorts by
// completion time.
func (fa *FileArchive) Send(ctx context.Context, summary *engine.Summary) error {
	if summary == nil {
		return fmt.Errorf("summary cannot be nil")
	}

	jsonData, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	filePath := fa.getFilePath(summary)
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write archive file: %w", err)
	}
	if err := os.Rename(tmp, filePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write archive file: %w", err)
	}
	return nil
}

// ListRecent reads the newest archived summaries.
func (fa *FileArchive) ListRecent(ctx context.Context, limit int) ([]*engine.Summary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	entries, err := os.ReadDir(fa.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if len(names) > limit {
		names = names[:limit]
	}

	out := make([]*engine.Summary, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(fa.dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		var summary engine.Summary
		if err := json.Unmarshal(data, &summary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", name, err)
		}
		out = append(out, &summary)
	}
	return out, nil
}

// getFilePath returns the archive path for a summary
func (fa *FileArchive) getFilePath(summary *engine.Summary) string {
	stamp := summary.CompletedAt.UTC().Format("20060102T150405.000000000")
	return filepath.Join(fa.dir, fmt.Sprintf("%s-%s.json", stamp, summary.SessionID))
}
