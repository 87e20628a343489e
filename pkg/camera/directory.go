package camera

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Directory replays *.jpg files in name order at the configured rate.
type Directory struct {
	dir      string
	loop     bool
	interval time.Duration
	logger   *slog.Logger
}

// NewDirectory creates a directory source.
func NewDirectory(cfg Config, logger *slog.Logger) *Directory {
	return &Directory{
		dir:      cfg.Dir,
		loop:     cfg.Loop,
		interval: cfg.Interval(),
		logger:   logger.With("component", "camera.directory"),
	}
}

// Name implements Source.
func (d *Directory) Name() string {
	return "directory:" + d.dir
}

// Run implements Source. Without Loop it returns after the last file.
func (d *Directory) Run(ctx context.Context, h Handler) error {
	files, err := d.list()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("camera: no JPEG files in %s", d.dir)
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		for _, path := range files {
			data, err := os.ReadFile(path)
			if err != nil {
				d.logger.Warn("skipping unreadable frame", "path", path, "error", err)
				continue
			}
			h(jpegFrame(data, time.Now()))

			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
		if !d.loop {
			return nil
		}
	}
}

func (d *Directory) list() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("camera: read %s: %w", d.dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg":
			files = append(files, filepath.Join(d.dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Verify Directory implements Source at compile time.
var _ Source = (*Directory)(nil)
