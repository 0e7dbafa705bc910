package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"proxygen/internal/logger"
	"proxygen/internal/publishers"
)

// Publisher writes the rendered config to "path". "{name}" in the path is
// replaced by the output name.
type Publisher struct{}

func (p *Publisher) Publish(ctx context.Context, out *publishers.Output, config map[string]interface{}) error {
	tmpl, _ := config["path"].(string)
	if tmpl == "" {
		return fmt.Errorf("file publisher requires path")
	}
	path := publishers.ExpandPath(tmpl, out)

	payload, err := publishers.Render(out, config)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".proxygen-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	logger.Log.Debugf("File: wrote %d bytes to %s", len(payload), path)
	return nil
}

func init() {
	publishers.Register("file", func() publishers.Publisher { return &Publisher{} })
}
