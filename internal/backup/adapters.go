package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// ComponentAdapter backs up one named component into destDir, returning the
// number of bytes written. Production adapters wrap a real database dump,
// a Redis RDB snapshot, etc.; the default adapters below are suitable for
// development and the contract test harness.
type ComponentAdapter interface {
	Backup(ctx context.Context, destDir string) (int64, error)
	Restore(ctx context.Context, srcDir string) error
}

// fileAdapter is a stub adapter that writes a single marker file
// representing the component's backed-up state. Real deployments replace
// this per component (pg_dump for "database", a Redis BGSAVE for "redis",
// a config-store export for "configurations", log-shipping for "logs",
// a document-store export for "documents").
type fileAdapter struct {
	name string
}

func newFileAdapter(name string) *fileAdapter { return &fileAdapter{name: name} }

func (a *fileAdapter) Backup(ctx context.Context, destDir string) (int64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	path := filepath.Join(destDir, a.name+".snapshot")
	content := []byte(fmt.Sprintf("component=%s\n", a.name))
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return 0, err
	}
	return int64(len(content)), nil
}

func (a *fileAdapter) Restore(ctx context.Context, srcDir string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	path := filepath.Join(srcDir, a.name+".snapshot")
	_, err := os.Stat(path)
	return err
}

// DefaultAdapters returns the stub adapter set keyed by component name,
// covering every recognized component.
func DefaultAdapters() map[string]ComponentAdapter {
	adapters := make(map[string]ComponentAdapter, len(recognizedComponents))
	for _, name := range recognizedComponents {
		adapters[name] = newFileAdapter(name)
	}
	return adapters
}
