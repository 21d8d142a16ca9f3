package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Disk stores images in a local directory served under URLPrefix.
type Disk struct {
	Dir       string
	URLPrefix string
	now       func() time.Time
}

// NewDisk creates the directory if needed.
func NewDisk(dir, urlPrefix string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Disk{Dir: dir, URLPrefix: strings.TrimRight(urlPrefix, "/"), now: time.Now}, nil
}

// Save writes data to a timestamp-prefixed file and returns its URL path.
func (d *Disk) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		base = "image"
	}
	file := strconv.FormatInt(d.now().UnixMilli(), 10) + "-" + base
	if err := os.WriteFile(filepath.Join(d.Dir, file), data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return d.URLPrefix + "/" + file, nil
}
