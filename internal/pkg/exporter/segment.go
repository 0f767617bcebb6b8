package exporter

import (
	"fmt"
	"path/filepath"

	"github.com/gwu-libraries/sfm-go/internal/pkg/exporter/formats"
	"github.com/gwu-libraries/sfm-go/pkg/models"
)

// writeSegmented consumes items and writes them to <id>_NNN.<ext> files of
// at most segmentSize rows each, the Go port of BaseTable.__iter__'s
// itertools.islice-based chunking. segmentSize <= 0 means "one segment".
func writeSegmented(dir, id string, segmentSize int, items []models.IterItem, w formats.Writer, source formats.RowSource) ([]string, error) {
	if segmentSize <= 0 {
		segmentSize = len(items)
		if segmentSize == 0 {
			segmentSize = 1
		}
	}

	var paths []string
	for i := 0; i < len(items) || (i == 0 && len(items) == 0); i += segmentSize {
		end := i + segmentSize
		if end > len(items) {
			end = len(items)
		}

		segNum := i/segmentSize + 1
		name := fmt.Sprintf("%s_%03d.%s", id, segNum, w.Extension())
		path := filepath.Join(dir, name)

		if err := w.WriteSegment(path, items[i:end], source); err != nil {
			return paths, fmt.Errorf("writing segment %s: %w", path, err)
		}
		paths = append(paths, path)

		if len(items) == 0 {
			break
		}
	}
	return paths, nil
}
