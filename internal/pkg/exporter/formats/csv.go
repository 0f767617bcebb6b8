package formats

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/gwu-libraries/sfm-go/pkg/models"
)

// csvWriter renders rows with encoding/csv - stdlib is the right tool here;
// no third-party CSV writer appears anywhere in the retrieval pack, and the
// stdlib package already matches petl's csv/tsv writer semantics closely
// enough (see DESIGN.md).
type csvWriter struct {
	sep rune
}

func (c csvWriter) Extension() string {
	if c.sep == '\t' {
		return "tsv"
	}
	return "csv"
}

func (c csvWriter) WriteSegment(path string, items []models.IterItem, source RowSource) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = c.sep
	defer w.Flush()

	if err := w.Write(source.Header()); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, item := range items {
		if err := w.Write(source.Row(item)); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}
	return w.Error()
}
