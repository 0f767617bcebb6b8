package formats

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gwu-libraries/sfm-go/pkg/models"
)

// lineJSONWriter writes one JSON object per line, matching
// to_lineoriented_json.
type lineJSONWriter struct{}

func (lineJSONWriter) Extension() string { return "json" }

func (lineJSONWriter) WriteSegment(path string, items []models.IterItem, source RowSource) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	header := source.Header()
	for _, item := range items {
		row := source.Row(item)
		obj := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(row) {
				obj[h] = row[i]
			}
		}
		data, err := json.Marshal(obj)
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		if _, err := w.WriteString("\n"); err != nil {
			return err
		}
	}
	return nil
}

// fullJSONWriter writes the full raw item payload per line, matching
// _full_json_export / _chunk_json's islice-based chunking (chunking itself
// is handled by the caller's segmenting writer, see segment.go).
type fullJSONWriter struct{}

func (fullJSONWriter) Extension() string { return "json" }

func (fullJSONWriter) WriteSegment(path string, items []models.IterItem, _ RowSource) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	for _, item := range items {
		data, err := json.Marshal(item.Item)
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		if _, err := w.WriteString("\n"); err != nil {
			return err
		}
	}
	return nil
}

// dehydrateWriter writes one id per line, matching petl.totext(...,
// template="{{id}}\n").
type dehydrateWriter struct{}

func (dehydrateWriter) Extension() string { return "txt" }

func (dehydrateWriter) WriteSegment(path string, items []models.IterItem, _ RowSource) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	for _, item := range items {
		if _, err := w.WriteString(item.ID + "\n"); err != nil {
			return err
		}
	}
	return nil
}
