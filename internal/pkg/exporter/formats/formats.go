// Package formats implements the tabular/line-oriented export writers
// sfmutils/exporter.py builds via petl/xlsxwriter: csv, tsv, html, xlsx,
// json (line-oriented), json_full, and dehydrate (id-only).
package formats

import (
	"github.com/gwu-libraries/sfm-go/pkg/models"
)

// RowSource renders an IterItem stream into rows for a specific format.
// Header/Row/IDField let the segmenting writer in segment.go stay
// format-agnostic, mirroring BaseTable's abstract _header_row/_row/id_field.
type RowSource interface {
	Header() []string
	Row(item models.IterItem) []string
	IDField() string
}

// Writer renders a batch of items to an output file for one export segment.
type Writer interface {
	// Extension is the file suffix (without the leading dot) used when
	// naming segment files: <id>_NNN.<ext>.
	Extension() string
	WriteSegment(path string, items []models.IterItem, source RowSource) error
}

// ByName resolves one of the seven export_formats entries by name.
func ByName(name string) (Writer, RowSource, bool) {
	switch name {
	case "csv":
		return csvWriter{sep: ','}, defaultTable{}, true
	case "tsv":
		return csvWriter{sep: '\t'}, defaultTable{}, true
	case "html":
		return htmlWriter{}, defaultTable{}, true
	case "xlsx":
		return xlsxWriter{}, defaultTable{}, true
	case "json":
		return lineJSONWriter{}, defaultTable{}, true
	case "json_full":
		return fullJSONWriter{}, defaultTable{}, true
	case "dehydrate":
		return dehydrateWriter{}, defaultTable{}, true
	default:
		return nil, nil, false
	}
}

// defaultTable is the one RowSource this repo ships: the id/type/date/url
// columns of each item. The raw item payload is not included as a column.
type defaultTable struct{}

func (defaultTable) Header() []string { return []string{"id", "type", "date", "url"} }

func (defaultTable) Row(item models.IterItem) []string {
	return []string{item.ID, item.Type, item.Date.Format("2006-01-02T15:04:05Z"), item.URL}
}

func (defaultTable) IDField() string { return "id" }
