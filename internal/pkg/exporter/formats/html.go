package formats

import (
	"fmt"
	"html"
	"os"

	"github.com/gwu-libraries/sfm-go/pkg/models"
)

// htmlWriter wraps a <table> in the same minimal <html><head>...</head>
// prefix/suffix sfm-utils's exporter._file_fix applies to petl's html
// export.
type htmlWriter struct{}

func (htmlWriter) Extension() string { return "html" }

func (htmlWriter) WriteSegment(path string, items []models.IterItem, source RowSource) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	fmt.Fprint(f, "<html><head><meta charset=\"utf-8\"></head><body><table>\n<tr>")
	for _, h := range source.Header() {
		fmt.Fprintf(f, "<th>%s</th>", html.EscapeString(h))
	}
	fmt.Fprint(f, "</tr>\n")

	for _, item := range items {
		fmt.Fprint(f, "<tr>")
		for _, cell := range source.Row(item) {
			fmt.Fprintf(f, "<td>%s</td>", html.EscapeString(cell))
		}
		fmt.Fprint(f, "</tr>\n")
	}

	fmt.Fprint(f, "</table></body></html>\n")
	return nil
}
