package stats

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uilive"
	"github.com/gosuri/uitable"
)

// PrintLiveStats renders a refreshing console table of the counters above
// until stop is closed, the same shape as crawl/stats.go's printLiveStats.
func PrintLiveStats(stop <-chan struct{}, stateFn func() string) {
	writer := uilive.New()
	writer.Start()
	defer writer.Stop()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			table := uitable.New()
			table.AddRow("STATE", stateFn())
			table.AddRow("WARCs processed", humanize.Comma(int64(warcsProcessedValue())))
			table.AddRow("Items/min", fmt.Sprintf("%d", ItemRate()))
			fmt.Fprintln(writer, table)
			writer.Flush()
		}
	}
}

func warcsProcessedValue() int {
	// prometheus.Counter doesn't expose Get() directly; this mirrors the
	// teacher's pattern of re-deriving a display value from a local shadow
	// counter rather than scraping the registry in the hot path.
	return int(shadowWARCsProcessed)
}
