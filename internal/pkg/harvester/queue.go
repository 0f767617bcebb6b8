package harvester

import (
	"fmt"

	"github.com/beeker1121/goque"
)

// warcQueue is the durable hand-off between the proxy's file-rotation
// timer and the background WARC-processing worker: a goque.Queue surviving
// a crash between "file finished rotating" and "file processed", the
// disk-backed analogue of sfm-utils's in-memory queue.Queue.
type warcQueue struct {
	q *goque.Queue
}

func openWARCQueue(dir string) (*warcQueue, error) {
	q, err := goque.OpenQueue(dir)
	if err != nil {
		return nil, fmt.Errorf("opening warc processing queue: %w", err)
	}
	return &warcQueue{q: q}, nil
}

func (w *warcQueue) enqueue(path string) error {
	_, err := w.q.EnqueueString(path)
	return err
}

// dequeue returns the next path and true, or "", false if the queue is
// currently empty.
func (w *warcQueue) dequeue() (string, bool) {
	item, err := w.q.Dequeue()
	if err != nil {
		return "", false
	}
	return item.ToString(), true
}

func (w *warcQueue) length() uint64 {
	return w.q.Length()
}

func (w *warcQueue) Close() error {
	return w.q.Close()
}
