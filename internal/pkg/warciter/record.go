// Package warciter streams IterItems out of the `response` records of a WARC
// file. It is the Go port of sfmutils/warc_iter.py's BaseWarcIter. The
// low-level record header parsing below borrows its struct-tag-driven field
// naming from _examples/zenless-lab-gwarc's WARCRecord type without
// importing that module directly - see DESIGN.md for why.
package warciter

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// record is one parsed WARC record header block plus its raw content bytes.
type record struct {
	Type          string
	TargetURI     string
	RecordID      string
	Date          time.Time
	ContentLength int64
	Content       []byte
}

const timeLayout = "2006-01-02T15:04:05Z"

// reader streams records out of an io.Reader containing one or more
// (optionally gzip-per-record-compressed) WARC records back to back, the
// streaming layer gwarc's single-record Unmarshal does not provide.
type reader struct {
	br *bufio.Reader
}

func newReader(r io.Reader) (*reader, error) {
	return &reader{br: bufio.NewReader(r)}, nil
}

// next returns the next record, or io.EOF once the stream is exhausted.
// Each gzip member (warcprox/warc writers emit one member per record) is
// transparently decompressed.
func (rr *reader) next() (*record, error) {
	peek, err := rr.br.Peek(2)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("peeking next record: %w", err)
	}

	if peek[0] == 0x1f && peek[1] == 0x8b {
		gz, err := gzip.NewReader(rr.br)
		if err != nil {
			return nil, fmt.Errorf("opening gzip member: %w", err)
		}
		// Stop at the end of this member instead of running on into the next.
		gz.Multistream(false)
		rec, err := parseRecord(bufio.NewReader(gz))
		if err != nil {
			return nil, err
		}
		// Consume the rest of the member, trailer included, so the next call
		// starts at the following member.
		if _, err := io.Copy(io.Discard, gz); err != nil {
			return nil, fmt.Errorf("finishing gzip member: %w", err)
		}
		return rec, nil
	}

	return parseRecord(rr.br)
}

func parseRecord(r *bufio.Reader) (*record, error) {
	versionLine, err := r.ReadString('\n')
	if err != nil {
		return nil, io.EOF
	}
	if !strings.HasPrefix(versionLine, "WARC/") {
		return nil, fmt.Errorf("unexpected record start: %q", versionLine)
	}

	headers := map[string]string{}
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("reading header line: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		headers[key] = value
	}

	contentLength, _ := strconv.ParseInt(headers["Content-Length"], 10, 64)
	content := make([]byte, contentLength)
	if contentLength > 0 {
		if _, err := io.ReadFull(r, content); err != nil {
			return nil, fmt.Errorf("reading record content: %w", err)
		}
	}

	// Trailing CRLFCRLF between records.
	_, _ = r.Discard(4)

	date, _ := time.Parse(timeLayout, headers["WARC-Date"])

	recType := headers["WARC-Type"]

	return &record{
		Type:          recType,
		TargetURI:     headers["WARC-Target-URI"],
		RecordID:      headers["WARC-Record-ID"],
		Date:          date,
		ContentLength: contentLength,
		Content:       content,
	}, nil
}
