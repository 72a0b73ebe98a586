package logfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"canlog/internal/telemetry"
)

// FileSource replays a log file. Every call to Messages reopens the file,
// so each pass observes the same bytes from the first message on.
type FileSource struct {
	path   string
	format Format
}

// Open returns a source over the log at path. An empty format name is
// detected from the extension.
func Open(path, format string) (*FileSource, error) {
	if format == "" {
		format = DetectFormat(path)
	}
	f, err := LookupFormat(format)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	return &FileSource{path: path, format: f}, nil
}

// Path returns the log file path.
func (s *FileSource) Path() string { return s.path }

// Format returns the name of the format used to decode the log.
func (s *FileSource) Format() string { return s.format.Spec().Name }

func (s *FileSource) Messages(ctx context.Context) iter.Seq2[telemetry.DecodedMessage, error] {
	return func(yield func(telemetry.DecodedMessage, error) bool) {
		f, err := os.Open(s.path)
		if err != nil {
			yield(telemetry.DecodedMessage{}, fmt.Errorf("open log: %w", err))
			return
		}
		defer f.Close()

		r, release, err := decompress(f)
		if err != nil {
			yield(telemetry.DecodedMessage{}, err)
			return
		}
		defer release()

		dec := s.format.NewDecoder(r)
		for n := 0; ; n++ {
			if err := ctx.Err(); err != nil {
				yield(telemetry.DecodedMessage{}, err)
				return
			}
			m, err := dec.Decode()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(telemetry.DecodedMessage{}, fmt.Errorf("decode %s message %d: %w", s.Format(), n, err))
				return
			}
			if !yield(m, nil) {
				return
			}
		}
	}
}

// ── Writer ─────────────────────────────────────────────────

// Writer encodes messages into a log file.
type Writer struct {
	f   *os.File
	buf *bufio.Writer
	zw  io.WriteCloser
	enc Encoder
}

// Create truncates path and returns a Writer for it.
func Create(path, format string, c Compression) (*Writer, error) {
	if format == "" {
		format = DetectFormat(path)
	}
	fm, err := LookupFormat(format)
	if err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create log: %w", err)
	}
	buf := bufio.NewWriter(f)
	zw, err := compress(buf, c)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Writer{f: f, buf: buf, zw: zw, enc: fm.NewEncoder(zw)}, nil
}

// Write appends one message.
func (w *Writer) Write(m telemetry.DecodedMessage) error {
	return w.enc.Encode(m)
}

// Close flushes the compression frame and the file buffer.
func (w *Writer) Close() error {
	if err := w.zw.Close(); err != nil {
		w.f.Close()
		return fmt.Errorf("close compressor: %w", err)
	}
	if err := w.buf.Flush(); err != nil {
		w.f.Close()
		return fmt.Errorf("flush log: %w", err)
	}
	return w.f.Close()
}

// Copy writes one full pass of src into w and returns the message count.
func Copy(ctx context.Context, w *Writer, src telemetry.Source) (int, error) {
	n := 0
	for m, err := range src.Messages(ctx) {
		if err != nil {
			return n, err
		}
		if err := w.Write(m); err != nil {
			return n, fmt.Errorf("write message %d: %w", n, err)
		}
		n++
	}
	return n, nil
}
