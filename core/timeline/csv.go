package timeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
)

var csvHeader = []string{"char", "start_time", "end_time", "notes", "speaker"}

// CSVSink appends events to a comma-delimited file, flushing every row as it
// is written.
type CSVSink struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// OpenCSV opens path for appending. The header row is written when the file
// does not exist yet or is empty.
func OpenCSV(path string) (*CSVSink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open timeline file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat timeline file: %w", err)
	}

	sink := &CSVSink{file: file, writer: csv.NewWriter(file)}
	if info.Size() == 0 {
		if err := sink.writeRow(csvHeader); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write timeline header: %w", err)
		}
	}

	return sink, nil
}

func (s *CSVSink) Name() string { return s.file.Name() }

func (s *CSVSink) Append(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeRow([]string{
		event.Unit,
		formatSeconds(event.Start),
		formatSeconds(event.End),
		event.Note,
		string(event.Speaker),
	})
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writer.Flush()
	return errors.Join(s.writer.Error(), s.file.Close())
}

func (s *CSVSink) writeRow(row []string) error {
	if err := s.writer.Write(row); err != nil {
		return err
	}
	s.writer.Flush()
	return s.writer.Error()
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}
