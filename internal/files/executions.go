package files

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/tidefall/go-kline-archive/internal/kline"
)

var executionsHeader = []string{"sequence", "side", "price", "size", "time"}

// WriteExecutionsCSV writes raw executions to w with a header row.
// Timestamps serialize as RFC 3339 with nanoseconds, in UTC.
func WriteExecutionsCSV(w io.Writer, executions []kline.Execution) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(executionsHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range executions {
		record := []string{
			strconv.FormatInt(e.Sequence, 10),
			e.Side,
			strconv.FormatFloat(e.Price, 'f', -1, 64),
			strconv.FormatFloat(e.Size, 'f', -1, 64),
			e.Time.UTC().Format(time.RFC3339Nano),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadExecutionsCSV reads executions from r, expecting the header
// WriteExecutionsCSV produces.
func ReadExecutionsCSV(r io.Reader) ([]kline.Execution, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(executionsHeader)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i, name := range executionsHeader {
		if header[i] != name {
			return nil, fmt.Errorf("unexpected csv header column %d: got %q, want %q", i, header[i], name)
		}
	}

	var executions []kline.Execution
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record: %w", err)
		}

		e := kline.Execution{Side: record[1]}
		if e.Sequence, err = strconv.ParseInt(record[0], 10, 64); err != nil {
			return nil, fmt.Errorf("invalid sequence %q: %w", record[0], err)
		}
		if e.Price, err = strconv.ParseFloat(record[2], 64); err != nil {
			return nil, fmt.Errorf("invalid price %q: %w", record[2], err)
		}
		if e.Size, err = strconv.ParseFloat(record[3], 64); err != nil {
			return nil, fmt.Errorf("invalid size %q: %w", record[3], err)
		}
		if e.Time, err = time.Parse(time.RFC3339Nano, record[4]); err != nil {
			return nil, fmt.Errorf("invalid time %q: %w", record[4], err)
		}
		e.Time = e.Time.UTC()
		executions = append(executions, e)
	}
	return executions, nil
}

// WriteExecutionsCSVFile writes executions to a CSV file at path.
func WriteExecutionsCSVFile(path string, executions []kline.Execution) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteExecutionsCSV(f, executions); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadExecutionsCSVFile reads executions from a CSV file at path.
func ReadExecutionsCSVFile(path string) ([]kline.Execution, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadExecutionsCSV(f)
}
