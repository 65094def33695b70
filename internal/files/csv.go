// Package files moves kline series in and out of flat files: CSV for
// interchange with other tools, gob for fast local snapshots.
package files

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/tidefall/go-kline-archive/internal/models"
)

// csvHeader matches the canonical schema column order.
var csvHeader = []string{"exchange", "symbol", "interval", "open_time", "open", "high", "low", "close", "volume"}

// WriteCSV writes the klines to w with a header row. Gap rows serialize
// their OHLCV fields as empty cells.
func WriteCSV(w io.Writer, klines []models.Kline) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, k := range klines {
		record := []string{
			k.Exchange,
			k.Symbol,
			strconv.FormatInt(k.Interval, 10),
			strconv.FormatInt(k.OpenTime, 10),
			formatOptional(k.Open),
			formatOptional(k.High),
			formatOptional(k.Low),
			formatOptional(k.Close),
			formatOptional(k.Volume),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV reads klines from r, expecting the header WriteCSV produces.
func ReadCSV(r io.Reader) ([]models.Kline, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i, name := range csvHeader {
		if header[i] != name {
			return nil, fmt.Errorf("unexpected csv header column %d: got %q, want %q", i, header[i], name)
		}
	}

	var klines []models.Kline
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record: %w", err)
		}

		k := models.Kline{Exchange: record[0], Symbol: record[1]}
		if k.Interval, err = strconv.ParseInt(record[2], 10, 64); err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", record[2], err)
		}
		if k.OpenTime, err = strconv.ParseInt(record[3], 10, 64); err != nil {
			return nil, fmt.Errorf("invalid open_time %q: %w", record[3], err)
		}
		for i, dst := range []**float64{&k.Open, &k.High, &k.Low, &k.Close, &k.Volume} {
			v, err := parseOptional(record[4+i])
			if err != nil {
				return nil, fmt.Errorf("invalid %s %q: %w", csvHeader[4+i], record[4+i], err)
			}
			*dst = v
		}
		klines = append(klines, k)
	}
	return klines, nil
}

// WriteCSVFile writes the klines to a CSV file at path.
func WriteCSVFile(path string, klines []models.Kline) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, klines); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadCSVFile reads klines from a CSV file at path.
func ReadCSVFile(path string) ([]models.Kline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func parseOptional(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
