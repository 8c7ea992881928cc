package synth

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"coldchain-risk/internal/features"
)

// LabelColumn is the target column of the tabular dataset file.
const LabelColumn = "spoilage_risk"

// WriteCSVFile writes samples to path, replacing any existing file.
func WriteCSVFile(path string, samples []Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset file %s: %w", path, err)
	}
	if err := WriteCSV(f, samples); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteCSV writes the feature columns and label. Dropped-out values are empty cells.
func WriteCSV(w io.Writer, samples []Sample) error {
	cw := csv.NewWriter(w)
	header := append(append([]string(nil), features.Names...), LabelColumn)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(header))
	for _, s := range samples {
		for i, v := range s.Vector() {
			record[i] = formatCell(v, i == features.IdxCropType)
		}
		record[len(record)-1] = strconv.Itoa(s.Label)
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSVFile loads a dataset written by WriteCSVFile.
func ReadCSVFile(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses a dataset. Columns are matched by header name; empty cells
// in feature columns become NaN.
func ReadCSV(r io.Reader) ([]Sample, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	indices := make(map[string]int, len(header))
	for i, col := range header {
		indices[col] = i
	}
	cols := make([]int, 0, features.NumFeatures+1)
	for _, name := range append(append([]string(nil), features.Names...), LabelColumn) {
		idx, ok := indices[name]
		if !ok {
			return nil, fmt.Errorf("dataset is missing column %q", name)
		}
		cols = append(cols, idx)
	}

	var samples []Sample
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		vec := make([]float64, features.NumFeatures)
		for i := 0; i < features.NumFeatures; i++ {
			v, err := parseCell(record[cols[i]])
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, features.Names[i], err)
			}
			vec[i] = v
		}
		crop := vec[features.IdxCropType]
		if math.IsNaN(crop) {
			return nil, fmt.Errorf("line %d: crop type is required", line)
		}
		if crop != math.Trunc(crop) || crop < 0 || crop >= features.NumCropTypes {
			return nil, fmt.Errorf("line %d: invalid crop type %q", line, record[cols[features.IdxCropType]])
		}
		reading, err := features.ReadingFromVector(vec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		label, err := strconv.Atoi(record[cols[features.NumFeatures]])
		if err != nil || (label != 0 && label != 1) {
			return nil, fmt.Errorf("line %d: invalid label %q", line, record[cols[features.NumFeatures]])
		}
		samples = append(samples, Sample{Reading: reading, Label: label})
	}
	return samples, nil
}

func formatCell(v float64, integer bool) string {
	if math.IsNaN(v) {
		return ""
	}
	if integer {
		return strconv.Itoa(int(v))
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseCell(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
