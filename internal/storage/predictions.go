package storage

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// PredictionRecord is one served prediction, kept for auditing shipments.
type PredictionRecord struct {
	DeviceID      string    `json:"device_id"`
	Pipeline      string    `json:"pipeline"`
	RunID         string    `json:"run_id"`
	Timestamp     time.Time `json:"timestamp"`
	Decision      string    `json:"decision"`
	Probabilities []float64 `json:"probabilities"`
}

// StorePrediction appends a prediction to the device's history.
func (s *Store) StorePrediction(record PredictionRecord) error {
	if record.DeviceID == "" {
		return fmt.Errorf("prediction record needs a device id")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal prediction: %w", err)
	}
	return s.put(predictionsBucket, record.DeviceID, record.Timestamp, data)
}

// GetPredictions returns a device's predictions with start <= timestamp <= end,
// oldest first.
func (s *Store) GetPredictions(deviceID string, start, end time.Time) ([]PredictionRecord, error) {
	var records []PredictionRecord
	err := s.scanRange(predictionsBucket, deviceID, start, end, func(v []byte) error {
		var r PredictionRecord
		if err := json.Unmarshal(v, &r); err != nil {
			return nil // skip malformed records
		}
		records = append(records, r)
		return nil
	})
	return records, err
}
