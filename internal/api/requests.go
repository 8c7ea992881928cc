package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"coldchain-risk/internal/features"
	"coldchain-risk/internal/ml"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// maxBodyBytes bounds request bodies; a batch of a few thousand readings fits.
const maxBodyBytes = 1 << 20

var validate = validator.New()

// ReadingRequest is the body of POST /predict and one /stream message. Pointer
// fields distinguish a missing field from a zero value.
type ReadingRequest struct {
	CrateTemp       *float64 `json:"crate_temp" validate:"required"`
	ReeferTemp      *float64 `json:"reefer_temp" validate:"required"`
	Humidity        *float64 `json:"humidity" validate:"required"`
	LocationTemp    *float64 `json:"location_temp" validate:"required"`
	TransitDuration *float64 `json:"transit_duration" validate:"required"`
	CropType        *int     `json:"crop_type_encoded" validate:"required,min=0,max=3"`
}

// Reading converts a validated request.
func (r ReadingRequest) Reading() features.Reading {
	return features.Reading{
		CrateTemp:       *r.CrateTemp,
		ReeferTemp:      *r.ReeferTemp,
		Humidity:        *r.Humidity,
		LocationTemp:    *r.LocationTemp,
		TransitDuration: *r.TransitDuration,
		CropType:        features.CropType(*r.CropType),
	}
}

// NewReadingRequest builds a request from a complete reading.
func NewReadingRequest(r features.Reading) ReadingRequest {
	crop := int(r.CropType)
	return ReadingRequest{
		CrateTemp:       &r.CrateTemp,
		ReeferTemp:      &r.ReeferTemp,
		Humidity:        &r.Humidity,
		LocationTemp:    &r.LocationTemp,
		TransitDuration: &r.TransitDuration,
		CropType:        &crop,
	}
}

// BatchRequest is the body of POST /predict-batch.
type BatchRequest struct {
	DeviceID string      `json:"device_id" validate:"required,max=128"`
	Sequence [][]float64 `json:"sequence" validate:"dive,len=6"`
}

// BatchResponse echoes the device with the sequence outcome.
type BatchResponse struct {
	DeviceID string `json:"device_id"`
	ml.SequencePrediction
}

// ErrorResponse is every error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is the liveness body.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string  `json:"status"`
	Pipeline   string  `json:"pipeline"`
	RunID      string  `json:"run_id"`
	ModelAge   float64 `json:"model_age_seconds"`
	ErrorRate  float64 `json:"error_rate"`
	UptimeSecs float64 `json:"uptime_seconds"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// validationMessage flattens validator errors into one line naming the JSON fields.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := jsonFieldName(fe.StructField(), fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "len":
			msgs = append(msgs, fmt.Sprintf("%s must have %s values", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		}
	}
	return strings.Join(msgs, "; ")
}

var jsonNames = map[string]string{
	"CrateTemp":       "crate_temp",
	"ReeferTemp":      "reefer_temp",
	"Humidity":        "humidity",
	"LocationTemp":    "location_temp",
	"TransitDuration": "transit_duration",
	"CropType":        "crop_type_encoded",
	"DeviceID":        "device_id",
	"Sequence":        "sequence",
}

func jsonFieldName(structField, field string) string {
	// dive errors carry an index suffix, e.g. Sequence[3]
	base, suffix, _ := strings.Cut(structField, "[")
	if name, ok := jsonNames[base]; ok {
		if suffix != "" {
			return name + "[" + suffix
		}
		return name
	}
	return field
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
