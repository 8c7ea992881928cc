package api

import (
	"errors"
	"net/http"
	"time"

	"coldchain-risk/internal/common"
	"coldchain-risk/internal/features"
	"coldchain-risk/internal/metrics"
	"coldchain-risk/internal/ml"
	"coldchain-risk/internal/storage"

	"github.com/rs/zerolog/log"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	msg := common.TabularLivenessMessage
	if s.pipeline == common.PipelineSequence {
		msg = common.SequenceLivenessMessage
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := s.info()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Pipeline:   info.Pipeline,
		RunID:      info.RunID,
		ModelAge:   info.AgeSeconds,
		ErrorRate:  metrics.GetErrorRate(s.opts.Gatherer),
		UptimeSecs: time.Since(s.started).Seconds(),
	})
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.info())
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req ReadingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.reject("malformed")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		s.reject("validation")
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	pred, err := s.tabular.Predict(req.Reading())
	if err != nil {
		log.Error().Err(err).Msg("Tabular prediction failed")
		writeError(w, http.StatusInternalServerError, "prediction failed")
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

func (s *Server) handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.reject("malformed")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Sequence) < s.sequence.WindowLen() {
		s.reject("too_short")
		writeError(w, http.StatusBadRequest, common.ErrMsgSequenceTooShort)
		return
	}
	if err := validate.Struct(req); err != nil {
		s.reject("validation")
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	pred, err := s.sequence.PredictStream(req.Sequence)
	if err != nil {
		var shapeErr *features.ShapeError
		switch {
		case errors.Is(err, features.ErrSequenceTooShort):
			writeError(w, http.StatusBadRequest, common.ErrMsgSequenceTooShort)
		case errors.As(err, &shapeErr):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Error().Err(err).Str("device_id", req.DeviceID).Msg("Sequence prediction failed")
			writeError(w, http.StatusInternalServerError, "prediction failed")
		}
		return
	}

	s.record(req.DeviceID, pred.FinalDecision, pred.WindowProbabilities)
	writeJSON(w, http.StatusOK, BatchResponse{DeviceID: req.DeviceID, SequencePrediction: pred})
}

// record appends an outcome to the prediction log. Failures are logged, not
// returned; the caller already has its answer.
func (s *Server) record(deviceID string, decision ml.Verdict, probs []float64) {
	if s.opts.Predictions == nil || deviceID == "" {
		return
	}
	info := s.info()
	rec := storage.PredictionRecord{
		DeviceID:      deviceID,
		Pipeline:      info.Pipeline,
		RunID:         info.RunID,
		Timestamp:     time.Now().UTC(),
		Decision:      string(decision),
		Probabilities: probs,
	}
	if err := s.opts.Predictions.StorePrediction(rec); err != nil {
		log.Warn().Err(err).Str("device_id", deviceID).Msg("Failed to record prediction")
	}
}
