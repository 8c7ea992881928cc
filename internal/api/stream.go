package api

import (
	"net/http"
	"time"

	"coldchain-risk/internal/ml"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	streamMaxMessage = 4096
	streamIdle       = 2 * time.Minute
	streamWriteWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin:      func(r *http.Request) bool { return true },
}

// StreamUpdate answers every reading received on /stream. Until a full window
// has arrived only Buffered and Needed are set.
type StreamUpdate struct {
	Buffered          int        `json:"buffered"`
	Needed            int        `json:"needed"`
	WindowProbability *float64   `json:"window_probability,omitempty"`
	WindowPrediction  *int       `json:"window_prediction,omitempty"`
	TotalWindows      int        `json:"total_windows"`
	FinalDecision     ml.Verdict `json:"final_decision,omitempty"`
	Error             string     `json:"error,omitempty"`
}

// streamSession is the per-connection sliding buffer and running window scores.
type streamSession struct {
	windowLen int
	buf       [][]float64
	probs     []float64
}

func (ss *streamSession) push(row []float64) [][]float64 {
	ss.buf = append(ss.buf, row)
	if len(ss.buf) > ss.windowLen {
		ss.buf = ss.buf[len(ss.buf)-ss.windowLen:]
	}
	if len(ss.buf) < ss.windowLen {
		return nil
	}
	window := make([][]float64, ss.windowLen)
	copy(window, ss.buf)
	return window
}

func (ss *streamSession) update() StreamUpdate {
	u := StreamUpdate{
		Buffered:     len(ss.buf),
		Needed:       ss.windowLen,
		TotalWindows: len(ss.probs),
	}
	if n := len(ss.probs); n > 0 {
		p := ss.probs[n-1]
		label := ml.WindowLabels([]float64{p})[0]
		u.WindowProbability = &p
		u.WindowPrediction = &label
		u.FinalDecision = ml.Decide(ss.probs)
	}
	return u
}

// handleStream scores a live feed: each message is one reading, and every
// reading after the first full window scores the newest window.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Stream upgrade failed")
		return
	}
	defer conn.Close()

	deviceID := r.URL.Query().Get("device_id")
	if m := s.opts.Metrics; m != nil {
		m.StreamConnections.Inc()
		defer m.StreamConnections.Dec()
	}
	log.Info().Str("device_id", deviceID).Msg("Stream opened")

	conn.SetReadLimit(streamMaxMessage)
	ss := &streamSession{windowLen: s.sequence.WindowLen()}
	for {
		if err := conn.SetReadDeadline(time.Now().Add(streamIdle)); err != nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("device_id", deviceID).Msg("Stream read failed")
			}
			break
		}
		if m := s.opts.Metrics; m != nil {
			m.StreamReadings.Inc()
		}

		reply := s.streamReading(ss, data)
		if err := writeStream(conn, reply); err != nil {
			log.Warn().Err(err).Str("device_id", deviceID).Msg("Stream write failed")
			break
		}
	}

	if len(ss.probs) > 0 {
		s.record(deviceID, ml.Decide(ss.probs), ss.probs)
	}
	log.Info().Str("device_id", deviceID).Int("windows", len(ss.probs)).Msg("Stream closed")
}

func (s *Server) streamReading(ss *streamSession, data []byte) StreamUpdate {
	var req ReadingRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.reject("malformed")
		u := ss.update()
		u.Error = "invalid reading: " + err.Error()
		return u
	}
	if err := validate.Struct(req); err != nil {
		s.reject("validation")
		u := ss.update()
		u.Error = validationMessage(err)
		return u
	}

	window := ss.push(req.Reading().Vector())
	if window == nil {
		return ss.update()
	}
	p, err := s.sequence.ScoreWindow(window)
	if err != nil {
		log.Error().Err(err).Msg("Stream window scoring failed")
		u := ss.update()
		u.Error = "prediction failed"
		return u
	}
	ss.probs = append(ss.probs, p)
	return ss.update()
}

func writeStream(conn *websocket.Conn, u StreamUpdate) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
