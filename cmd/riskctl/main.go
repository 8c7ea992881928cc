package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"coldchain-risk/internal/api"
	"coldchain-risk/internal/client"
	"coldchain-risk/internal/features"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const usage = `usage: riskctl [-addr URL] [-timeout D] <command> [flags]

commands:
  health          service status and loaded run
  info            loaded model metadata
  predict         score one reading against a tabular service
  predict-batch   score a reading stream against a sequence service
`

func main() {
	var (
		addr    = flag.String("addr", "http://localhost:8000", "Service base URL")
		timeout = flag.Duration("timeout", 10*time.Second, "Request timeout")
	)
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := client.New(*addr, *timeout)
	cmd, args := flag.Arg(0), flag.Args()[1:]

	var (
		out any
		err error
	)
	switch cmd {
	case "health":
		out, err = c.Health(ctx)
	case "info":
		out, err = c.ModelInfo(ctx)
	case "predict":
		var r features.Reading
		if r, err = parseReading(args); err == nil {
			out, err = c.PredictRisk(ctx, r)
		}
	case "predict-batch":
		var req api.BatchRequest
		if req, err = parseBatch(args); err == nil {
			out, err = c.PredictBatch(ctx, req)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			log.Error().Int("status", apiErr.Status).Msg(apiErr.Message)
		} else {
			log.Error().Err(err).Str("command", cmd).Msg("request failed")
		}
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal().Err(err).Msg("encode response")
	}
}

func parseReading(args []string) (features.Reading, error) {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	var (
		crateTemp    = fs.Float64("crate-temp", 0, "Crate temperature (°C)")
		reeferTemp   = fs.Float64("reefer-temp", 0, "Reefer temperature (°C)")
		humidity     = fs.Float64("humidity", 0, "Relative humidity (%)")
		locationTemp = fs.Float64("location-temp", 0, "Outside temperature (°C)")
		transit      = fs.Float64("transit", 0, "Transit duration (hours)")
		crop         = fs.String("crop", "0", "Crop code 0-3 or name (lettuce, tomato, mango, spinach)")
	)
	if err := fs.Parse(args); err != nil {
		return features.Reading{}, err
	}

	code, err := parseCrop(*crop)
	if err != nil {
		return features.Reading{}, err
	}
	return features.Reading{
		CrateTemp:       *crateTemp,
		ReeferTemp:      *reeferTemp,
		Humidity:        *humidity,
		LocationTemp:    *locationTemp,
		TransitDuration: *transit,
		CropType:        code,
	}, nil
}

func parseCrop(s string) (features.CropType, error) {
	if n, err := strconv.Atoi(s); err == nil {
		code := features.CropType(n)
		if !code.Valid() {
			return 0, fmt.Errorf("crop code %d out of range", n)
		}
		return code, nil
	}
	return features.ParseCrop(s)
}

// parseBatch reads either a {"device_id", "sequence"} object or a bare
// array of six-value rows.
func parseBatch(args []string) (api.BatchRequest, error) {
	fs := flag.NewFlagSet("predict-batch", flag.ContinueOnError)
	var (
		file   = fs.String("file", "-", "JSON file with the reading stream, - for stdin")
		device = fs.String("device", "", "Device ID recorded with the verdict")
	)
	if err := fs.Parse(args); err != nil {
		return api.BatchRequest{}, err
	}

	var (
		data []byte
		err  error
	)
	if *file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(*file)
	}
	if err != nil {
		return api.BatchRequest{}, fmt.Errorf("read %s: %w", *file, err)
	}

	var req api.BatchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		var rows [][]float64
		if err2 := json.Unmarshal(data, &rows); err2 != nil {
			return api.BatchRequest{}, fmt.Errorf("parse %s: %w", *file, err)
		}
		req.Sequence = rows
	}
	if *device != "" {
		req.DeviceID = *device
	}
	if req.DeviceID == "" {
		return api.BatchRequest{}, errors.New("device ID required: set -device or device_id in the file")
	}
	return req, nil
}
