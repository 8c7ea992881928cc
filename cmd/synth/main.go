package main

import (
	"flag"
	"fmt"
	"os"

	"coldchain-risk/internal/cfg"
	"coldchain-risk/internal/synth"

	"github.com/rs/zerolog/log"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	var (
		samples  = flag.Int("n", c.Training.Samples, "Number of rows to generate")
		seed     = flag.Uint64("seed", c.Training.Seed, "Random seed")
		flipRate = flag.Float64("flip", c.Training.FlipRate, "Fraction of labels to flip")
		outPath  = flag.String("out", c.DatasetPath, "Output CSV path, - for stdout")
	)
	flag.Parse()
	cfg.SetupLogging(c.LogLevel, c.LogFormat)

	if *samples < 1 {
		log.Fatal().Int("n", *samples).Msg("sample count must be positive")
	}
	if *flipRate < 0 || *flipRate >= 0.5 {
		log.Fatal().Float64("flip", *flipRate).Msg("flip rate must be in [0, 0.5)")
	}

	data := synth.GenerateTabular(*samples, *seed)
	flipped := synth.FlipLabels(data, *flipRate, synth.NewRand(*seed+1))

	if *outPath == "-" {
		err = synth.WriteCSV(os.Stdout, data)
	} else {
		err = synth.WriteCSVFile(*outPath, data)
	}
	if err != nil {
		log.Fatal().Err(err).Str("path", *outPath).Msg("failed to write dataset")
	}

	log.Info().
		Int("rows", len(data)).
		Int("flipped", len(flipped)).
		Str("positive_rate", fmt.Sprintf("%.3f", synth.PositiveRate(data))).
		Str("path", *outPath).
		Msg("Dataset written")
}
