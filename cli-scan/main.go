package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xf0e/autosense"
)

// Scans a single photo from disk without the http daemon, eg:
// cli-scan -in plate.jpg -out normalized.png -backends tesseract

func init() {
	zerolog.TimeFieldFormat = time.StampMilli
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli})
}

type scanOutput struct {
	autosense.ScanResult
	Registration string                     `json:"registration,omitempty"`
	Snapshot     *autosense.VehicleSnapshot `json:"snapshot,omitempty"`
}

func main() {
	var inFile, outFile, pick, manual, condition string
	flagFunc := func() {
		flag.StringVar(&inFile, "in", "", "image file to scan")
		flag.StringVar(&outFile, "out", "", "write the preprocessed image as png to this file")
		flag.StringVar(&pick, "pick", "", "candidate to resolve the registration to")
		flag.StringVar(&manual, "manual", "", "manually entered registration, overrides candidates")
		flag.StringVar(&condition, "condition", autosense.DefaultCondition, "vehicle condition for the valuation")
	}

	appConfig, err := autosense.DefaultConfigFlagsOverride(flagFunc)
	if err != nil {
		log.Fatal().Err(err).Str("component", "CLI_SCAN").Msg("invalid configuration")
	}
	if appConfig.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if inFile == "" {
		log.Fatal().Str("component", "CLI_SCAN").Msg("-in is required")
	}

	raw, err := os.ReadFile(inFile)
	if err != nil {
		log.Fatal().Err(err).Str("component", "CLI_SCAN").Str("file", inFile).Msg("could not read image")
	}

	preprocessor := autosense.DefaultPreprocessor()
	preprocessor.TargetWidth = appConfig.TargetWidth
	preprocessor.MaxPixels = appConfig.MaxPixels

	if outFile != "" {
		normalized, err := preprocessor.Preprocess(raw)
		if err != nil {
			log.Fatal().Err(err).Str("component", "CLI_SCAN").Msg("preprocessing failed")
		}
		png, err := normalized.EncodePNG()
		if err != nil {
			log.Fatal().Err(err).Str("component", "CLI_SCAN").Msg("png encoding failed")
		}
		if err := os.WriteFile(outFile, png, 0644); err != nil {
			log.Fatal().Err(err).Str("component", "CLI_SCAN").Str("file", outFile).Msg("could not write png")
		}
		log.Info().Str("component", "CLI_SCAN").Str("file", outFile).
			Int("width", normalized.Width()).Int("height", normalized.Height()).Msg("preprocessed image written")
	}

	recognizer := autosense.NewRecognizer(appConfig.PreferredBackend, appConfig.RecognizeTimeout,
		autosense.BuildBackends(appConfig)...)
	pipeline := autosense.NewScanPipeline(preprocessor, recognizer, appConfig.EnableOCR)

	result, err := pipeline.Scan(context.Background(), raw)
	if err != nil {
		log.Fatal().Err(err).Str("component", "CLI_SCAN").Msg("scan failed")
	}
	if result.Warning != "" {
		log.Warn().Str("component", "CLI_SCAN").Str("outcome", result.Outcome).Msg(result.Warning)
	}

	out := scanOutput{ScanResult: result}
	if registration, err := autosense.ResolveRegistration(result.Candidates, pick, manual); err == nil {
		snapshot := autosense.BuildSnapshot(registration, condition, time.Now())
		out.Registration = registration
		out.Snapshot = &snapshot
	} else {
		log.Info().Str("component", "CLI_SCAN").Err(err).Msg("no registration resolved")
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		log.Fatal().Err(err).Str("component", "CLI_SCAN").Msg("could not write result")
	}
}
