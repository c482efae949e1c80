package main

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xf0e/autosense"
)

// This assumes that there is a rabbit mq running and tesseract is on the PATH.
// Start cli-httpd with -backends remote and send it a scan request.

func init() {
	zerolog.TimeFieldFormat = time.StampMilli
	// Default level is info, unless debug flag is present
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

const reconnectDelay = 5 * time.Second

func main() {
	workerConfig, err := autosense.DefaultConfigFlagsWorkerOverride(autosense.NoOpFlagFunction())
	if err != nil {
		log.Panic().Str("component", "OCR_WORKER").
			Msgf("error getting arguments: %v ", err)
	}
	if workerConfig.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	engine := autosense.NewTesseractBackend(workerConfig.Tesseract)
	engine.SaveFiles = workerConfig.SaveFiles
	// tsv output carries line confidences back to the http daemon
	engine.Scored = true

	// infinite loop, since sometimes worker <-> rabbitmq connection
	// gets broken.
	for {
		log.Info().
			Str("component", "OCR_WORKER").
			Msg("Creating new OCR Worker")

		ocrWorker := autosense.NewOcrRpcWorker(workerConfig, engine)
		if err := ocrWorker.Run(); err != nil {
			log.Error().Str("component", "OCR_WORKER").Err(err).
				Dur("retry_in", reconnectDelay).Msg("Error running worker")
			time.Sleep(reconnectDelay)
			continue
		}

		// this happens when connection is closed
		err = <-ocrWorker.Done
		log.Error().
			Str("component", "OCR_WORKER").Err(err).
			Msg("OCR Worker failed with error")
		time.Sleep(reconnectDelay)
	}
}
