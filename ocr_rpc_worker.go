package autosense

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
	"github.com/streadway/amqp"
)

// LineRecognizer is what the worker needs from a local engine.
type LineRecognizer interface {
	RecognizeBytes(ctx context.Context, imgBytes []byte, args TesseractArgs) ([]RawTextLine, error)
}

// OcrRpcWorker serves RemoteBackend requests with a local engine.
type OcrRpcWorker struct {
	rabbitConfig RabbitConfig
	engine       LineRecognizer
	conn         *amqp.Connection
	channel      *amqp.Channel
	tag          string
	Done         chan error
}

func NewOcrRpcWorker(wc WorkerConfig, engine LineRecognizer) *OcrRpcWorker {
	return &OcrRpcWorker{
		rabbitConfig: wc.Rabbit,
		engine:       engine,
		// tag is based on ksuid K-Sortable Globally Unique IDs
		tag:  ksuid.New().String(),
		Done: make(chan error, 1),
	}
}

func (w *OcrRpcWorker) Run() error {

	var err error

	log.Info().Str("component", "OCR_WORKER").Str("tag", w.tag).
		Str("host", StripPasswordFromUrlString(w.rabbitConfig.AmqpURI)).
		Msg("dialing rabbitMq")

	w.conn, err = amqp.Dial(w.rabbitConfig.AmqpURI)
	if err != nil {
		log.Warn().Str("component", "OCR_WORKER").Err(err).Str("tag", w.tag).
			Msg("error connecting to rabbitMq")
		return err
	}

	go func() {
		closeErr := <-w.conn.NotifyClose(make(chan *amqp.Error, 1))
		log.Warn().Str("component", "OCR_WORKER").Str("tag", w.tag).
			Interface("reason", closeErr).Msg("connection closed")
	}()

	w.channel, err = w.conn.Channel()
	if err != nil {
		return err
	}
	// setting the prefetchCount to 1 reduces the Memory Consumption by the worker
	if err = w.channel.Qos(1, 0, true); err != nil {
		return err
	}

	if err = w.channel.ExchangeDeclare(
		w.rabbitConfig.Exchange,     // name of the exchange
		w.rabbitConfig.ExchangeType, // type
		true,                        // durable
		false,                       // delete when complete
		false,                       // internal
		false,                       // noWait
		nil,                         // arguments
	); err != nil {
		return err
	}

	// just use the routing key as the queue name, since there's no reason
	// to have a different name
	queue, err := w.channel.QueueDeclare(
		w.rabbitConfig.RoutingKey, // name of the queue
		true,                      // durable
		false,                     // delete when unused
		false,                     // exclusive
		false,                     // noWait
		nil,                       // arguments
	)
	if err != nil {
		return err
	}

	if err = w.channel.QueueBind(
		queue.Name,                // name of the queue
		w.rabbitConfig.RoutingKey, // bindingKey
		w.rabbitConfig.Exchange,   // sourceExchange
		false,                     // noWait
		nil,                       // arguments
	); err != nil {
		return err
	}

	log.Info().Str("component", "OCR_WORKER").Str("tag", w.tag).
		Str("RoutingKey", w.rabbitConfig.RoutingKey).
		Msg("Queue bound to Exchange, starting Consume")
	deliveries, err := w.channel.Consume(
		queue.Name, // name
		w.tag,      // consumerTag,
		false,      // noAck
		false,      // exclusive
		false,      // noLocal
		false,      // noWait
		nil,        // arguments
	)
	if err != nil {
		return err
	}

	go w.handle(deliveries)

	return nil
}

func (w *OcrRpcWorker) Shutdown() error {
	// will close() the deliveries channel
	if err := w.channel.Cancel(w.tag, true); err != nil {
		return fmt.Errorf("worker with tag %s cancel failed: %s", w.tag, err)
	}

	if err := w.conn.Close(); err != nil {
		return fmt.Errorf("AMQP connection with worker %s close error: %s", w.tag, err)
	}

	defer log.Info().Str("component", "OCR_WORKER").Str("tag", w.tag).Msg("Shutdown OK")

	// wait for handle() to exit
	return <-w.Done
}

func (w *OcrRpcWorker) handle(deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		log.Info().Str("component", "OCR_WORKER").
			Str("tag", w.tag).
			Int("msg_size", len(d.Body)).
			Str("CorrelationId", d.CorrelationId).
			Str("ReplyTo", d.ReplyTo).
			Msg("got delivery")

		ocrResult := w.resultForDelivery(d.Body)

		if err := w.sendRpcResponse(ocrResult, d.ReplyTo, d.CorrelationId); err != nil {
			log.Error().Err(err).Str("component", "OCR_WORKER").
				Str("tag", w.tag).Str("CorrelationId", d.CorrelationId).
				Msg("Error sending ocr result")

			// if we can't send our response, let's just abort
			w.Done <- err
			return
		}
		if err := d.Ack(false); err != nil {
			log.Warn().Str("component", "OCR_WORKER").Err(err).
				Str("tag", w.tag).Msg("Ack() was not successful")
		}
	}
	log.Info().Str("component", "OCR_WORKER").Str("tag", w.tag).
		Msg("handle: deliveries channel closed")
	w.Done <- fmt.Errorf("handle: deliveries channel closed")
}

// resultForDelivery always produces a reply, failures are reported in the
// status so the caller is not left waiting for a timeout.
func (w *OcrRpcWorker) resultForDelivery(body []byte) OcrResult {

	ocrRequest := OcrRequest{}
	if err := json.Unmarshal(body, &ocrRequest); err != nil {
		log.Error().Err(err).Str("component", "OCR_WORKER").Str("tag", w.tag).
			Msg("error unmarshalling json delivery")
		return OcrResult{Status: StatusError, Error: fmt.Sprintf("unable to unmarshal request: %v", err)}
	}

	lines, err := w.engine.RecognizeBytes(context.Background(), ocrRequest.ImgBytes, ocrRequest.Args)
	if err != nil {
		log.Error().Err(err).Str("component", "OCR_WORKER").Str("tag", w.tag).
			Str("RequestID", ocrRequest.RequestID).Msg("Error processing image")
		return OcrResult{ID: ocrRequest.RequestID, Status: StatusError, Error: err.Error()}
	}

	return OcrResult{ID: ocrRequest.RequestID, Lines: lines, Status: StatusDone}
}

func (w *OcrRpcWorker) sendRpcResponse(r OcrResult, replyTo string, correlationID string) error {

	if w.rabbitConfig.Reliable {
		if err := w.channel.Confirm(false); err != nil {
			return err
		}

		ack, nack := w.channel.NotifyConfirm(make(chan uint64, 100), make(chan uint64, 100))

		defer confirmDelivery(ack, nack)
	}

	body, err := json.Marshal(r)
	if err != nil {
		return err
	}

	if err := w.channel.Publish(
		w.rabbitConfig.Exchange, // publish to an exchange
		replyTo,                 // routing to 0 or more queues
		false,                   // mandatory
		false,                   // immediate
		amqp.Publishing{
			Headers:       amqp.Table{},
			ContentType:   "application/json",
			Body:          body,
			DeliveryMode:  amqp.Transient, // 1=non-persistent, 2=persistent
			Priority:      0,              // 0-9
			CorrelationId: correlationID,
		},
	); err != nil {
		return err
	}
	log.Info().Str("component", "OCR_WORKER").Str("CorrelationId", correlationID).
		Str("tag", w.tag).Str("replyTo", replyTo).
		Msg("sendRpcResponse succeeded")
	return nil

}
