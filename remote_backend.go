package autosense

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	uuid "github.com/nu7hatch/gouuid"
	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"
)

// factorForMessageAccept bounds the backlog: more than factor * consumers
// queued messages and the remote backend reports itself unavailable.
const factorForMessageAccept uint = 2

type queueStats struct {
	NumMessages  uint `json:"messages"`
	NumConsumers uint `json:"consumers"`
}

func (q queueStats) acceptsWork() bool {
	return q.NumConsumers > 0 && q.NumMessages < q.NumConsumers*factorForMessageAccept
}

// RemoteBackend hands recognition to an ocr worker over AMQP request/reply.
type RemoteBackend struct {
	rabbitConfig RabbitConfig
	args         TesseractArgs
}

func NewRemoteBackend(rc RabbitConfig, args TesseractArgs) *RemoteBackend {
	return &RemoteBackend{
		rabbitConfig: rc,
		args:         args,
	}
}

func (c *RemoteBackend) Type() BackendType {
	return BackendRemote
}

// Available asks the rabbitMQ management API whether a worker is consuming
// the request queue and the backlog is acceptable.
func (c *RemoteBackend) Available(ctx context.Context) bool {
	body, err := url2bytes(ctx, c.rabbitConfig.QueueStatsURL(), c.rabbitConfig.ProbeTimeout)
	if err != nil {
		log.Debug().Err(err).Str("component", "OCR_REMOTE").Msg("can't get queue stats")
		return false
	}
	stats := queueStats{}
	if err := json.Unmarshal(body, &stats); err != nil {
		log.Warn().Err(err).Str("component", "OCR_REMOTE").Str("body", string(body)).
			Msg("error unmarshaling queue stats")
		return false
	}
	return stats.acceptsWork()
}

func (c *RemoteBackend) Recognize(ctx context.Context, img NormalizedImage) ([]RawTextLine, error) {
	pngBytes, err := img.EncodePNG()
	if err != nil {
		return nil, err
	}

	correlationUUIDRaw, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	correlationID := correlationUUIDRaw.String()

	log.Info().Str("component", "OCR_REMOTE").
		Str("host", StripPasswordFromUrlString(c.rabbitConfig.AmqpURI)).
		Str("CorrelationId", correlationID).Msg("dialing rabbitMq")
	connection, err := amqp.Dial(c.rabbitConfig.AmqpURI)
	if err != nil {
		return nil, err
	}
	defer connection.Close()

	channel, err := connection.Channel()
	if err != nil {
		return nil, err
	}

	if err := channel.ExchangeDeclare(
		c.rabbitConfig.Exchange,     // name
		c.rabbitConfig.ExchangeType, // type
		true,                        // durable
		false,                       // auto-deleted
		false,                       // internal
		false,                       // noWait
		nil,                         // arguments
	); err != nil {
		return nil, err
	}

	callbackQueue, deliveries, err := c.subscribeCallbackQueue(channel, correlationID)
	if err != nil {
		return nil, err
	}

	// Reliable publisher confirms require confirm.select support from the
	// connection.
	if c.rabbitConfig.Reliable {
		if err := channel.Confirm(false); err != nil {
			return nil, err
		}
		ack, nack := channel.NotifyConfirm(make(chan uint64, 1), make(chan uint64, 1))
		defer confirmDelivery(ack, nack)
	}

	ocrRequestJSON, err := json.Marshal(OcrRequest{
		RequestID: correlationID,
		ImgBytes:  pngBytes,
		Args:      c.args,
	})
	if err != nil {
		return nil, err
	}

	if err = channel.Publish(
		c.rabbitConfig.Exchange, // publish to an exchange
		c.rabbitConfig.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			Headers:       amqp.Table{},
			ContentType:   "application/json",
			Body:          ocrRequestJSON,
			DeliveryMode:  amqp.Transient, // 1=non-persistent, 2=persistent
			Priority:      0,              // 0-9
			ReplyTo:       callbackQueue.Name,
			CorrelationId: correlationID,
		},
	); err != nil {
		return nil, err
	}

	ocrResult, err := awaitReply(ctx, deliveries, correlationID, c.rabbitConfig.ResponseTimeout)
	if err != nil {
		return nil, err
	}
	if ocrResult.Status != StatusDone {
		return nil, fmt.Errorf("worker reported %s: %s", ocrResult.Status, ocrResult.Error)
	}
	return ocrResult.Lines, nil
}

func (c *RemoteBackend) subscribeCallbackQueue(channel *amqp.Channel, correlationID string) (amqp.Queue, <-chan amqp.Delivery, error) {

	// declare a callback queue where we will receive rpc responses
	callbackQueue, err := channel.QueueDeclare(
		"",    // name -- let rabbit generate a random one
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // noWait
		nil,   // arguments
	)
	if err != nil {
		return amqp.Queue{}, nil, err
	}

	// bind the callback queue to an exchange + routing key
	if err = channel.QueueBind(
		callbackQueue.Name,      // name of the queue
		callbackQueue.Name,      // bindingKey
		c.rabbitConfig.Exchange, // sourceExchange
		false,                   // noWait
		nil,                     // arguments
	); err != nil {
		return amqp.Queue{}, nil, err
	}

	log.Debug().Str("component", "OCR_REMOTE").Str("callbackQueue", callbackQueue.Name).
		Str("CorrelationId", correlationID).Msg("callback queue bound")

	deliveries, err := channel.Consume(
		callbackQueue.Name, // name
		correlationID,      // consumerTag,
		true,               // noAck
		true,               // exclusive
		false,              // noLocal
		false,              // noWait
		nil,                // arguments
	)
	if err != nil {
		return amqp.Queue{}, nil, err
	}

	return callbackQueue, deliveries, nil

}

// awaitReply returns the first delivery matching the correlation id.
func awaitReply(ctx context.Context, deliveries <-chan amqp.Delivery, correlationID string, timeout time.Duration) (OcrResult, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return OcrResult{}, fmt.Errorf("callback queue closed before reply %s", correlationID)
			}
			if d.CorrelationId != correlationID {
				log.Debug().Str("component", "OCR_REMOTE").Str("CorrelationId", d.CorrelationId).
					Msg("ignoring delivery")
				continue
			}
			ocrResult := OcrResult{}
			if err := json.Unmarshal(d.Body, &ocrResult); err != nil {
				return OcrResult{}, fmt.Errorf("unable to unmarshal worker reply: %w", err)
			}
			return ocrResult, nil
		case <-timer.C:
			return OcrResult{}, fmt.Errorf("timeout waiting for RPC response %s", correlationID)
		case <-ctx.Done():
			return OcrResult{}, ctx.Err()
		}
	}
}

func confirmDelivery(ack, nack chan uint64) {
	select {
	case tag := <-ack:
		log.Debug().Str("component", "OCR_REMOTE").Uint64("tag", tag).Msg("confirmed delivery")
	case tag := <-nack:
		log.Warn().Str("component", "OCR_REMOTE").Uint64("tag", tag).Msg("failed to confirm delivery")
	case <-time.After(5 * time.Second):
		log.Warn().Str("component", "OCR_REMOTE").Msg("timeout waiting for delivery confirmation")
	}
}
