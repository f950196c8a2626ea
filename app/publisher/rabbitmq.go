package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"newsdesk/app/database"
)

const routingKey = "items.admitted"

// RabbitMQ fans admitted items out to a message exchange so downstream
// consumers (rendering, notification) pick them up without polling the
// database.
type RabbitMQ struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewRabbitMQ(url, exchange string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	slog.Info("Connected to rabbitmq", "exchange", exchange, "routing_key", routingKey)

	return &RabbitMQ{conn: conn, channel: ch, exchange: exchange}, nil
}

// itemMessage is the wire format for an admission event.
type itemMessage struct {
	Action      string    `json:"action"` // "admit" or "refresh"
	URL         string    `json:"url"`
	Section     string    `json:"section"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	Country     string    `json:"country,omitempty"`
	Topics      []string  `json:"topics,omitempty"`
	Score       float64   `json:"score"`
	PublishedAt time.Time `json:"published_at"`
	Timestamp   time.Time `json:"timestamp"`
}

// PublishAdmitted sends one admission event. Failures are the caller's to
// log; admission must never be rolled back over a publish error.
func (r *RabbitMQ) PublishAdmitted(ctx context.Context, item *database.Item, isNew bool) error {
	action := "refresh"
	if isNew {
		action = "admit"
	}

	body, err := json.Marshal(itemMessage{
		Action:      action,
		URL:         item.URL,
		Section:     item.Section,
		Title:       item.Title,
		Summary:     item.Summary,
		Country:     item.Country,
		Topics:      item.Topics,
		Score:       item.Score,
		PublishedAt: item.PublishedAt,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(ctx, r.exchange, routingKey, false, false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		})
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	slog.Debug("Published admission event", "url", item.URL, "action", action)
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
