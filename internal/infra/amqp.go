package infra

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// NewAMQPConnection dials RabbitMQ with a bounded dial timeout so startup does not hang.
func NewAMQPConnection(rawURL string) (*amqp.Connection, error) {
	clean := strings.Trim(strings.TrimSpace(rawURL), "\"'")
	if clean == "" {
		return nil, fmt.Errorf("amqp url is required")
	}
	u, err := url.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("parse amqp url: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return nil, errors.New("amqp scheme must be either 'amqp://' or 'amqps://'")
	}

	conn, err := amqp.DialConfig(clean, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	return conn, nil
}
