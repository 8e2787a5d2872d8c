package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/trezcool/clubhub/core"
	"github.com/trezcool/clubhub/core/portal"
)

// CreditPublisher pushes every appended ledger entry to a durable RabbitMQ queue.
// The connection is opened lazily and reopened after a failure.
type CreditPublisher struct {
	url    string
	queue  string
	logger core.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

var _ portal.CreditPublisher = (*CreditPublisher)(nil) // interface compliance check

func NewCreditPublisher(conf *core.Config, logger core.Logger) *CreditPublisher {
	return &CreditPublisher{
		url:    conf.AMQP.URL,
		queue:  conf.AMQP.Queue,
		logger: logger,
	}
}

func (p *CreditPublisher) PublishCredit(ctx context.Context, tx portal.CreditTransaction) error {
	body, err := json.Marshal(tx)
	if err != nil {
		return errors.Wrap(err, "encoding credit transaction")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return core.Unavailable(err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    tx.ID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.logger.Warn(fmt.Sprintf("rabbitmq: publish failed: %v", err), err)
		p.reset()
		return core.Unavailable(err)
	}
	return nil
}

// Close releases the broker connection.
func (p *CreditPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn, p.ch = nil, nil
	return err
}

// channel returns the open channel, dialing and declaring the queue if needed. p.mu must be held.
func (p *CreditPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, errors.Wrap(err, "rabbitmq dial")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "rabbitmq channel")
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "rabbitmq queue declare")
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *CreditPublisher) reset() {
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}
