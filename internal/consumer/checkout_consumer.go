package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_cart/pricing-service/internal/domain"
	"github.com/fjod/go_cart/pricing-service/internal/repository"
	"github.com/fjod/go_cart/pricing-service/pkg/logger"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	DefaultTopic   = "checkout-completed"
	DefaultGroupID = "pricing-service"

	defaultBackoff    = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

// CheckoutCompletedEvent is published by the checkout service once an order
// has been paid for.
type CheckoutCompletedEvent struct {
	OrderID        string       `json:"order_id"`
	CheckoutID     string       `json:"checkout_id"`
	UserID         string       `json:"user_id"`
	PromoCode      string       `json:"promo_code,omitempty"`
	DiscountAmount domain.Money `json:"discount_amount"`
	CompletedAt    time.Time    `json:"completed_at"`
}

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type UsageLedger interface {
	FindByCode(ctx context.Context, code string) (*domain.DiscountCode, error)
	Record(ctx context.Context, rec domain.UsageRecord) error
}

type PromoRemover interface {
	Delete(ctx context.Context, userID string) error
}

type CartClearer interface {
	ClearCart(ctx context.Context, userID string) error
}

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Consumer records promo usage for completed checkouts and clears the
// user's cart state afterwards.
type Consumer struct {
	reader  MessageReader
	ledger  UsageLedger
	promos  PromoRemover
	carts   CartClearer
	backoff    time.Duration
	maxBackoff time.Duration
	logger     *zap.Logger
}

func NewConsumer(cfg Config, ledger UsageLedger, promos PromoRemover, carts CartClearer, log *zap.Logger) *Consumer {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	group := cfg.GroupID
	if group == "" {
		group = DefaultGroupID
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    topic,
		GroupID:  group,
		MaxBytes: 10e6, // 10MB
	})
	return NewConsumerWithReader(reader, ledger, promos, carts, log)
}

func NewConsumerWithReader(reader MessageReader, ledger UsageLedger, promos PromoRemover, carts CartClearer, log *zap.Logger) *Consumer {
	return &Consumer{
		reader:     reader,
		ledger:     ledger,
		promos:     promos,
		carts:      carts,
		backoff:    defaultBackoff,
		maxBackoff: defaultMaxBackoff,
		logger:     log,
	}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Error("error closing kafka reader", zap.Error(err))
	}
}

func (c *Consumer) processMessage(ctx context.Context) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		c.logger.Error("error fetching message", zap.Error(err))
		c.sleep(ctx, c.backoff)
		return
	}

	log := c.logger.With(zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset))

	var event CheckoutCompletedEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		log.Error("error parsing message, skipping", zap.Error(err))
		c.commit(ctx, log, m)
		return
	}

	// Storage failures are retried until they clear: committing would lose the
	// usage record for good. Anything else cannot succeed on redelivery.
	delay := c.backoff
	for attempt := 1; ; attempt++ {
		err = c.Handle(ctx, event)
		if err == nil || !errors.Is(err, domain.ErrStorageUnavailable) {
			break
		}
		log.Warn("storage unavailable, retrying checkout event",
			zap.String("order_id", event.OrderID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))
		if !c.sleep(ctx, delay) {
			return
		}
		delay = min(2*delay, c.maxBackoff)
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error("failed to handle checkout event, skipping",
			zap.String("order_id", event.OrderID), zap.Error(err))
	}

	c.commit(ctx, log, m)
}

// Handle applies one checkout event. Recording usage is idempotent per
// order id, so redelivered events are safe.
func (c *Consumer) Handle(ctx context.Context, event CheckoutCompletedEvent) error {
	if event.OrderID == "" || event.UserID == "" {
		return fmt.Errorf("checkout event missing order_id or user_id")
	}
	log := logger.WithContext(ctx, c.logger).With(
		zap.String("order_id", event.OrderID),
		zap.String("user_id", event.UserID),
	)

	if code := strings.TrimSpace(event.PromoCode); code != "" {
		if err := c.recordUsage(ctx, log, event, code); err != nil {
			return err
		}
	}

	if err := c.promos.Delete(ctx, event.UserID); err != nil {
		return fmt.Errorf("delete applied promo: %w", err)
	}
	if err := c.carts.ClearCart(ctx, event.UserID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}

	log.Info("checkout processed")
	return nil
}

func (c *Consumer) recordUsage(ctx context.Context, log *zap.Logger, event CheckoutCompletedEvent, code string) error {
	discount, err := c.ledger.FindByCode(ctx, code)
	if errors.Is(err, repository.ErrDiscountCodeNotFound) {
		log.Warn("promo code from checkout no longer exists", zap.String("code", code))
		return nil
	}
	if err != nil {
		return domain.StorageError("find discount code", err)
	}

	usedAt := event.CompletedAt
	if usedAt.IsZero() {
		usedAt = time.Now()
	}

	err = c.ledger.Record(ctx, domain.UsageRecord{
		ID:             uuid.New(),
		DiscountCodeID: discount.ID,
		UserID:         event.UserID,
		OrderID:        event.OrderID,
		DiscountAmount: event.DiscountAmount,
		UsedAt:         usedAt.UTC(),
	})
	switch {
	case errors.Is(err, domain.ErrUsageAlreadyRecorded):
		log.Info("usage already recorded, skipping", zap.String("code", discount.Code))
	case errors.Is(err, repository.ErrDiscountCodeNotFound):
		log.Warn("promo code removed before usage was recorded", zap.String("code", discount.Code))
	case err != nil:
		return domain.StorageError("record usage", err)
	default:
		log.Info("promo usage recorded", zap.String("code", discount.Code),
			zap.Stringer("discount_amount", event.DiscountAmount))
	}
	return nil
}

func (c *Consumer) commit(ctx context.Context, log *zap.Logger, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		log.Error("error committing message", zap.Error(err))
	}
}

// sleep waits d or until ctx is done; it reports whether the full wait elapsed.
func (c *Consumer) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
