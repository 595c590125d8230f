package consumer

import (
	"context"
	"strings"
	"sync"

	"github.com/fjod/go_cart/pricing-service/internal/domain"
	"github.com/fjod/go_cart/pricing-service/internal/repository"
	"github.com/segmentio/kafka-go"
)

type fakeReader struct {
	m         sync.RWMutex
	messages  []kafka.Message
	committed []kafka.Message
	fetchErr  error
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.m.Lock()
	if r.fetchErr != nil {
		err := r.fetchErr
		r.m.Unlock()
		return kafka.Message{}, err
	}
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.m.Unlock()
		return msg, nil
	}
	r.m.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.m.Lock()
	defer r.m.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.m.Lock()
	defer r.m.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) committedCount() int {
	r.m.RLock()
	defer r.m.RUnlock()
	return len(r.committed)
}

type mockLedger struct {
	m              sync.RWMutex
	codes          map[string]*domain.DiscountCode
	records        map[string]domain.UsageRecord
	findErr        error
	recordErr      error
	recordErrTimes int
	recordCalls    int
}

func newMockLedger(codes ...*domain.DiscountCode) *mockLedger {
	l := &mockLedger{codes: map[string]*domain.DiscountCode{}, records: map[string]domain.UsageRecord{}}
	for _, c := range codes {
		l.codes[strings.ToLower(c.Code)] = c
	}
	return l
}

func (l *mockLedger) FindByCode(_ context.Context, code string) (*domain.DiscountCode, error) {
	l.m.RLock()
	defer l.m.RUnlock()
	if l.findErr != nil {
		return nil, l.findErr
	}
	c, ok := l.codes[strings.ToLower(code)]
	if !ok {
		return nil, repository.ErrDiscountCodeNotFound
	}
	return c, nil
}

func (l *mockLedger) Record(_ context.Context, rec domain.UsageRecord) error {
	l.m.Lock()
	defer l.m.Unlock()
	l.recordCalls++
	if l.recordErr != nil && (l.recordErrTimes == 0 || l.recordCalls <= l.recordErrTimes) {
		return l.recordErr
	}
	if _, ok := l.records[rec.OrderID]; ok {
		return domain.ErrUsageAlreadyRecorded
	}
	l.records[rec.OrderID] = rec
	return nil
}

func (l *mockLedger) record(orderID string) (domain.UsageRecord, bool) {
	l.m.RLock()
	defer l.m.RUnlock()
	rec, ok := l.records[orderID]
	return rec, ok
}

func (l *mockLedger) calls() int {
	l.m.RLock()
	defer l.m.RUnlock()
	return l.recordCalls
}

type mockPromos struct {
	m       sync.RWMutex
	deleted []string
	err     error
}

func (p *mockPromos) Delete(_ context.Context, userID string) error {
	p.m.Lock()
	defer p.m.Unlock()
	if p.err != nil {
		return p.err
	}
	p.deleted = append(p.deleted, userID)
	return nil
}

func (p *mockPromos) deletedUsers() []string {
	p.m.RLock()
	defer p.m.RUnlock()
	return append([]string(nil), p.deleted...)
}

type mockCarts struct {
	m       sync.RWMutex
	cleared []string
}

func (c *mockCarts) ClearCart(_ context.Context, userID string) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.cleared = append(c.cleared, userID)
	return nil
}

func (c *mockCarts) clearedUsers() []string {
	c.m.RLock()
	defer c.m.RUnlock()
	return append([]string(nil), c.cleared...)
}
