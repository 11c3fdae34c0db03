package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kambio/backend/internal/domain/shared"
	"github.com/kambio/backend/internal/infrastructure/cache"
)

type MockEventHandler struct {
	mock.Mock
}

func (m *MockEventHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventHandler) EventTypes() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

type handlerTestEvent struct {
	shared.BaseDomainEvent
}

func newHandlerTestEvent() *handlerTestEvent {
	return &handlerTestEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(
			"transaction.status_changed",
			"Transaction",
			uuid.New(),
			uuid.New(),
		),
	}
}

func TestIdempotentHandler_NewEvent(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()

	mockHandler := new(MockEventHandler)
	event := newHandlerTestEvent()
	mockHandler.On("Handle", mock.Anything, event).Return(nil)

	handler := NewIdempotentHandler(mockHandler, store, zap.NewNop())

	require.NoError(t, handler.Handle(context.Background(), event))

	mockHandler.AssertExpectations(t)
	assert.Equal(t, int64(1), handler.metrics.Processed.Load())
	assert.Equal(t, int64(0), handler.metrics.Duplicate.Load())
}

func TestIdempotentHandler_Redelivery(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()

	mockHandler := new(MockEventHandler)
	event := newHandlerTestEvent()
	mockHandler.On("Handle", mock.Anything, event).Return(nil).Once()

	handler := NewIdempotentHandler(mockHandler, store, zap.NewNop())

	require.NoError(t, handler.Handle(context.Background(), event))
	require.NoError(t, handler.Handle(context.Background(), event))
	require.NoError(t, handler.Handle(context.Background(), event))

	mockHandler.AssertExpectations(t)
	assert.Equal(t, int64(1), handler.metrics.Processed.Load())
	assert.Equal(t, int64(2), handler.metrics.Duplicate.Load())
}

func TestIdempotentHandler_HandlerError(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()

	mockHandler := new(MockEventHandler)
	event := newHandlerTestEvent()
	handlerErr := errors.New("handler error")
	mockHandler.On("Handle", mock.Anything, event).Return(handlerErr)

	handler := NewIdempotentHandler(mockHandler, store, zap.NewNop())

	err := handler.Handle(context.Background(), event)
	require.ErrorIs(t, err, handlerErr)

	assert.Equal(t, int64(0), handler.metrics.Processed.Load())
	assert.Equal(t, int64(1), handler.metrics.Failed.Load())
}

func TestIdempotentHandler_StoreErrorProcessesAnyway(t *testing.T) {
	mockStore := new(MockIdempotencyStore)
	mockHandler := new(MockEventHandler)
	event := newHandlerTestEvent()

	mockStore.On("MarkProcessed", mock.Anything, event.EventID().String(), mock.Anything).
		Return(false, errors.New("store error"))
	mockHandler.On("Handle", mock.Anything, event).Return(nil)

	handler := NewIdempotentHandler(mockHandler, mockStore, zap.NewNop())

	require.NoError(t, handler.Handle(context.Background(), event))

	mockStore.AssertExpectations(t)
	mockHandler.AssertExpectations(t)
}

func TestIdempotentHandler_Disabled(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()

	mockHandler := new(MockEventHandler)
	event := newHandlerTestEvent()
	mockHandler.On("Handle", mock.Anything, event).Return(nil).Times(3)

	config := shared.DefaultIdempotencyConfig()
	config.Enabled = false

	handler := NewIdempotentHandler(mockHandler, store, zap.NewNop(),
		WithIdempotencyConfig(config),
	)

	for i := 0; i < 3; i++ {
		require.NoError(t, handler.Handle(context.Background(), event))
	}

	mockHandler.AssertExpectations(t)
	assert.Equal(t, int64(0), handler.metrics.Processed.Load())
}

func TestIdempotentHandler_EventTypes(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()

	mockHandler := new(MockEventHandler)
	expected := []string{"transaction.created", "transaction.status_changed"}
	mockHandler.On("EventTypes").Return(expected)

	handler := NewIdempotentHandler(mockHandler, store, zap.NewNop())

	assert.Equal(t, expected, handler.EventTypes())
	mockHandler.AssertExpectations(t)
}

func TestIdempotentHandler_SharedMetrics(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()

	metrics := &IdempotencyMetrics{}

	h1 := new(MockEventHandler)
	h2 := new(MockEventHandler)
	e1 := newHandlerTestEvent()
	e2 := newHandlerTestEvent()
	h1.On("Handle", mock.Anything, e1).Return(nil)
	h2.On("Handle", mock.Anything, e2).Return(nil)

	handler1 := NewIdempotentHandler(h1, store, zap.NewNop(), WithIdempotencyMetrics(metrics))
	handler2 := NewIdempotentHandler(h2, store, zap.NewNop(), WithIdempotencyMetrics(metrics))

	require.NoError(t, handler1.Handle(context.Background(), e1))
	require.NoError(t, handler2.Handle(context.Background(), e2))

	assert.Equal(t, int64(2), metrics.Processed.Load())
}

func TestIdempotentHandler_ConcurrentRedelivery(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()

	mockHandler := new(MockEventHandler)
	event := newHandlerTestEvent()
	mockHandler.On("Handle", mock.Anything, event).Return(nil).Once()

	handler := NewIdempotentHandler(mockHandler, store, zap.NewNop())

	const goroutines = 50
	errCh := make(chan error, goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			errCh <- handler.Handle(context.Background(), event)
		}()
	}
	for i := 0; i < goroutines; i++ {
		assert.NoError(t, <-errCh)
	}

	mockHandler.AssertExpectations(t)
	assert.Equal(t, int64(1), handler.metrics.Processed.Load())
	assert.Equal(t, int64(goroutines-1), handler.metrics.Duplicate.Load())
}

func TestIdempotencyMetrics_Stats(t *testing.T) {
	metrics := &IdempotencyMetrics{}
	metrics.Processed.Add(10)
	metrics.Duplicate.Add(5)
	metrics.Failed.Add(2)

	stats := metrics.Stats()
	assert.Equal(t, int64(10), stats.Processed)
	assert.Equal(t, int64(5), stats.Duplicate)
	assert.Equal(t, int64(2), stats.Failed)
}
