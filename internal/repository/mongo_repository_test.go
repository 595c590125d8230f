package repository

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/go_cart/pricing-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupTestMongo(t *testing.T) (*MongoRepository, func()) {
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	repo := NewMongoRepository(db)
	require.NoError(t, repo.CreateIndexes(ctx))

	cleanup := func() {
		_ = db.Client().Disconnect(ctx)
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func TestGetCart_NotFound(t *testing.T) {
	repo, cleanup := setupTestMongo(t)
	defer cleanup()

	cart, err := repo.GetCart(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrCartNotFound)
	assert.Nil(t, cart)
}

func TestAddItem_NewCartKeepsInsertionOrder(t *testing.T) {
	repo, cleanup := setupTestMongo(t)
	defer cleanup()

	ctx := context.Background()
	userID := "user123"
	require.NoError(t, repo.AddItem(ctx, userID, domain.CartItem{ProductID: 5, Quantity: 3}))
	require.NoError(t, repo.AddItem(ctx, userID, domain.CartItem{ProductID: 2, Quantity: 1}))

	cart, err := repo.GetCart(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, userID, cart.UserID)
	require.Len(t, cart.Items, 2)
	assert.Equal(t, int64(5), cart.Items[0].ProductID)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.Equal(t, int64(2), cart.Items[1].ProductID)
	assert.False(t, cart.CreatedAt.IsZero())
}

func TestAddItem_ExistingItemSetsQuantity(t *testing.T) {
	repo, cleanup := setupTestMongo(t)
	defer cleanup()

	ctx := context.Background()
	userID := "user123"
	require.NoError(t, repo.AddItem(ctx, userID, domain.CartItem{ProductID: 1, Quantity: 2}))
	require.NoError(t, repo.AddItem(ctx, userID, domain.CartItem{ProductID: 1, Quantity: 5}))

	cart, err := repo.GetCart(ctx, userID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 5, cart.Items[0].Quantity)
}

func TestUpdateItemQuantity(t *testing.T) {
	repo, cleanup := setupTestMongo(t)
	defer cleanup()

	ctx := context.Background()
	userID := "user123"
	require.NoError(t, repo.AddItem(ctx, userID, domain.CartItem{ProductID: 1, Quantity: 2}))

	require.NoError(t, repo.UpdateItemQuantity(ctx, userID, 1, 10))
	cart, err := repo.GetCart(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 10, cart.Items[0].Quantity)

	err = repo.UpdateItemQuantity(ctx, userID, 42, 1)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestRemoveItem(t *testing.T) {
	repo, cleanup := setupTestMongo(t)
	defer cleanup()

	ctx := context.Background()
	userID := "user123"
	require.NoError(t, repo.AddItem(ctx, userID, domain.CartItem{ProductID: 1, Quantity: 2}))
	require.NoError(t, repo.AddItem(ctx, userID, domain.CartItem{ProductID: 2, Quantity: 3}))

	require.NoError(t, repo.RemoveItem(ctx, userID, 1))

	cart, err := repo.GetCart(ctx, userID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, int64(2), cart.Items[0].ProductID)

	assert.ErrorIs(t, repo.RemoveItem(ctx, userID, 1), ErrItemNotFound)
}

func TestDeleteCart(t *testing.T) {
	repo, cleanup := setupTestMongo(t)
	defer cleanup()

	ctx := context.Background()
	userID := "user123"
	require.NoError(t, repo.AddItem(ctx, userID, domain.CartItem{ProductID: 1, Quantity: 2}))

	require.NoError(t, repo.DeleteCart(ctx, userID))

	_, err := repo.GetCart(ctx, userID)
	assert.ErrorIs(t, err, ErrCartNotFound)
	assert.ErrorIs(t, repo.DeleteCart(ctx, userID), ErrCartNotFound)
}

func TestMongoContextCancellation(t *testing.T) {
	repo, cleanup := setupTestMongo(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Nanosecond)
	defer cancel()

	time.Sleep(10 * time.Millisecond)

	_, err := repo.GetCart(ctx, "user123")
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.Contains(t, err.Error(), "context")
}
