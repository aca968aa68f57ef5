package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_CheckoutSession(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCacheWithClient(db, time.Hour)
	ctx := context.Background()

	session := CheckoutSession{PaymentURL: "https://accept.paymob.com/api/acceptance/iframes/7?payment_token=t", OrderID: "987", AmountCents: 100000, Currency: "EGP"}
	payload, err := json.Marshal(session)
	require.NoError(t, err)

	mock.ExpectGet("checkout:paymob:bk_1").RedisNil()
	mock.ExpectSet("checkout:paymob:bk_1", payload, time.Hour).SetVal("OK")
	mock.ExpectGet("checkout:paymob:bk_1").SetVal(string(payload))
	mock.ExpectDel("checkout:paymob:bk_1").SetVal(1)

	miss, err := c.GetCheckoutSession(ctx, "bk_1")
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, c.SetCheckoutSession(ctx, "bk_1", session))

	hit, err := c.GetCheckoutSession(ctx, "bk_1")
	require.NoError(t, err)
	assert.Equal(t, &session, hit)

	require.NoError(t, c.DeleteCheckoutSession(ctx, "bk_1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_GetError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCacheWithClient(db, time.Hour)

	mock.ExpectGet("checkout:paymob:bk_2").SetErr(assert.AnError)

	_, err := c.GetCheckoutSession(context.Background(), "bk_2")
	assert.ErrorIs(t, err, assert.AnError)
}
