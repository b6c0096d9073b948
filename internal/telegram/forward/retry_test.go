package forward

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"relay_bot/internal/telegram/models"

	"github.com/go-telegram/bot"
	"github.com/gotd/td/tgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 与真实频道 ID 相同：jitter = (2651608009 % 5 + 1) * 200ms = 1s
var newsChannel = &models.Channel{ID: -1002651608009}

// recordDelays 保留策略的分类与等待计算，但实际只等待 1ms
func recordDelays(base retryPolicy, delays *[]time.Duration) retryPolicy {
	return retryPolicy{
		shouldRetry: base.shouldRetry,
		delay: func(err error, attempt int, key int64) time.Duration {
			*delays = append(*delays, base.delay(err, attempt, key))
			return time.Millisecond
		},
	}
}

func TestBotGatewayRetryClassification(t *testing.T) {
	tests := []struct {
		name       string
		errs       []error
		wantCalls  int
		wantDelays []time.Duration
		wantErr    bool
	}{
		{
			name:       "flood limited, delivered after retry_after",
			errs:       []error{&bot.TooManyRequestsError{Message: "Too Many Requests: retry after 4", RetryAfter: 4}},
			wantCalls:  2,
			wantDelays: []time.Duration{5 * time.Second},
		},
		{
			name:       "flood limited without retry_after uses default wait",
			errs:       []error{&bot.TooManyRequestsError{Message: "Too Many Requests"}},
			wantCalls:  2,
			wantDelays: []time.Duration{defaultForwardRetryDelay + time.Second},
		},
		{
			name:      "post deleted in source",
			errs:      []error{fmt.Errorf("%w, message to forward not found", bot.ErrorBadRequest)},
			wantCalls: 1,
			wantErr:   true,
		},
		{
			name:      "bot removed from target channel",
			errs:      []error{fmt.Errorf("%w, bot is not a member of the channel chat", bot.ErrorForbidden)},
			wantCalls: 1,
			wantErr:   true,
		},
		{
			name:      "token revoked",
			errs:      []error{fmt.Errorf("%w, token revoked", bot.ErrorUnauthorized)},
			wantCalls: 1,
			wantErr:   true,
		},
		{
			name:       "gateway hiccup then delivered",
			errs:       []error{errors.New("502 bad gateway")},
			wantCalls:  2,
			wantDelays: []time.Duration{time.Second},
		},
		{
			name:       "network down for every attempt",
			errs:       []error{errors.New("dial tcp: i/o timeout"), errors.New("dial tcp: i/o timeout"), errors.New("dial tcp: i/o timeout")},
			wantCalls:  maxForwardAttempts,
			wantDelays: []time.Duration{time.Second, 2 * time.Second},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var delays []time.Duration
			api := &fakeBotAPI{errs: tt.errs}
			gw := newBotGateway(api, -1000000000077, NewRateLimiter(100))
			gw.policy = recordDelays(gw.policy, &delays)

			err := gw.ForwardBatch(context.Background(), newsChannel, []int{301, 302})
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Len(t, api.batch, tt.wantCalls)
			assert.Equal(t, tt.wantDelays, delays)
		})
	}
}

func TestBotGatewayTargetMigration(t *testing.T) {
	t.Run("follows the new id and keeps it", func(t *testing.T) {
		api := &fakeBotAPI{errs: []error{&bot.MigrateError{Message: "Bad Request: group chat was upgraded to a supergroup chat", MigrateToChatID: -1003848752937}}}
		gw := newBotGateway(api, -4001, NewRateLimiter(100))

		require.NoError(t, gw.ForwardOne(context.Background(), newsChannel, 10))
		require.NoError(t, gw.ForwardOne(context.Background(), newsChannel, 11))

		require.Len(t, api.single, 3)
		assert.Equal(t, int64(-4001), api.single[0].ChatID)
		assert.Equal(t, int64(-1003848752937), api.single[1].ChatID)
		assert.Equal(t, int64(-1003848752937), api.single[2].ChatID, "later forwards must use the migrated id")
	})

	t.Run("migrated target still failing", func(t *testing.T) {
		api := &fakeBotAPI{errs: []error{
			&bot.MigrateError{Message: "upgraded", MigrateToChatID: -1005006007008},
			fmt.Errorf("%w, not enough rights", bot.ErrorForbidden),
		}}
		gw := newBotGateway(api, -4001, NewRateLimiter(100))

		err := gw.ForwardOne(context.Background(), newsChannel, 10)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "after migration")
		assert.Len(t, api.single, 2)
	})

	t.Run("migration without new id is a plain failure", func(t *testing.T) {
		api := &fakeBotAPI{errs: []error{&bot.MigrateError{Message: "upgraded"}}}
		gw := newBotGateway(api, -4001, NewRateLimiter(100))

		require.Error(t, gw.ForwardOne(context.Background(), newsChannel, 10))
		assert.Len(t, api.single, 1)
	})
}

func TestUserGatewayRetriesOnlyFloodWait(t *testing.T) {
	tests := []struct {
		name       string
		errs       []error
		wantCalls  int
		wantDelays []time.Duration
		wantErr    bool
	}{
		{
			name:       "flood wait then delivered",
			errs:       []error{tgerr.New(420, "FLOOD_WAIT_3")},
			wantCalls:  2,
			wantDelays: []time.Duration{4 * time.Second},
		},
		{
			name:       "flood wait on every attempt",
			errs:       []error{tgerr.New(420, "FLOOD_WAIT_7"), tgerr.New(420, "FLOOD_WAIT_7"), tgerr.New(420, "FLOOD_WAIT_7")},
			wantCalls:  maxForwardAttempts,
			wantDelays: []time.Duration{8 * time.Second, 8 * time.Second},
			wantErr:    true,
		},
		{
			name:      "forwarding restricted in source",
			errs:      []error{tgerr.New(400, "CHAT_FORWARDS_RESTRICTED")},
			wantCalls: 1,
			wantErr:   true,
		},
		{
			name:      "connection reset may have delivered",
			errs:      []error{errors.New("connection reset by peer")},
			wantCalls: 1,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var delays []time.Duration
			api := &fakeForwarder{errs: tt.errs}
			gw := newUserGateway(api, fakePeers{}, -1000000000077, NewRateLimiter(100))
			gw.policy = recordDelays(gw.policy, &delays)

			err := gw.ForwardBatch(context.Background(), newsChannel, []int{301, 302})
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Len(t, api.requests, tt.wantCalls)
			assert.Equal(t, tt.wantDelays, delays)
		})
	}
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: -3, want: time.Second},
		{attempt: 1, want: time.Second},
		{attempt: 3, want: 4 * time.Second},
		{attempt: 5, want: 16 * time.Second},
		{attempt: 6, want: maxForwardExponentialBackoff},
		{attempt: 64, want: maxForwardExponentialBackoff},
	}

	for _, tt := range tests {
		if got := exponentialBackoff(tt.attempt); got != tt.want {
			t.Fatalf("attempt %d: expected %v, got %v", tt.attempt, tt.want, got)
		}
	}
}
