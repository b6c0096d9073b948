package forward

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"relay_bot/internal/telegram/models"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var instantPolicy = retryPolicy{
	shouldRetry: func(err error) bool { return !errors.Is(err, bot.ErrorForbidden) },
	delay:       func(error, int, int64) time.Duration { return time.Millisecond },
}

func TestForwardWithRetry(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := forwardWithRetry(context.Background(), NewRateLimiter(100), instantPolicy, 1, func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("temporary")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := forwardWithRetry(context.Background(), NewRateLimiter(100), instantPolicy, 1, func(context.Context) error {
			calls++
			return errors.New("temporary")
		})
		require.Error(t, err)
		assert.Equal(t, maxForwardAttempts, calls)
	})

	t.Run("non retryable stops immediately", func(t *testing.T) {
		calls := 0
		err := forwardWithRetry(context.Background(), NewRateLimiter(100), instantPolicy, 1, func(context.Context) error {
			calls++
			return fmt.Errorf("%w, not admin", bot.ErrorForbidden)
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := forwardWithRetry(ctx, NewRateLimiter(1), instantPolicy, 1, func(context.Context) error {
			return nil
		})
		require.Error(t, err)
	})
}

type fakeBotAPI struct {
	single  []*bot.ForwardMessageParams
	batch   []*bot.ForwardMessagesParams
	errs    []error
	callIdx int
}

func (f *fakeBotAPI) nextErr() error {
	if f.callIdx >= len(f.errs) {
		return nil
	}
	err := f.errs[f.callIdx]
	f.callIdx++
	return err
}

func (f *fakeBotAPI) ForwardMessage(_ context.Context, params *bot.ForwardMessageParams) (*botModels.Message, error) {
	f.single = append(f.single, params)
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return &botModels.Message{ID: 1}, nil
}

func (f *fakeBotAPI) ForwardMessages(_ context.Context, params *bot.ForwardMessagesParams) ([]botModels.MessageID, error) {
	f.batch = append(f.batch, params)
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return []botModels.MessageID{{ID: 1}}, nil
}

func TestBotGateway(t *testing.T) {
	source := &models.Channel{ID: -1001}

	t.Run("forward one", func(t *testing.T) {
		api := &fakeBotAPI{}
		gw := newBotGateway(api, -1002, NewRateLimiter(100))

		require.NoError(t, gw.ForwardOne(context.Background(), source, 101))
		require.Len(t, api.single, 1)
		assert.Equal(t, int64(-1002), api.single[0].ChatID)
		assert.Equal(t, int64(-1001), api.single[0].FromChatID)
		assert.Equal(t, 101, api.single[0].MessageID)
	})

	t.Run("forward batch", func(t *testing.T) {
		api := &fakeBotAPI{}
		gw := newBotGateway(api, -1002, NewRateLimiter(100))

		require.NoError(t, gw.ForwardBatch(context.Background(), source, []int{201, 202, 203}))
		require.Len(t, api.batch, 1)
		assert.Equal(t, []int{201, 202, 203}, api.batch[0].MessageIDs)
	})
}

type fakeForwarder struct {
	requests []*tg.MessagesForwardMessagesRequest
	errs     []error
}

func (f *fakeForwarder) MessagesForwardMessages(_ context.Context, req *tg.MessagesForwardMessagesRequest) (tg.UpdatesClass, error) {
	f.requests = append(f.requests, req)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return &tg.Updates{}, nil
}

type fakePeers struct {
	missing int64
}

func (f fakePeers) InputPeer(_ context.Context, channelID int64) (tg.InputPeerClass, error) {
	if channelID == f.missing {
		return nil, errors.New("peer not found")
	}
	plain, _ := models.UnmarkChannelID(channelID)
	return &tg.InputPeerChannel{ChannelID: plain, AccessHash: 42}, nil
}

func TestUserGateway(t *testing.T) {
	source := &models.Channel{ID: -1002651608009}

	t.Run("batch forward keeps ids and random ids", func(t *testing.T) {
		api := &fakeForwarder{}
		gw := newUserGateway(api, fakePeers{}, -1000000000077, NewRateLimiter(100))

		require.NoError(t, gw.ForwardBatch(context.Background(), source, []int{201, 202, 203}))
		require.Len(t, api.requests, 1)

		req := api.requests[0]
		assert.Equal(t, []int{201, 202, 203}, req.ID)
		assert.Len(t, req.RandomID, 3)
		from, ok := req.FromPeer.(*tg.InputPeerChannel)
		require.True(t, ok)
		assert.Equal(t, int64(2651608009), from.ChannelID)
		to, ok := req.ToPeer.(*tg.InputPeerChannel)
		require.True(t, ok)
		assert.Equal(t, int64(77), to.ChannelID)
	})

	t.Run("single forward", func(t *testing.T) {
		api := &fakeForwarder{}
		gw := newUserGateway(api, fakePeers{}, -1000000000077, NewRateLimiter(100))

		require.NoError(t, gw.ForwardOne(context.Background(), source, 101))
		require.Len(t, api.requests, 1)
		assert.Equal(t, []int{101}, api.requests[0].ID)
	})

	t.Run("unresolved target", func(t *testing.T) {
		api := &fakeForwarder{}
		gw := newUserGateway(api, fakePeers{missing: -1000000000077}, -1000000000077, NewRateLimiter(100))

		require.Error(t, gw.ForwardOne(context.Background(), source, 101))
		assert.Empty(t, api.requests)
	})
}
