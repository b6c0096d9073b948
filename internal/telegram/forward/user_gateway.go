package forward

import (
	"context"
	"fmt"
	"math/rand/v2"

	"relay_bot/internal/telegram/models"

	"github.com/gotd/td/tg"
)

// PeerResolver 将标准化频道 ID 解析为 MTProto InputPeer
type PeerResolver interface {
	InputPeer(ctx context.Context, channelID int64) (tg.InputPeerClass, error)
}

// forwarder *tg.Client 中用到的转发方法
type forwarder interface {
	MessagesForwardMessages(ctx context.Context, request *tg.MessagesForwardMessagesRequest) (tg.UpdatesClass, error)
}

// UserGateway 通过用户会话（MTProto）转发
type UserGateway struct {
	api     forwarder
	peers   PeerResolver
	target  int64
	limiter *RateLimiter
	policy  retryPolicy
}

// NewUserGateway 创建用户会话转发网关
func NewUserGateway(api *tg.Client, peers PeerResolver, target int64, limiter *RateLimiter) *UserGateway {
	return newUserGateway(api, peers, target, limiter)
}

func newUserGateway(api forwarder, peers PeerResolver, target int64, limiter *RateLimiter) *UserGateway {
	return &UserGateway{api: api, peers: peers, target: target, limiter: limiter, policy: userRetryPolicy}
}

// ForwardOne 转发单条消息
func (g *UserGateway) ForwardOne(ctx context.Context, from *models.Channel, messageID int) error {
	return g.ForwardBatch(ctx, from, []int{messageID})
}

// ForwardBatch 批量转发，同一请求内的媒体组在目标频道保持分组
func (g *UserGateway) ForwardBatch(ctx context.Context, from *models.Channel, messageIDs []int) error {
	if len(messageIDs) == 0 {
		return nil
	}

	fromPeer, err := g.peers.InputPeer(ctx, from.ID)
	if err != nil {
		return fmt.Errorf("failed to resolve source peer %d: %w", from.ID, err)
	}
	toPeer, err := g.peers.InputPeer(ctx, g.target)
	if err != nil {
		return fmt.Errorf("failed to resolve target peer %d: %w", g.target, err)
	}

	err = forwardWithRetry(ctx, g.limiter, g.policy, from.ID, func(ctx context.Context) error {
		randomIDs := make([]int64, len(messageIDs))
		for i := range randomIDs {
			randomIDs[i] = rand.Int64()
		}
		_, err := g.api.MessagesForwardMessages(ctx, &tg.MessagesForwardMessagesRequest{
			FromPeer: fromPeer,
			ID:       messageIDs,
			RandomID: randomIDs,
			ToPeer:   toPeer,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("forward messages failed: %w", err)
	}
	return nil
}
