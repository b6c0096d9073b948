package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"relay_bot/internal/config"
	"relay_bot/internal/logger"
	"relay_bot/internal/telegram/models"

	"github.com/gotd/td/telegram/query"
	"github.com/gotd/td/tg"
)

// channelPeer 已解析的频道
type channelPeer struct {
	channel *tg.Channel
	input   *tg.InputPeerChannel
}

// Peers 频道 peer 缓存（标准化 ID -> access hash）
type Peers struct {
	api *tg.Client

	mu         sync.RWMutex
	byID       map[int64]channelPeer
	byUsername map[string]int64
}

// NewPeers 创建 peer 缓存
func NewPeers(api *tg.Client) *Peers {
	return &Peers{
		api:        api,
		byID:       make(map[int64]channelPeer),
		byUsername: make(map[string]int64),
	}
}

// LoadDialogs 遍历会话列表填充缓存，返回会话数量
func (p *Peers) LoadDialogs(ctx context.Context) (int, error) {
	iter := query.GetDialogs(p.api).BatchSize(100).Iter()

	count := 0
	for iter.Next(ctx) {
		count++
		elem := iter.Value()
		input, ok := elem.Peer.(*tg.InputPeerChannel)
		if !ok {
			continue
		}
		ch, ok := elem.Entities.Channel(input.ChannelID)
		if !ok {
			continue
		}
		p.remember(ch)
	}
	if err := iter.Err(); err != nil {
		return count, fmt.Errorf("failed to load dialogs: %w", err)
	}
	return count, nil
}

// ResolveChannel 将配置中的频道引用解析为频道信息
// 支持数字 ID（Bot API 形式或 MTProto 形式）、@username 与 t.me 链接
func (p *Peers) ResolveChannel(ctx context.Context, ref string) (*models.Channel, error) {
	key := config.NormalizeKey(ref)
	if key == "" {
		return nil, fmt.Errorf("empty channel reference")
	}

	if id, err := strconv.ParseInt(key, 10, 64); err == nil {
		peer, ok := p.lookupID(canonicalID(id))
		if !ok {
			return nil, fmt.Errorf("channel %s not found in dialogs: not a member or invalid ID", ref)
		}
		return toChannel(ref, peer), nil
	}

	if id, ok := p.lookupUsername(key); ok {
		peer, _ := p.lookupID(id)
		return toChannel(ref, peer), nil
	}

	resolved, err := p.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: key})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve username %s: %w", key, err)
	}
	for _, chat := range resolved.Chats {
		ch, ok := chat.(*tg.Channel)
		if !ok {
			continue
		}
		peer := p.remember(ch)
		if strings.EqualFold(ch.Username, key) {
			logger.L().Debugf("Resolved @%s via API: id=%d", ch.Username, models.MarkChannelID(ch.ID))
			return toChannel(ref, peer), nil
		}
	}
	return nil, fmt.Errorf("username %s does not refer to a channel", key)
}

// InputPeer 实现 forward.PeerResolver
func (p *Peers) InputPeer(_ context.Context, channelID int64) (tg.InputPeerClass, error) {
	peer, ok := p.lookupID(channelID)
	if !ok {
		return nil, fmt.Errorf("unknown channel %d", channelID)
	}
	return peer.input, nil
}

func (p *Peers) remember(ch *tg.Channel) channelPeer {
	peer := channelPeer{
		channel: ch,
		input:   &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash},
	}
	id := models.MarkChannelID(ch.ID)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.byID[id] = peer
	if ch.Username != "" {
		p.byUsername[strings.ToLower(ch.Username)] = id
	}
	return peer
}

func (p *Peers) lookupID(id int64) (channelPeer, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	peer, ok := p.byID[id]
	return peer, ok
}

func (p *Peers) lookupUsername(username string) (int64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.byUsername[strings.ToLower(username)]
	return id, ok
}

// canonicalID 正数视为 MTProto 频道 ID，转为 Bot API 形式
func canonicalID(id int64) int64 {
	if id > 0 {
		return models.MarkChannelID(id)
	}
	return id
}

func toChannel(ref string, peer channelPeer) *models.Channel {
	return &models.Channel{
		ID:       models.MarkChannelID(peer.channel.ID),
		Ref:      ref,
		Username: peer.channel.Username,
		Title:    peer.channel.Title,
	}
}
