// Package telegram 封装基于 MTProto 用户会话的消息客户端：
// 拉取历史、下载附件、解析频道与登录
package telegram

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"relay_bot/internal/logger"
	"relay_bot/internal/telegram/models"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"
)

// Config 客户端配置
type Config struct {
	APIID       int
	APIHash     string
	SessionPath string
}

// ErrNotAuthorized 会话未登录
var ErrNotAuthorized = fmt.Errorf("telegram session is not authorized, run the login command first")

// Client MTProto 用户客户端
type Client struct {
	client     *telegram.Client
	api        *tg.Client
	peers      *Peers
	downloader *downloader.Downloader
}

// NewClient 创建客户端（尚未连接）
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIID == 0 || cfg.APIHash == "" {
		return nil, fmt.Errorf("API ID and API hash are required")
	}
	if dir := filepath.Dir(cfg.SessionPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
	}

	client := telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: cfg.SessionPath},
	})
	api := client.API()

	return &Client{
		client:     client,
		api:        api,
		peers:      NewPeers(api),
		downloader: downloader.NewDownloader(),
	}, nil
}

// API 原始 RPC 客户端
func (c *Client) API() *tg.Client {
	return c.api
}

// Peers 频道 peer 缓存
func (c *Client) Peers() *Peers {
	return c.peers
}

// Run 建立连接并在已登录状态下执行 fn，fn 返回后断开
func (c *Client) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.client.Run(ctx, func(ctx context.Context) error {
		status, err := c.client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get auth status: %w", err)
		}
		if !status.Authorized {
			return ErrNotAuthorized
		}
		return fn(ctx)
	})
}

// Login 交互式登录并写入会话文件
func (c *Client) Login(ctx context.Context, phone, password string, code auth.CodeAuthenticatorFunc) error {
	flow := auth.NewFlow(auth.Constant(phone, password, code), auth.SendCodeOptions{})

	return c.client.Run(ctx, func(ctx context.Context) error {
		if err := c.client.Auth().IfNecessary(ctx, flow); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		self, err := c.client.Self(ctx)
		if err != nil {
			return fmt.Errorf("failed to get self: %w", err)
		}
		logger.L().Infof("Logged in as %s (id=%d)", self.Username, self.ID)
		return nil
	})
}

// History 拉取频道最近 limit 条消息（新消息在前）
func (c *Client) History(ctx context.Context, channelID int64, limit int) ([]*models.Message, error) {
	peer, err := c.peers.InputPeer(ctx, channelID)
	if err != nil {
		return nil, err
	}

	res, err := c.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  peer,
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get history for %d: %w", channelID, err)
	}

	switch h := res.(type) {
	case *tg.MessagesMessages:
		return MapMessages(channelID, h.Messages), nil
	case *tg.MessagesMessagesSlice:
		return MapMessages(channelID, h.Messages), nil
	case *tg.MessagesChannelMessages:
		return MapMessages(channelID, h.Messages), nil
	default:
		return nil, fmt.Errorf("unexpected history response %T", res)
	}
}

// maxPrealloc 下载缓冲区预分配上限，更大的文件随数据到达再扩容
const maxPrealloc = 16 << 20

func newDownloadBuffer(size int64) *bytes.Buffer {
	buf := &bytes.Buffer{}
	if size > 0 {
		buf.Grow(int(min(size, maxPrealloc)))
	}
	return buf
}

// Download 下载附件内容（调用方负责超时）
func (c *Client) Download(ctx context.Context, attachment *models.Attachment) ([]byte, error) {
	loc, ok := attachment.Source.(tg.InputFileLocationClass)
	if !ok || loc == nil {
		return nil, fmt.Errorf("attachment %s has no downloadable location", attachment.Kind)
	}

	buf := newDownloadBuffer(attachment.Size)
	if _, err := c.downloader.Download(c.api, loc).Stream(ctx, buf); err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", attachment.Kind, err)
	}
	return buf.Bytes(), nil
}
