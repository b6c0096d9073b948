package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

// 存储驱动
const (
	StoreDriverNone     = ""
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
)

// 转发模式
const (
	ForwardModeUser = "user" // 使用用户会话（MTProto）转发
	ForwardModeBot  = "bot"  // 使用 Bot API 转发
)

// DefaultCategory 未配置分类时写入内容记录的分类
const DefaultCategory = "general"

// Config 应用程序配置
type Config struct {
	APIID       int    // Telegram API ID
	APIHash     string // Telegram API Hash
	SessionPath string // 用户会话文件路径

	SourceChannels []string // 源频道（用户名、数字 ID 或 t.me 链接）
	TargetChannel  string   // 目标频道

	CheckLimit           int           // 每次轮询拉取的最近消息数
	PollInterval         time.Duration // 轮询间隔
	Pacing               time.Duration // 每转发一个单元后的节流间隔
	MediaDownloadTimeout time.Duration // 媒体下载超时
	MediaMaxBytes        int64         // 超过该大小的附件不归档

	TopicFilters      map[string]int    // 频道 -> 必须匹配的话题 ID
	ChannelCategories map[string]string // 频道 -> 内容分类

	StoreDriver  string // postgres / mongo / 空（禁用）
	DatabaseURL  string // PostgreSQL 连接串
	MongoURI     string // MongoDB连接URI
	MongoDBName  string // MongoDB数据库名称
	PersistState bool   // 是否持久化水位线与已转发媒体组

	R2 R2Config

	ForwardMode    string // user / bot
	TelegramToken  string // Bot API Token（仅 bot 模式）
	ForwardRateRPS int    // 转发速率上限（每秒）

	MetricsAddr string // 指标服务监听地址，空则禁用
}

// R2Config Cloudflare R2 配置
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
	Endpoint        string // 可选，覆盖默认的 https://<account>.r2.cloudflarestorage.com
}

// Enabled 仅当核心字段全部配置时启用 R2
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.SecretAccessKey != "" &&
		c.BucketName != "" && c.PublicURL != ""
}

// ResolvedEndpoint 返回 S3 兼容的服务端点
func (c R2Config) ResolvedEndpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID)
}

// LoadDotEnv 加载 .env 文件（文件不存在时忽略）
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Credentials 用户会话凭据（login 命令只需要这一部分）
type Credentials struct {
	APIID       int
	APIHash     string
	SessionPath string
}

// LoadCredentials 读取 API_ID、API_HASH 与 SESSION_PATH
func LoadCredentials() (*Credentials, error) {
	apiIDStr := strings.TrimSpace(os.Getenv("API_ID"))
	if apiIDStr == "" {
		return nil, fmt.Errorf("API_ID is required")
	}
	apiID, err := strconv.Atoi(apiIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse API_ID: %w", err)
	}

	apiHash := strings.TrimSpace(os.Getenv("API_HASH"))
	if apiHash == "" {
		return nil, fmt.Errorf("API_HASH is required")
	}

	return &Credentials{
		APIID:       apiID,
		APIHash:     apiHash,
		SessionPath: envOrDefault("SESSION_PATH", "sessions/copy.json"),
	}, nil
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	cfg := &Config{
		TargetChannel: strings.TrimSpace(os.Getenv("TARGET_CHANNEL")),
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		MongoURI:      strings.TrimSpace(os.Getenv("MONGO_URI")),
		MongoDBName:   envOrDefault("MONGO_DB_NAME", "relay_bot"),
		TelegramToken: strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		MetricsAddr:   strings.TrimSpace(os.Getenv("METRICS_ADDR")),
		R2: R2Config{
			AccountID:       strings.TrimSpace(os.Getenv("R2_ACCOUNT_ID")),
			AccessKeyID:     strings.TrimSpace(os.Getenv("R2_ACCESS_KEY_ID")),
			SecretAccessKey: strings.TrimSpace(os.Getenv("R2_SECRET_ACCESS_KEY")),
			BucketName:      strings.TrimSpace(os.Getenv("R2_BUCKET_NAME")),
			PublicURL:       strings.TrimRight(strings.TrimSpace(os.Getenv("R2_PUBLIC_URL")), "/"),
			Endpoint:        strings.TrimSpace(os.Getenv("R2_ENDPOINT")),
		},
	}

	creds, err := LoadCredentials()
	if err != nil {
		return nil, err
	}
	cfg.APIID, cfg.APIHash, cfg.SessionPath = creds.APIID, creds.APIHash, creds.SessionPath

	cfg.SourceChannels, err = parseSourceChannels(os.Getenv("SOURCE_CHANNELS"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SOURCE_CHANNELS: %w", err)
	}
	if cfg.TargetChannel == "" {
		return nil, fmt.Errorf("TARGET_CHANNEL is required")
	}

	if cfg.CheckLimit, err = positiveInt("CHECK_LIMIT", 10); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = positiveSeconds("POLL_INTERVAL_SECONDS", 2); err != nil {
		return nil, err
	}
	if cfg.Pacing, err = positiveSeconds("PACING_SECONDS", 1); err != nil {
		return nil, err
	}
	if cfg.MediaDownloadTimeout, err = positiveSeconds("MEDIA_DOWNLOAD_TIMEOUT_SECONDS", 60); err != nil {
		return nil, err
	}
	maxMB, err := positiveInt("MEDIA_MAX_SIZE_MB", 100)
	if err != nil {
		return nil, err
	}
	cfg.MediaMaxBytes = int64(maxMB) << 20
	if cfg.ForwardRateRPS, err = positiveInt("FORWARD_RATE_PER_SECOND", 20); err != nil {
		return nil, err
	}

	if cfg.TopicFilters, err = parseTopicFilters(os.Getenv("TOPIC_FILTERS")); err != nil {
		return nil, fmt.Errorf("failed to parse TOPIC_FILTERS: %w", err)
	}
	if cfg.ChannelCategories, err = parseChannelCategories(os.Getenv("CHANNEL_CATEGORIES")); err != nil {
		return nil, fmt.Errorf("failed to parse CHANNEL_CATEGORIES: %w", err)
	}

	if cfg.StoreDriver, err = resolveStoreDriver(os.Getenv("STORE_DRIVER"), cfg.DatabaseURL, cfg.MongoURI); err != nil {
		return nil, err
	}

	if v := strings.TrimSpace(os.Getenv("PERSIST_STATE")); v != "" {
		persist, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PERSIST_STATE: %w", err)
		}
		cfg.PersistState = persist
	}
	if cfg.PersistState && cfg.StoreDriver == StoreDriverNone {
		return nil, fmt.Errorf("PERSIST_STATE requires DATABASE_URL or MONGO_URI")
	}

	cfg.ForwardMode = strings.ToLower(envOrDefault("FORWARD_MODE", ForwardModeUser))
	switch cfg.ForwardMode {
	case ForwardModeUser:
	case ForwardModeBot:
		if cfg.TelegramToken == "" {
			return nil, fmt.Errorf("TELEGRAM_TOKEN is required when FORWARD_MODE=bot")
		}
	default:
		return nil, fmt.Errorf("invalid FORWARD_MODE: %s", cfg.ForwardMode)
	}

	return cfg, nil
}

// CategoryFor 返回频道配置的分类，未配置返回默认分类
func (c *Config) CategoryFor(keys ...string) string {
	for _, k := range keys {
		if v, ok := c.ChannelCategories[NormalizeKey(k)]; ok && v != "" {
			return v
		}
	}
	return DefaultCategory
}

// TopicFor 返回频道配置的话题过滤
func (c *Config) TopicFor(keys ...string) (int, bool) {
	for _, k := range keys {
		if v, ok := c.TopicFilters[NormalizeKey(k)]; ok {
			return v, true
		}
	}
	return 0, false
}

// NormalizeKey 统一频道引用的写法：去掉 @ 与 t.me 前缀，用户名转小写
// 数字 ID 原样保留
func NormalizeKey(ref string) string {
	ref = strings.TrimSpace(ref)
	for _, prefix := range []string{"https://t.me/", "http://t.me/", "t.me/", "@"} {
		ref = strings.TrimPrefix(ref, prefix)
	}
	ref = strings.TrimSuffix(ref, "/")
	if _, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return ref
	}
	return strings.ToLower(ref)
}

// parseSourceChannels 解析 JSON 数组，元素可以是字符串或数字
// 支持格式: ["@news", -1002651608009, "t.me/other"]
func parseSourceChannels(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("SOURCE_CHANNELS is required")
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("expected JSON array: %w", err)
	}

	channels := make([]string, 0, len(raw))
	for _, item := range raw {
		ref, err := rawChannelRef(item)
		if err != nil {
			return nil, err
		}
		if ref == "" {
			continue
		}
		channels = append(channels, ref)
	}
	channels = lo.Uniq(channels)

	if len(channels) == 0 {
		return nil, fmt.Errorf("SOURCE_CHANNELS must contain at least one channel")
	}
	return channels, nil
}

func rawChannelRef(item json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(item, &str); err == nil {
		return strings.TrimSpace(str), nil
	}
	var num int64
	if err := json.Unmarshal(item, &num); err == nil {
		return strconv.FormatInt(num, 10), nil
	}
	return "", fmt.Errorf("invalid channel reference %s", string(item))
}

// parseTopicFilters 解析 {"<channel>": <topic_id>} 形式的 JSON 对象
func parseTopicFilters(s string) (map[string]int, error) {
	result := make(map[string]int)
	s = strings.TrimSpace(s)
	if s == "" {
		return result, nil
	}

	var raw map[string]int
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("expected JSON object of topic ids: %w", err)
	}
	for k, v := range raw {
		if v <= 0 {
			return nil, fmt.Errorf("invalid topic id %d for %q", v, k)
		}
		result[NormalizeKey(k)] = v
	}
	return result, nil
}

// parseChannelCategories 解析 {"<channel>": "<category>"} 形式的 JSON 对象
func parseChannelCategories(s string) (map[string]string, error) {
	result := make(map[string]string)
	s = strings.TrimSpace(s)
	if s == "" {
		return result, nil
	}

	var raw map[string]string
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("expected JSON object of categories: %w", err)
	}
	for k, v := range raw {
		result[NormalizeKey(k)] = strings.TrimSpace(v)
	}
	return result, nil
}

func resolveStoreDriver(driver, databaseURL, mongoURI string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "":
		if databaseURL != "" {
			return StoreDriverPostgres, nil
		}
		if mongoURI != "" {
			return StoreDriverMongo, nil
		}
		return StoreDriverNone, nil
	case StoreDriverPostgres:
		if databaseURL == "" {
			return "", fmt.Errorf("STORE_DRIVER=postgres requires DATABASE_URL")
		}
		return StoreDriverPostgres, nil
	case StoreDriverMongo:
		if mongoURI == "" {
			return "", fmt.Errorf("STORE_DRIVER=mongo requires MONGO_URI")
		}
		return StoreDriverMongo, nil
	case "none":
		return StoreDriverNone, nil
	default:
		return "", fmt.Errorf("invalid STORE_DRIVER: %s", driver)
	}
}

func positiveInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("%s must be >= 1, got %d", key, n)
	}
	return n, nil
}

func positiveSeconds(key string, fallback int) (time.Duration, error) {
	n, err := positiveInt(key, fallback)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}
