package models

import "strconv"

// Channel 源频道（启动时解析，运行期间不变）
type Channel struct {
	ID       int64  // 标准化 ID（Bot API 形式，例如 -1002651608009）
	Ref      string // 配置中的原始写法
	Username string // 用户名（可能为空）
	Title    string // 频道标题
	TopicID  int    // 必须匹配的话题 ID，0 表示不过滤
	Category string // 写入内容记录的分类
}

// HasTopicFilter 是否配置了话题过滤
func (c *Channel) HasTopicFilter() bool {
	return c.TopicID != 0
}

// Key 返回持久化时使用的频道标识
func (c *Channel) Key() string {
	return strconv.FormatInt(c.ID, 10)
}

// MarkChannelID 将 MTProto 频道 ID 转为 Bot API 形式
func MarkChannelID(plain int64) int64 {
	return -1000000000000 - plain
}

// UnmarkChannelID 将 Bot API 形式的频道 ID 还原为 MTProto ID
// 非频道形式的 ID 返回 false
func UnmarkChannelID(marked int64) (int64, bool) {
	plain := -marked - 1000000000000
	if plain <= 0 {
		return 0, false
	}
	return plain, true
}
