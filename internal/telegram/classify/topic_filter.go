package classify

import (
	"relay_bot/internal/logger"
	"relay_bot/internal/telegram/models"
)

// ShouldSkip 判断消息是否因话题不匹配而被过滤
// 未配置话题过滤的频道从不过滤；配置后没有话题的消息同样被过滤
func ShouldSkip(msg *models.Message, channel *models.Channel) bool {
	if channel == nil || !channel.HasTopicFilter() {
		return false
	}

	topic, ok := Topic(msg)
	if ok && topic == channel.TopicID {
		return false
	}
	if ok {
		logger.L().Debugf("Skipping message: channel=%d, message_id=%d, topic=%d, required=%d",
			channel.ID, msg.ID, topic, channel.TopicID)
	}
	return true
}

// CountInTopic 统计消息中属于指定话题的数量
func CountInTopic(msgs []*models.Message, topicID int) int {
	count := 0
	for _, msg := range msgs {
		if topic, ok := Topic(msg); ok && topic == topicID {
			count++
		}
	}
	return count
}
