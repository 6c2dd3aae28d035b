// internal/pkg/inbox/inbox.go
//
// 幂等收件箱：在 at-least-once 投递的通道上保证每条消息的业务效果至多发生一次。
// 记录的存在与否是"是否处理过"的唯一事实来源；并发的重复投递依靠
// (topic, partition_id, offset_value) 上的唯一约束裁决，而不是先查后插。
package inbox

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"

	"stocksaga/internal/pkg/database"
	"stocksaga/internal/pkg/mq"
)

var duplicateMessages = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "inbox_duplicate_messages_total",
	Help: "Number of redelivered messages absorbed by the idempotent inbox.",
}, []string{"topic"})

// Message 是收件箱的一条记录。只追加，永不更新或删除。
type Message struct {
	ID          uint64 `gorm:"primaryKey"`
	Topic       string `gorm:"size:191;not null;uniqueIndex:uk_inbox_topic_partition_offset,priority:1"`
	PartitionID int    `gorm:"not null;uniqueIndex:uk_inbox_topic_partition_offset,priority:2"`
	OffsetValue int64  `gorm:"not null;uniqueIndex:uk_inbox_topic_partition_offset,priority:3"`
	ReceivedAt  time.Time
}

func (Message) TableName() string {
	return "inbox_messages"
}

// TryConsume 尝试认领一条消息。首次看到该 (topic, partition, offset) 时
// 插入记录并返回 true；此后的任何调用返回 false。
//
// 必须在与业务变更相同的事务里调用（传入事务句柄 tx），否则
// "已认领"与"效果已落库"之间的崩溃会重新打开去重窗口。
func TryConsume(tx *gorm.DB, ref mq.MessageRef) (bool, error) {
	record := Message{
		Topic:       ref.Topic,
		PartitionID: ref.Partition,
		OffsetValue: ref.Offset,
		ReceivedAt:  time.Now().UTC(),
	}

	if err := tx.Create(&record).Error; err != nil {
		if database.IsDuplicateEntry(err) {
			duplicateMessages.WithLabelValues(ref.Topic).Inc()
			return false, nil
		}
		return false, errors.Wrap(err, "inbox: failed to record message")
	}
	return true, nil
}
