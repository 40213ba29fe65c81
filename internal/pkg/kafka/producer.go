package kafka

import (
	"Mosaic/internal/api/config"
	log "log/slog"
	"time"

	"github.com/IBM/sarama"
	json "github.com/goccy/go-json"
)

// ActivityEvent 描述一条私信动态，异步写入 Kafka 供下游统计消费
type ActivityEvent struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	SenderID       uint64 `json:"sender_id"`
	ReceiverID     uint64 `json:"receiver_id"`
	HasAttachment  bool   `json:"has_attachment"`
	CreatedAt      int64  `json:"created_at"`
}

// ActivityProducer 把消息动态异步推送到 Kafka
// 发送失败只记录日志，不影响主流程
type ActivityProducer struct {
	producer sarama.AsyncProducer
	topic    string
}

func NewActivityProducer(cfg *config.Config) (*ActivityProducer, error) {
	saramaCfg := newSaramaConfig(cfg.Kafka)

	producer, err := sarama.NewAsyncProducer(cfg.Kafka.Brokers, saramaCfg)
	if err != nil {
		return nil, err
	}

	p := &ActivityProducer{
		producer: producer,
		topic:    cfg.Kafka.ActivityTopic,
	}

	// 消费错误通道，避免阻塞
	go func() {
		for err := range producer.Errors() {
			log.Error("activity producer error", "topic", err.Msg.Topic, "err", err.Err)
		}
	}()

	return p, nil
}

// Publish 异步发送一条动态事件，按会话 ID 做 Key 保证同会话有序
func (p *ActivityProducer) Publish(event ActivityEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error("marshal activity event failed", "err", err)
		return
	}

	p.producer.Input() <- &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(event.ConversationID),
		Value:     sarama.ByteEncoder(payload),
		Timestamp: time.Unix(event.CreatedAt, 0),
	}
}

// Close 等待缓冲区刷出后关闭生产者
func (p *ActivityProducer) Close() {
	if err := p.producer.Close(); err != nil {
		log.Error("close activity producer failed", "err", err)
	}
	log.Info("activity producer closed", "topic", p.topic)
}
