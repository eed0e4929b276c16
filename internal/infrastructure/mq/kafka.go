package mq

import (
	"log"

	"loyaltyledger/internal/config"

	"github.com/IBM/sarama"
)

// NewSyncProducer 创建 Kafka 同步生产者
func NewSyncProducer(cfg *config.KafkaConfig) (sarama.SyncProducer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Idempotent = true
	kafkaConfig.Net.MaxOpenRequests = 1 // 幂等生产者要求
	kafkaConfig.Version = sarama.V2_1_0_0

	return sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
}

// Publisher 账本事件发布者
type Publisher struct {
	producer sarama.SyncProducer
}

func NewPublisher(producer sarama.SyncProducer) *Publisher {
	return &Publisher{producer: producer}
}

// InitKafka 初始化 Kafka 生产者，失败时直接退出
func InitKafka(cfg *config.KafkaConfig) *Publisher {
	producer, err := NewSyncProducer(cfg)
	if err != nil {
		log.Fatalf("创建 Kafka 生产者失败: %v", err)
	}
	log.Println("Kafka 生产者创建成功")
	return NewPublisher(producer)
}

// Publish 发送消息，事件类型放在 header 中便于消费方路由
func (p *Publisher) Publish(topic, key, eventType, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(eventType)},
		},
	}

	_, _, err := p.producer.SendMessage(msg)
	return err
}

func (p *Publisher) Close() {
	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			log.Printf("[Kafka] 关闭生产者失败: %v", err)
		}
	}
}
