package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelCreditsUpdated = "credits_updated"
)

// 积分变动原因
const (
	ReasonOneTime      = "one_time"
	ReasonSubscription = "subscription"
)

// CreditsMessage 积分变动消息，webhook 事务提交后发布
type CreditsMessage struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id"`
	Delta     int64     `json:"delta"`
	Credits   int64     `json:"credits"`
	Provider  string    `json:"provider"`
	Reason    string    `json:"reason"`
	EventID   string    `json:"event_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishCredits 发布积分变动
func (p *Publisher) PublishCredits(ctx context.Context, msg *CreditsMessage) error {
	msg.Type = ChannelCreditsUpdated
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal credits message: %w", err)
	}

	return p.client.Publish(ctx, ChannelCreditsUpdated, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅积分变动，ctx 取消后返回
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*CreditsMessage)) error {
	pubsub := s.client.Subscribe(ctx, ChannelCreditsUpdated)
	defer pubsub.Close()

	// 等待订阅确认，避免订阅建立前的消息丢失
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var creditsMsg CreditsMessage
			if err := json.Unmarshal([]byte(msg.Payload), &creditsMsg); err != nil {
				continue // 忽略解析错误
			}

			handler(&creditsMsg)
		}
	}
}
