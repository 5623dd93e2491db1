package alerts

import (
	"context"
	"errors"
	"sync"

	"github.com/pranav24547/Ai-Surveillance-System/internal/config"
	"github.com/pranav24547/Ai-Surveillance-System/internal/kafka"
	"github.com/pranav24547/Ai-Surveillance-System/internal/models"
)

var errPublisherClosed = errors.New("kafka publisher closed")

// AlertPublisher is the subset of kafka.Producer used by the Kafka channel.
type AlertPublisher interface {
	SendAlert(alert models.Alert) error
	Close() error
}

// Kafka publishes alert events for downstream consumers such as dashboards or incident tooling.
type Kafka struct {
	counters
	cfg config.KafkaAlerts

	// Dial creates the publisher on Init. Defaults to kafka.NewProducer.
	Dial func(brokers []string, topic string) (AlertPublisher, error)

	mu        sync.Mutex
	publisher AlertPublisher
}

func NewKafka(cfg config.KafkaAlerts) *Kafka {
	return &Kafka{
		cfg: cfg,
		Dial: func(brokers []string, topic string) (AlertPublisher, error) {
			return kafka.NewProducer(brokers, topic)
		},
	}
}

func (k *Kafka) Kind() string { return KindKafka }

func (k *Kafka) Init() error {
	if !k.cfg.Enabled || len(k.cfg.Brokers) == 0 || k.cfg.Topic == "" {
		k.setReady(false)
		return ErrNotConfigured
	}

	publisher, err := k.Dial(k.cfg.Brokers, k.cfg.Topic)
	if err != nil {
		k.setReady(false)
		return err
	}

	k.mu.Lock()
	k.publisher = publisher
	k.mu.Unlock()
	k.setReady(true)
	return nil
}

func (k *Kafka) Send(_ context.Context, alert models.Alert) error {
	k.mu.Lock()
	publisher := k.publisher
	k.mu.Unlock()

	if publisher == nil {
		return k.record(errPublisherClosed)
	}
	return k.record(publisher.SendAlert(alert))
}

func (k *Kafka) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.setReady(false)
	if k.publisher == nil {
		return nil
	}
	err := k.publisher.Close()
	k.publisher = nil
	return err
}

func (k *Kafka) Status() ChannelStatus {
	return k.status(len(k.cfg.Brokers), map[string]string{"topic": k.cfg.Topic})
}
