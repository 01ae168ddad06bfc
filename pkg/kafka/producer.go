package kafka

import (
	"fmt"

	"github.com/IBM/sarama"
)

const clientID = "consultroom"

type ProducerConfig struct {
	Brokers      []string
	RetryMax     int
	RequiredAcks int
}

func newProducerConfig(cfg ProducerConfig) *sarama.Config {
	saramaCfg := sarama.NewConfig()
	saramaCfg.ClientID = clientID
	saramaCfg.Producer.RequiredAcks = sarama.RequiredAcks(cfg.RequiredAcks)
	saramaCfg.Producer.Retry.Max = cfg.RetryMax
	saramaCfg.Producer.Return.Successes = true
	// Keys are session or client ids; hashing keeps one party's events ordered.
	saramaCfg.Producer.Partitioner = sarama.NewHashPartitioner
	return saramaCfg
}

func NewProducer(cfg ProducerConfig) (sarama.SyncProducer, error) {
	prod, err := sarama.NewSyncProducer(cfg.Brokers, newProducerConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return prod, nil
}
