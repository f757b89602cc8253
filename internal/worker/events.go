package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nsqio/go-nsq"

	"knowledgescout/internal/middleware"
)

const (
	// TopicIndexTask carries one message per document indexing request.
	TopicIndexTask = "index.task"

	// ChannelIndexer is the consumer channel; a single channel means each
	// task is processed once even with several worker processes.
	ChannelIndexer = "indexer"
)

// IndexTask asks the worker to (re-)index one document.
type IndexTask struct {
	DocumentID    string `json:"document_id"`
	Reindex       bool   `json:"reindex"`
	CorrelationID string `json:"correlation_id"`
}

// Publisher enqueues index tasks onto NSQ.
type Publisher struct {
	producer *nsq.Producer
}

func NewPublisher(producer *nsq.Producer) *Publisher {
	return &Publisher{producer: producer}
}

func (p *Publisher) PublishIndexTask(ctx context.Context, task IndexTask) error {
	if task.CorrelationID == "" {
		task.CorrelationID = middleware.GetCorrelationID(ctx)
	}
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal index task: %w", err)
	}
	if err := p.producer.Publish(TopicIndexTask, body); err != nil {
		return fmt.Errorf("publish index task: %w", err)
	}
	return nil
}
