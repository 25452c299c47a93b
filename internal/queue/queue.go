package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/unclebandit/mailcampaign-sender/internal/logx"
)

// CampaignSendsTopic carries campaign send requests.
const CampaignSendsTopic = "campaign_sends"

// SendJob asks a worker to run one campaign.
type SendJob struct {
	CampaignID string `json:"campaign_id"`
}

type Handler func(ctx context.Context, job SendJob) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic string, job SendJob) error
	Subscribe(topic string, handler Handler) error
}

// InMemoryQueue runs each published job on its own goroutine, detached from
// the publisher's context so an HTTP request ending does not stop the run.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	wg       sync.WaitGroup
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]Handler),
	}
}

// Publish hands the job to every subscriber of topic and returns immediately.
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, job SendJob) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	detached := context.WithoutCancel(ctx)
	for _, handler := range handlers {
		q.wg.Add(1)
		go q.processJob(detached, topic, handler, job)
	}
	return nil
}

func (q *InMemoryQueue) processJob(ctx context.Context, topic string, handler Handler, job SendJob) {
	defer q.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			logx.L().Errorw("job_panicked", "topic", topic, "campaign_id", job.CampaignID, "panic", rec)
		}
	}()

	if err := handler(ctx, job); err != nil {
		logx.L().Warnw("job_failed", "topic", topic, "campaign_id", job.CampaignID, "error", err)
		return
	}
	logx.L().Debugw("job_processed", "topic", topic, "campaign_id", job.CampaignID)
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every published job has finished.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

func encodeJob(job SendJob) ([]byte, error) {
	if job.CampaignID == "" {
		return nil, fmt.Errorf("send job has no campaign_id")
	}
	return json.Marshal(job)
}

func decodeJob(body []byte) (SendJob, error) {
	var job SendJob
	if err := json.Unmarshal(body, &job); err != nil {
		return job, fmt.Errorf("invalid send job: %w", err)
	}
	if job.CampaignID == "" {
		return job, fmt.Errorf("invalid send job: missing campaign_id")
	}
	return job, nil
}

var _ Queue = (*InMemoryQueue)(nil)
