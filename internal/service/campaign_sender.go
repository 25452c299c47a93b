// internal/service/campaign_sender.go
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	appErrors "github.com/unclebandit/mailcampaign-sender/internal/errors"
	"github.com/unclebandit/mailcampaign-sender/internal/logx"
	"github.com/unclebandit/mailcampaign-sender/internal/mailer"
	"github.com/unclebandit/mailcampaign-sender/internal/metrics"
	"github.com/unclebandit/mailcampaign-sender/internal/model"
	"github.com/unclebandit/mailcampaign-sender/internal/repository"
)

const (
	DefaultBatchSize  = 5
	DefaultBatchPause = time.Second
)

// SendResult summarizes one campaign run.
type SendResult struct {
	CampaignID string `json:"campaign_id"`
	Status     string `json:"status"`
	Processed  int    `json:"processed"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	Batches    int    `json:"batches"`
}

type CampaignSenderInterface interface {
	SendCampaign(ctx context.Context, campaignID string) (*SendResult, error)
}

// CampaignSender drives one campaign through its dispatchable recipients.
// Recipients are sent in fixed-size batches; members of a batch run
// concurrently and the sender pauses between batches.
type CampaignSender struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
	MemberRepo    repository.MemberRepositoryInterface
	EventRepo     repository.EventRepositoryInterface
	Tokens        TokenProvider
	Mailer        mailer.Dispatcher
	Retry         RetryPolicy

	BatchSize          int
	BatchPause         time.Duration
	MarkPartialFailure bool

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewCampaignSender(
	campaigns repository.CampaignRepositoryInterface,
	recipients repository.RecipientRepositoryInterface,
	members repository.MemberRepositoryInterface,
	events repository.EventRepositoryInterface,
	tokens TokenProvider,
	dispatcher mailer.Dispatcher,
) *CampaignSender {
	return &CampaignSender{
		CampaignRepo:  campaigns,
		RecipientRepo: recipients,
		MemberRepo:    members,
		EventRepo:     events,
		Tokens:        tokens,
		Mailer:        dispatcher,
		Retry:         DefaultRetryPolicy,
		BatchSize:     DefaultBatchSize,
		BatchPause:    DefaultBatchPause,
	}
}

// tally is shared by the concurrent units of a batch.
type tally struct {
	mu     sync.Mutex
	result SendResult
}

func (t *tally) add(fn func(r *SendResult)) {
	t.mu.Lock()
	fn(&t.result)
	t.mu.Unlock()
}

// SendCampaign performs one send run. A missing campaign is returned as is.
// Any other failure after the campaign is loaded, including a panic, marks
// the campaign failed before the error is returned.
func (s *CampaignSender) SendCampaign(ctx context.Context, campaignID string) (result *SendResult, err error) {
	markOnError := false
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("campaign send panicked: %v", rec)
			markOnError = true
		}
		if err == nil {
			return
		}
		metrics.CampaignRuns.WithLabelValues("failed").Inc()
		logx.L().Errorw("campaign_send_failed", "campaign_id", campaignID, "error", err)
		if markOnError {
			s.markFailed(ctx, campaignID)
		}
	}()

	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		var nf *appErrors.ErrCampaignNotFound
		markOnError = !errors.As(err, &nf)
		return nil, err
	}
	markOnError = true

	log := logx.L().With("campaign_id", campaign.ID)

	if campaign.Status == model.CampaignPaused || campaign.Status == model.CampaignCancelled {
		log.Infow("campaign_send_skipped", "status", campaign.Status)
		metrics.CampaignRuns.WithLabelValues("skipped").Inc()
		return &SendResult{CampaignID: campaign.ID, Status: campaign.Status}, nil
	}

	token, err := s.Tokens.ValidToken(ctx, campaign.UserTokenID)
	if err != nil {
		return nil, err
	}

	recipients, err := s.RecipientRepo.ListDispatchable(ctx, campaign.ID)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	if len(recipients) == 0 {
		log.Infow("campaign_no_dispatchable_recipients", "status", campaign.Status)
		metrics.CampaignRuns.WithLabelValues("empty").Inc()
		return &SendResult{CampaignID: campaign.ID, Status: campaign.Status}, nil
	}

	members, err := s.MemberRepo.GetByIDs(ctx, memberIDs(recipients))
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}

	if campaign.Status == model.CampaignScheduled {
		if err := s.CampaignRepo.MarkStarted(ctx, campaign.ID, s.now()); err != nil {
			return nil, fmt.Errorf("mark campaign sending: %w", err)
		}
		campaign.Status = model.CampaignSending
	}

	log.Infow("campaign_send_started", "recipients", len(recipients), "account", token.AccountEmail)

	t := &tally{result: SendResult{CampaignID: campaign.ID}}
	batches := splitBatches(recipients, s.batchSize())
	for i, batch := range batches {
		if i > 0 {
			if err := s.sleep(ctx, s.batchPause()); err != nil {
				return nil, err
			}
		}
		s.dispatchBatch(ctx, campaign, token, batch, members, t)
		t.result.Batches++
		log.Debugw("campaign_batch_done", "batch", i+1, "of", len(batches))
	}

	final := model.CampaignSent
	if s.MarkPartialFailure && t.result.Failed > 0 {
		final = model.CampaignPartiallyFailed
	}
	if err := s.CampaignRepo.MarkCompleted(ctx, campaign.ID, final, s.now()); err != nil {
		return nil, fmt.Errorf("mark campaign %s: %w", final, err)
	}

	res := t.result
	res.Status = final
	metrics.CampaignRuns.WithLabelValues("completed").Inc()
	log.Infow("campaign_send_completed",
		"status", final,
		"processed", res.Processed,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"skipped", res.Skipped,
	)
	return &res, nil
}

func (s *CampaignSender) dispatchBatch(
	ctx context.Context,
	campaign *model.Campaign,
	token *AccessToken,
	batch []*model.Recipient,
	members map[string]*model.Member,
	t *tally,
) {
	var g errgroup.Group
	g.SetLimit(s.batchSize())
	for _, r := range batch {
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					logx.L().Errorw("recipient_unit_panicked", "campaign_id", campaign.ID, "recipient_id", r.ID, "panic", rec)
					t.add(func(sr *SendResult) { sr.Failed++ })
				}
			}()
			s.sendToRecipient(ctx, campaign, token, r, members[r.MemberID], t)
			return nil
		})
	}
	_ = g.Wait()
}

// sendToRecipient runs the per-recipient job: mark sending, personalize,
// dispatch once, then record the outcome.
func (s *CampaignSender) sendToRecipient(
	ctx context.Context,
	campaign *model.Campaign,
	token *AccessToken,
	r *model.Recipient,
	member *model.Member,
	t *tally,
) {
	log := logx.L().With("campaign_id", campaign.ID, "recipient_id", r.ID)
	t.add(func(sr *SendResult) { sr.Processed++ })

	if member == nil {
		log.Warnw("recipient_member_missing", "member_id", r.MemberID)
		metrics.RecipientsProcessed.WithLabelValues("skipped").Inc()
		t.add(func(sr *SendResult) { sr.Skipped++ })
		return
	}

	limit := r.RetryLimit()
	attempt := r.RetryCount + 1
	if attempt > limit {
		attempt = limit
	}

	if err := s.RecipientRepo.MarkSending(ctx, r.ID); err != nil {
		log.Errorw("recipient_mark_sending_failed", "error", err)
		metrics.RecipientsProcessed.WithLabelValues("failed").Inc()
		t.add(func(sr *SendResult) { sr.Failed++ })
		return
	}
	s.appendEvent(ctx, campaign.ID, r.ID, model.EventQueued, model.EventData{Attempt: attempt})

	// Once the row is sending, every exit must leave it sent or failed.
	settled := false
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		log.Errorw("recipient_send_panicked", "panic", rec)
		if !settled {
			s.recordFailure(ctx, campaign.ID, r, attempt, fmt.Sprintf("send panicked: %v", rec), 0, t)
		}
	}()

	env := mailer.Envelope{
		ToAddress: r.Email,
		ToName:    r.DisplayName(),
		Subject:   Personalize(campaign.Subject, member),
		HTMLBody:  Personalize(campaign.Body, member),
		CC:        campaign.CC,
		BCC:       campaign.BCC,
		ReplyTo:   campaign.ReplyTo,
	}

	res := s.dispatch(ctx, token.Value, env)
	settled = true

	if !res.Success {
		s.recordFailure(ctx, campaign.ID, r, attempt, res.Error, res.StatusCode, t)
		return
	}

	if err := s.RecipientRepo.MarkSent(ctx, r.ID, res.MessageID, mailer.ProviderName, s.now()); err != nil {
		log.Errorw("recipient_mark_sent_failed", "message_id", res.MessageID, "error", err)
	}
	s.appendEvent(ctx, campaign.ID, r.ID, model.EventSent, model.EventData{Attempt: attempt, MessageID: res.MessageID})
	metrics.RecipientsProcessed.WithLabelValues("sent").Inc()
	t.add(func(sr *SendResult) { sr.Succeeded++ })
	log.Debugw("recipient_sent", "message_id", res.MessageID)
}

// recordFailure writes the failed bookkeeping for one attempt and its retry decision.
func (s *CampaignSender) recordFailure(
	ctx context.Context,
	campaignID string,
	r *model.Recipient,
	attempt int,
	errMsg string,
	statusCode int,
	t *tally,
) {
	now := s.now()
	decision := s.Retry.Decide(attempt, r.RetryLimit(), now)
	if err := s.RecipientRepo.MarkFailed(ctx, r.ID, repository.FailureUpdate{
		Error:       errMsg,
		RetryCount:  attempt,
		FailedAt:    now,
		NextRetryAt: decision.NextRetryAt,
	}); err != nil {
		logx.L().Errorw("recipient_mark_failed_failed", "campaign_id", campaignID, "recipient_id", r.ID, "error", err)
	}
	retryCount := attempt
	willRetry := decision.WillRetry
	s.appendEvent(ctx, campaignID, r.ID, model.EventFailed, model.EventData{
		Attempt:    attempt,
		Error:      errMsg,
		RetryCount: &retryCount,
		WillRetry:  &willRetry,
	})
	metrics.RecipientsProcessed.WithLabelValues("failed").Inc()
	t.add(func(sr *SendResult) { sr.Failed++ })
	logx.L().Warnw("recipient_send_failed",
		"campaign_id", campaignID,
		"recipient_id", r.ID,
		"status_code", statusCode,
		"error", errMsg,
		"attempt", attempt,
		"will_retry", willRetry,
	)
}

func (s *CampaignSender) dispatch(ctx context.Context, accessToken string, env mailer.Envelope) mailer.Result {
	start := time.Now()
	metrics.DispatchInflight.Inc()
	defer func() {
		metrics.DispatchInflight.Dec()
		metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	}()
	return s.Mailer.Send(ctx, accessToken, env)
}

func (s *CampaignSender) appendEvent(ctx context.Context, campaignID, recipientID, eventType string, data model.EventData) {
	raw, err := json.Marshal(data)
	if err != nil {
		logx.L().Errorw("event_encode_failed", "campaign_id", campaignID, "error", err)
		return
	}
	e := &model.CampaignEvent{
		CampaignID:  campaignID,
		RecipientID: recipientID,
		EventType:   eventType,
		EventData:   raw,
		CreatedAt:   s.now(),
	}
	if err := s.EventRepo.Append(ctx, e); err != nil {
		logx.L().Errorw("event_append_failed", "campaign_id", campaignID, "recipient_id", recipientID, "event_type", eventType, "error", err)
	}
}

func (s *CampaignSender) markFailed(ctx context.Context, campaignID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.CampaignRepo.MarkCompleted(ctx, campaignID, model.CampaignFailed, s.now()); err != nil {
		logx.L().Errorw("campaign_mark_failed_error", "campaign_id", campaignID, "error", err)
	}
}

func (s *CampaignSender) batchSize() int {
	if s.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return s.BatchSize
}

func (s *CampaignSender) batchPause() time.Duration {
	if s.BatchPause < 0 {
		return 0
	}
	return s.BatchPause
}

func (s *CampaignSender) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *CampaignSender) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func splitBatches(recipients []*model.Recipient, size int) [][]*model.Recipient {
	batches := make([][]*model.Recipient, 0, (len(recipients)+size-1)/size)
	for start := 0; start < len(recipients); start += size {
		end := start + size
		if end > len(recipients) {
			end = len(recipients)
		}
		batches = append(batches, recipients[start:end])
	}
	return batches
}

func memberIDs(recipients []*model.Recipient) []string {
	seen := make(map[string]struct{}, len(recipients))
	ids := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r.MemberID == "" {
			continue
		}
		if _, ok := seen[r.MemberID]; ok {
			continue
		}
		seen[r.MemberID] = struct{}{}
		ids = append(ids, r.MemberID)
	}
	return ids
}

var _ CampaignSenderInterface = (*CampaignSender)(nil)
