package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"example.com/backstage/services/drafts/config"
	"example.com/backstage/services/drafts/internal/draft"
	"example.com/backstage/services/drafts/internal/models"
)

const source = "drafts"

// sender is the part of *azservicebus.Sender used here
type sender interface {
	SendMessage(ctx context.Context, message *azservicebus.Message, options *azservicebus.SendMessageOptions) error
	Close(ctx context.Context) error
}

// receiver is the part of *azservicebus.Receiver used here
type receiver interface {
	ReceiveMessages(ctx context.Context, maxMessages int, options *azservicebus.ReceiveMessagesOptions) ([]*azservicebus.ReceivedMessage, error)
	CompleteMessage(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.CompleteMessageOptions) error
	AbandonMessage(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.AbandonMessageOptions) error
	DeadLetterMessage(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.DeadLetterOptions) error
	Close(ctx context.Context) error
}

// NewClient creates a Service Bus client from the connection string
func NewClient(cfg config.AzureConfig) (*azservicebus.Client, error) {
	if cfg.QueueConnStr == "" {
		return nil, errors.New("azure service bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}
	return client, nil
}

// Submitter publishes flattened drafts to the submission queue. It satisfies
// draft.Submitter.
type Submitter struct {
	sender sender
	queue  string
	now    func() time.Time
}

// NewSubmitter creates a sender for the configured queue
func NewSubmitter(client *azservicebus.Client, queue string) (*Submitter, error) {
	s, err := client.NewSender(queue, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus sender")
	}
	return newSubmitter(s, queue), nil
}

func newSubmitter(s sender, queue string) *Submitter {
	return &Submitter{sender: s, queue: queue, now: time.Now}
}

// Submit sends the draft. The receipt id identifies the queued submission.
func (s *Submitter) Submit(ctx context.Context, sub draft.Submission) (draft.Receipt, error) {
	msg := models.SubmissionMessage{
		ID:          uuid.New(),
		SubmittedAt: s.now().UTC(),
		Submission:  sub,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return draft.Receipt{}, errors.Wrap(err, "failed to marshal submission")
	}

	id := msg.ID.String()
	contentType := "application/json"
	err = s.sender.SendMessage(ctx, &azservicebus.Message{
		MessageID:   &id,
		ContentType: &contentType,
		Body:        data,
		ApplicationProperties: map[string]interface{}{
			"source":     source,
			"draft_type": string(sub.Context.Type),
			"time":       msg.SubmittedAt.Format(time.RFC3339),
		},
	}, nil)
	if err != nil {
		return draft.Receipt{}, errors.Wrapf(err, "failed to send submission to %s", s.queue)
	}

	return draft.Receipt{Success: true, Message: "submission queued", ID: id}, nil
}

// Close closes the sender
func (s *Submitter) Close(ctx context.Context) error {
	return s.sender.Close(ctx)
}

// Handler processes one decoded submission
type Handler func(ctx context.Context, msg models.SubmissionMessage) error

// Consumer reads submissions from the queue
type Consumer struct {
	receiver    receiver
	maxMessages int
	retryDelay  time.Duration
	logger      zerolog.Logger
}

// NewConsumer creates a peek-lock receiver for the queue
func NewConsumer(client *azservicebus.Client, queue string, maxMessages int, logger zerolog.Logger) (*Consumer, error) {
	r, err := client.NewReceiverForQueue(queue, &azservicebus.ReceiverOptions{
		ReceiveMode: azservicebus.ReceiveModePeekLock,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create receiver for queue %s", queue)
	}
	return newConsumer(r, maxMessages, logger.With().Str("queue", queue).Logger()), nil
}

func newConsumer(r receiver, maxMessages int, logger zerolog.Logger) *Consumer {
	if maxMessages <= 0 {
		maxMessages = 10
	}
	return &Consumer{
		receiver:    r,
		maxMessages: maxMessages,
		retryDelay:  2 * time.Second,
		logger:      logger,
	}
}

// Run receives messages until ctx is cancelled. Undecodable messages are
// dead-lettered; handler failures are abandoned so they are redelivered.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	defer func() {
		if err := c.receiver.Close(context.Background()); err != nil {
			c.logger.Error().Err(err).Msg("failed to close receiver")
		}
	}()

	for {
		messages, err := c.receiver.ReceiveMessages(ctx, c.maxMessages, nil)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			c.logger.Error().Err(err).Msg("error receiving messages")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
			continue
		}

		for _, m := range messages {
			c.process(ctx, m, handle)
		}
	}
}

func (c *Consumer) process(ctx context.Context, m *azservicebus.ReceivedMessage, handle Handler) {
	logger := c.logger.With().Str("message_id", m.MessageID).Logger()

	var msg models.SubmissionMessage
	if err := json.Unmarshal(m.Body, &msg); err != nil {
		logger.Error().Err(err).Msg("dead-lettering undecodable submission")
		c.deadLetter(ctx, m, "DecodeError", err)
		return
	}

	if err := handle(ctx, msg); err != nil {
		if errors.Is(err, models.ErrInvalidSubmission) {
			logger.Error().Err(err).Msg("dead-lettering invalid submission")
			c.deadLetter(ctx, m, "InvalidSubmission", err)
			return
		}
		logger.Error().Err(err).Msg("error processing submission")
		if err := c.receiver.AbandonMessage(ctx, m, nil); err != nil {
			logger.Error().Err(err).Msg("failed to abandon message")
		}
		return
	}

	if err := c.receiver.CompleteMessage(ctx, m, nil); err != nil {
		logger.Error().Err(err).Msg("failed to complete message")
	}
}

func (c *Consumer) deadLetter(ctx context.Context, m *azservicebus.ReceivedMessage, reason string, cause error) {
	desc := cause.Error()
	if err := c.receiver.DeadLetterMessage(ctx, m, &azservicebus.DeadLetterOptions{
		Reason:           &reason,
		ErrorDescription: &desc,
	}); err != nil {
		c.logger.Error().Err(err).Str("message_id", m.MessageID).Msg("failed to dead-letter message")
	}
}
