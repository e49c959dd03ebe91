// Package worker answers active-configuration requests from the voice
// backend over NATS.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/kdu3142/old-Iara/internal/settings"
)

const handleMessageTimeout = 10 * time.Second

const (
	logFmtListening     = "Answering active configuration requests on %s"
	logFmtLoadFailed    = "Failed to load active configuration: %v"
	logFmtReplyFailed   = "Failed to reply to configuration request %s: %v"
	logFmtNoReplySubj   = "Ignoring configuration request without a reply subject"
	logFmtBadRequestHdr = "Ignoring undecodable request header: %v"
)

// StoreLoader loads the canonical settings store. settings.FileStore
// implements it.
type StoreLoader interface {
	Load(ctx context.Context) (settings.Store, error)
}

// ActiveConfigRequest is the optional request body. An empty body is valid.
type ActiveConfigRequest struct {
	Header events.EventHeader `json:"header"`
}

// ActiveConfigReply carries the sanitized values of the active preset.
type ActiveConfigReply struct {
	Header     events.EventHeader `json:"header"`
	PresetID   string             `json:"presetId"`
	PresetName string             `json:"presetName"`
	Values     settings.Values    `json:"values"`
	Error      string             `json:"error,omitempty"`
}

// NatsWorker responds to active-configuration requests.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	store          StoreLoader
	log            *logger.Logger
	now            func() time.Time
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	store StoreLoader,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		store:          store,
		log:            log,
		now:            time.Now,
	}
}

// Run subscribes and answers requests until ctx is cancelled, then drains.
// ready, when non-nil, is closed once the subscription is registered.
func (w *NatsWorker) Run(ctx context.Context, ready chan<- struct{}) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	flushErr := w.natsConnection.Flush()
	if flushErr != nil {
		_ = sub.Unsubscribe()

		return fmt.Errorf("failed to flush subscription to %s: %w", w.subject, flushErr)
	}

	w.log.Info(logFmtListening, w.subject)

	if ready != nil {
		close(ready)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	if msg.Reply == "" {
		w.log.Warn(logFmtNoReplySubj)

		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	reply := w.buildReply(ctx, w.parseRequest(msg))

	err := w.publishReply(msg, reply)
	if err != nil {
		w.log.Error(logFmtReplyFailed, reply.Header.EventID, err)
	}
}

// buildReply never fails: a load error is reported in the reply body.
func (w *NatsWorker) buildReply(ctx context.Context, request ActiveConfigRequest) ActiveConfigReply {
	reply := ActiveConfigReply{
		Header: events.EventHeader{
			Timestamp:  w.now(),
			WorkflowID: request.Header.WorkflowID,
			EventID:    uuid.NewString(),
			UserID:     request.Header.UserID,
			TenantID:   request.Header.TenantID,
		},
	}

	store, err := w.store.Load(ctx)
	if err != nil {
		w.log.Error(logFmtLoadFailed, err)

		reply.Values = settings.Defaults()
		reply.Error = err.Error()

		return reply
	}

	preset, ok := store.Active()
	if !ok {
		reply.Values = settings.ActiveValues(store)

		return reply
	}

	reply.PresetID = preset.ID
	reply.PresetName = preset.Name
	reply.Values = preset.Values

	return reply
}

func (w *NatsWorker) parseRequest(msg *nats.Msg) ActiveConfigRequest {
	var request ActiveConfigRequest

	if len(msg.Data) == 0 {
		return request
	}

	err := json.Unmarshal(msg.Data, &request)
	if err != nil {
		w.log.Warn(logFmtBadRequestHdr, err)

		return ActiveConfigRequest{}
	}

	return request
}

func (w *NatsWorker) publishReply(msg *nats.Msg, reply ActiveConfigReply) error {
	replyData, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply: %w", err)
	}

	return nil
}
