// Package listener provides a Postgres LISTEN/NOTIFY consumer for on-demand
// polls. It holds a dedicated pgx connection (not from the pool) listening on
// the `achievement_poll` channel.
//
// Anything that can reach the database can request an immediate poll:
//
//	SELECT pg_notify('achievement_poll', '{"user_id":"76561197960287930"}');
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/albapepper/achievement-watch/internal/pipeline"
)

const (
	Channel          = "achievement_poll"
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// PollRequest is the JSON payload from pg_notify('achievement_poll', ...).
type PollRequest struct {
	UserID string `json:"user_id"`
}

// Trigger runs a single-user poll. maintenance.Scheduler implements it.
type Trigger interface {
	PollUser(ctx context.Context, userID string) *pipeline.BatchReport
}

// Start opens a dedicated connection and listens on the achievement_poll
// channel. It reconnects automatically on connection loss. Blocks until ctx
// is cancelled. Intended to be called with `go`.
func Start(ctx context.Context, dbURL string, trigger Trigger, logger *slog.Logger) {
	backoff := reconnectBackoff

	q := newQueue()
	go q.run(ctx, trigger, logger)

	for {
		err := listenLoop(ctx, dbURL, q, logger)
		if ctx.Err() != nil {
			logger.Info("Poll listener stopped (context cancelled)")
			return
		}

		logger.Error("Poll listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func listenLoop(ctx context.Context, dbURL string, q *queue, logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	_, err = conn.Exec(ctx, "LISTEN "+Channel)
	if err != nil {
		return fmt.Errorf("LISTEN %s: %w", Channel, err)
	}
	logger.Info("Poll listener connected", "channel", Channel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		req, err := ParseRequest(notification.Payload)
		if err != nil {
			logger.Warn("Failed to parse poll request",
				"payload", notification.Payload, "error", err)
			continue
		}

		logger.Info("Poll request received", "user_id", req.UserID)

		if !q.push(req.UserID) {
			logger.Warn("Poll queue full, dropping request",
				"user_id", req.UserID, "max_pending", maxPending)
		}
	}
}

func handle(ctx context.Context, trigger Trigger, req PollRequest, logger *slog.Logger) {
	report := trigger.PollUser(ctx, req.UserID)
	if report == nil {
		return
	}
	logger.Info("On-demand poll finished", "user_id", req.UserID, "summary", report.Summary())
}

// ParseRequest decodes a notification payload. A bare user id is accepted as
// well as the JSON form.
func ParseRequest(payload string) (PollRequest, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return PollRequest{}, errors.New("empty payload")
	}

	var req PollRequest
	if strings.HasPrefix(payload, "{") {
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return PollRequest{}, fmt.Errorf("decode payload: %w", err)
		}
	} else {
		req.UserID = payload
	}

	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return PollRequest{}, errors.New("missing user_id")
	}
	return req, nil
}
