// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package events publishes security events for out-of-process consumers
// such as alerting or audit pipelines.
//
// # Delivery
//
// Publishing is fire-and-forget: a failed publish is logged by the caller and
// never fails the request that produced the event.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher sends a JSON-encoded payload to a subject.
type Publisher interface {
	Publish(context context.Context, subject string, payload any) error
}

// AccountLocked is emitted when an account crosses the failed-attempt threshold.
type AccountLocked struct {
	UserID         string    `json:"user_id"`
	FailedAttempts int       `json:"failed_attempts"`
	LockedUntil    time.Time `json:"locked_until"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// # NATS

// NATSPublisher publishes on core NATS subjects.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to the given NATS endpoint.
func NewNATSPublisher(url string, logger *slog.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("gatekeeper-api"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats_disconnected", slog.Any("error", err))
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logger.Info("nats_reconnected", slog.String("url", conn.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("events: nats connect failed: %w", err)
	}

	logger.Info("nats_connected", slog.String("url", conn.ConnectedUrl()))
	return &NATSPublisher{conn: conn}, nil
}

// Publish encodes payload as JSON and publishes it.
func (publisher *NATSPublisher) Publish(context context.Context, subject string, payload any) error {
	if publisher == nil || publisher.conn == nil {
		return errors.New("events: nil nats publisher")
	}
	if err := context.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal failed: %w", err)
	}

	if err := publisher.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("events: publish %s failed: %w", subject, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (publisher *NATSPublisher) Close() {
	if publisher == nil || publisher.conn == nil {
		return
	}
	if err := publisher.conn.Drain(); err != nil {
		publisher.conn.Close()
	}
}

// # Log Fallback

// LogPublisher writes events to the structured log when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a publisher backed by logger.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the subject and payload at info level.
func (publisher *LogPublisher) Publish(context context.Context, subject string, payload any) error {
	publisher.logger.InfoContext(context, "security_event",
		slog.String("subject", subject),
		slog.Any("payload", payload),
	)
	return nil
}
