package mq

import (
	"context"
	"encoding/json"
	"time"
)

// Channels carrying report lifecycle events.
const (
	ReportCreatedChannel = "report.created"
	ReportDeletedChannel = "report.deleted"
)

// ReportEvent is the payload published when a report is created or deleted.
type ReportEvent struct {
	ReportID   string    `json:"reportId"`
	Vehicle    string    `json:"vehicle"`
	Documents  int       `json:"documents"`
	OccurredAt time.Time `json:"occurredAt"`
}

// ReportEvents publishes report lifecycle events. A nil receiver is a
// no-op so callers need no conditional wiring when events are disabled.
type ReportEvents struct {
	mq *MQ
}

// NewReportEvents constructs a publisher over the given MQ.
func NewReportEvents(mq *MQ) *ReportEvents {
	return &ReportEvents{mq: mq}
}

// ReportCreated publishes a creation event.
func (p *ReportEvents) ReportCreated(ctx context.Context, event ReportEvent) error {
	return p.publish(ctx, ReportCreatedChannel, event)
}

// ReportDeleted publishes a deletion event.
func (p *ReportEvents) ReportDeleted(ctx context.Context, event ReportEvent) error {
	return p.publish(ctx, ReportDeletedChannel, event)
}

func (p *ReportEvents) publish(ctx context.Context, channel string, event ReportEvent) error {
	if p == nil || p.mq == nil {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.mq.Publish(ctx, channel, data, map[string]string{
		"contentType": "application/json",
	})
	return err
}
