package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/notifygov/delivery-engine/internal/domain"
)

// Queue is a durable at-least-once buffer between a producer and one or more
// consumer workers.
//
// Poll hands out a batch under a receipt; the batch stays in an in-flight list
// until Acknowledge deletes it. In-flight lists whose receipt is never
// acknowledged are swept back into the inbox by the Reclaimer after the
// visibility timeout.
type Queue interface {
	Publish(ctx context.Context, item any) error
	Poll(ctx context.Context, count int) (uuid.UUID, [][]byte, error)
	Acknowledge(ctx context.Context, receipt uuid.UUID) error
}

// Dedicated lanes besides the priority-tier delivery lanes.
const (
	LaneReceipts  = "receipts"
	LaneRetry     = "retry"
	LaneCallbacks = "callbacks"
)

var deliveryPriorities = []domain.Priority{
	domain.PriorityBulk,
	domain.PriorityNormal,
	domain.PriorityHigh,
}

var deliveryTypes = []domain.NotificationType{
	domain.TypeSMS,
	domain.TypeEmail,
	domain.TypeLetter,
}

// DeliveryLane returns the lane name for a priority tier and channel, e.g.
// normal.sms.
func DeliveryLane(priority domain.Priority, notificationType domain.NotificationType) string {
	return fmt.Sprintf("%s.%s", priority, notificationType)
}

// DeliveryLanes returns all priority x channel delivery lanes (9 total).
func DeliveryLanes() []string {
	lanes := make([]string, 0, len(deliveryPriorities)*len(deliveryTypes))
	for _, priority := range deliveryPriorities {
		for _, notificationType := range deliveryTypes {
			lanes = append(lanes, DeliveryLane(priority, notificationType))
		}
	}
	return lanes
}

// AllLanes returns every lane the engine consumes.
func AllLanes() []string {
	lanes := DeliveryLanes()
	return append(lanes, LaneReceipts, LaneRetry, LaneCallbacks)
}
