package consumers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/stan.go"

	"coachbook/internal/models"
)

// Mailer is the transactional email sink.
type Mailer interface {
	Send(ctx context.Context, to, subject, html, text string) error
}

// CoachDirectory resolves coach contact details.
type CoachDirectory interface {
	GetByID(ctx context.Context, id int64) (*models.Coach, error)
}

// Subscriber is the durable queue-subscription surface of the NATS client.
type Subscriber interface {
	SubscribeQueue(subject, queue string, handler stan.MsgHandler) (stan.Subscription, error)
}

// NotificationConsumer turns lifecycle events into emails. It runs as a queue
// group so a worker fleet delivers each notification once. Client-side
// recipients are addressed by user id; the notification service owns the
// mapping to a mailbox.
type NotificationConsumer struct {
	mailer        Mailer
	coaches       CoachDirectory
	operatorEmail string
	subs          []stan.Subscription
}

const notificationQueue = "notifications"

func NewNotificationConsumer(mailer Mailer, coaches CoachDirectory, operatorEmail string) *NotificationConsumer {
	return &NotificationConsumer{
		mailer:        mailer,
		coaches:       coaches,
		operatorEmail: operatorEmail,
	}
}

func (nc *NotificationConsumer) Start(sub Subscriber) error {
	handlers := map[string]stan.MsgHandler{
		models.EventBookingCreated:   nc.onBookingCreated,
		models.EventBookingAccepted:  nc.onBookingAccepted,
		models.EventBookingDeclined:  nc.onBookingDeclined,
		models.EventBookingCancelled: nc.onBookingCancelled,
		models.EventBookingCompleted: nc.onBookingCompleted,
		models.EventPayoutIssued:     nc.onPayoutIssued,
		models.EventDisputeOpened:    nc.onDisputeOpened,
	}

	for subject, handler := range handlers {
		s, err := sub.SubscribeQueue(subject, notificationQueue, handler)
		if err != nil {
			nc.Stop()
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		nc.subs = append(nc.subs, s)
	}

	slog.Info("Notification consumer started", "subjects", len(handlers))
	return nil
}

func (nc *NotificationConsumer) Stop() {
	for _, s := range nc.subs {
		if err := s.Close(); err != nil {
			slog.Error("Failed to close subscription", "error", err)
		}
	}
	nc.subs = nil
}

func userAddress(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

func (nc *NotificationConsumer) send(to, subject, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := nc.mailer.Send(ctx, to, subject, "", text); err != nil {
		slog.Error("Failed to send notification", "to", to, "subject", subject, "error", err)
	}
}

func (nc *NotificationConsumer) coachEmail(coachID int64) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	coach, err := nc.coaches.GetByID(ctx, coachID)
	if err != nil || coach == nil {
		slog.Error("Failed to resolve coach for notification", "coach_id", coachID, "error", err)
		return "", false
	}
	return coach.Email, true
}

func (nc *NotificationConsumer) onBookingCreated(msg *stan.Msg) {
	var ev models.BookingCreatedEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		slog.Error("Malformed booking.created event", "error", err)
		return
	}

	if email, ok := nc.coachEmail(ev.CoachID); ok {
		nc.send(email, "New booking request",
			fmt.Sprintf("You have a new %s booking request for %s. Accept or decline it in your dashboard.",
				ev.Type, ev.StartAt.Format(time.RFC1123)))
	}
}

func (nc *NotificationConsumer) onBookingAccepted(msg *stan.Msg) {
	var ev models.BookingAcceptedEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		slog.Error("Malformed booking.accepted event", "error", err)
		return
	}

	nc.send(userAddress(ev.CounterpartyID), "Booking accepted",
		fmt.Sprintf("Your booking #%d was accepted. Complete payment before %s to keep your slot.",
			ev.BookingID, ev.PaymentDueAt.Format(time.RFC1123)))
}

func (nc *NotificationConsumer) onBookingDeclined(msg *stan.Msg) {
	var ev models.BookingDeclinedEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		slog.Error("Malformed booking.declined event", "error", err)
		return
	}

	nc.send(userAddress(ev.CounterpartyID), "Booking declined",
		fmt.Sprintf("Your booking request #%d was declined by the coach.", ev.BookingID))
}

func (nc *NotificationConsumer) onBookingCancelled(msg *stan.Msg) {
	var ev models.BookingCancelledEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		slog.Error("Malformed booking.cancelled event", "error", err)
		return
	}

	body := fmt.Sprintf("Booking #%d was cancelled.", ev.BookingID)
	if ev.Reason != "" {
		body = fmt.Sprintf("Booking #%d was cancelled: %s", ev.BookingID, ev.Reason)
	}

	nc.send(userAddress(ev.CounterpartyID), "Booking cancelled", body)
	if email, ok := nc.coachEmail(ev.CoachID); ok {
		nc.send(email, "Booking cancelled", body)
	}
}

func (nc *NotificationConsumer) onBookingCompleted(msg *stan.Msg) {
	var ev models.BookingCompletedEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		slog.Error("Malformed booking.completed event", "error", err)
		return
	}

	if email, ok := nc.coachEmail(ev.CoachID); ok {
		nc.send(email, "Session completed",
			fmt.Sprintf("Booking #%d is confirmed complete. Your payout is ready to be issued.", ev.BookingID))
	}
}

func (nc *NotificationConsumer) onPayoutIssued(msg *stan.Msg) {
	var ev models.PayoutIssuedEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		slog.Error("Malformed payout.issued event", "error", err)
		return
	}

	if email, ok := nc.coachEmail(ev.CoachID); ok {
		nc.send(email, "Payout on the way",
			fmt.Sprintf("A payout of %d.%02d for booking #%d has been issued (ref %s).",
				ev.AmountCents/100, ev.AmountCents%100, ev.BookingID, ev.TransferRef))
	}
}

func (nc *NotificationConsumer) onDisputeOpened(msg *stan.Msg) {
	var ev models.DisputeOpenedEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		slog.Error("Malformed dispute.opened event", "error", err)
		return
	}

	nc.send(nc.operatorEmail, "Payment dispute opened",
		fmt.Sprintf("A dispute was opened on booking #%d: %s. The booking is frozen pending investigation.",
			ev.BookingID, ev.Reason))
}
