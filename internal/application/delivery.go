package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/devbot/internal/domain/port/driven"
)

// ErrNoDestinations is returned when a delivery is attempted with an empty
// destination list.
var ErrNoDestinations = errors.New("no delivery destinations configured")

// TextSender is the slice of the session manager the delivery service needs.
type TextSender interface {
	SendToMany(ctx context.Context, destinations []string, text string) (successes, failures int)
}

// DeliveryService assembles one day's delivery: it asks the content provider
// for today's text and fans it out to the configured destinations. It is the
// task the DeliveryScheduler drives.
type DeliveryService struct {
	content      driven.ContentProvider
	sender       TextSender
	destinations []string
	logger       *slog.Logger
}

// NewDeliveryService creates a DeliveryService.
func NewDeliveryService(content driven.ContentProvider, sender TextSender, destinations []string, logger *slog.Logger) *DeliveryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeliveryService{
		content:      content,
		sender:       sender,
		destinations: destinations,
		logger:       logger,
	}
}

// DeliverToday sends today's content. A date with no content is not a
// failure: there is nothing to deliver, and retrying would not change that.
// The delivery fails when every destination fails; partial delivery counts
// as success and is logged.
func (s *DeliveryService) DeliverToday(ctx context.Context) error {
	return s.DeliverFor(ctx, time.Now())
}

// DeliverFor sends the content for an arbitrary date. Used by DeliverToday
// and by manual administrative triggers.
func (s *DeliveryService) DeliverFor(ctx context.Context, date time.Time) error {
	if len(s.destinations) == 0 {
		return ErrNoDestinations
	}

	text, ok, err := s.content.ContentForDate(ctx, date)
	if err != nil {
		return fmt.Errorf("load content for %s: %w", date.Format("2006-01-02"), err)
	}
	if !ok {
		s.logger.Warn("no content for date, nothing to deliver", "date", date.Format("2006-01-02"))
		return nil
	}

	successes, failures := s.sender.SendToMany(ctx, s.destinations, text)
	if successes == 0 {
		return fmt.Errorf("delivery failed for all %d destinations", failures)
	}
	if failures > 0 {
		s.logger.Warn("partial delivery",
			"date", date.Format("2006-01-02"),
			"delivered", successes,
			"failed", failures,
		)
	} else {
		s.logger.Info("delivery complete", "date", date.Format("2006-01-02"), "delivered", successes)
	}
	return nil
}
