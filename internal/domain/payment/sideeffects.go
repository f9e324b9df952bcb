package payment

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/order"
)

// effectGroup tracks in-flight side-effect goroutines so shutdown and
// tests can wait for them to drain.
type effectGroup struct {
	wg sync.WaitGroup
}

// WaitSideEffects blocks until every dispatched side effect has finished.
func (s *Service) WaitSideEffects() {
	s.effects.wg.Wait()
}

// dispatchSideEffects runs invoice generation and notification dispatch
// for a confirmed order in the background. The coordinator observes the
// outcomes only for logging and bookkeeping: a failure here never rolls
// back or fails the reconciliation that triggered it.
func (s *Service) dispatchSideEffects(o *order.Order) {
	if s.invoices == nil && s.notifier == nil {
		return
	}

	s.effects.wg.Add(1)
	go func() {
		defer s.effects.wg.Done()

		// Detached from the request context: once an order is Paid its
		// side effects should not die with the inbound request.
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SideEffectTimeout)
		defer cancel()

		lg := s.lg.With(zap.String("order", o.ID), zap.String("number", o.Number))

		g, ctx := errgroup.WithContext(ctx)
		if s.invoices != nil {
			g.Go(func() error {
				s.generateInvoice(ctx, lg, o)
				return nil // isolated: never cancels the sibling
			})
		}
		if s.notifier != nil {
			g.Go(func() error {
				s.dispatchNotifications(ctx, lg, o)
				return nil
			})
		}
		_ = g.Wait()
	}()
}

func (s *Service) generateInvoice(ctx context.Context, lg *zap.Logger, o *order.Order) {
	path, url, err := s.invoices.Generate(ctx, o)
	if err != nil {
		lg.Warn("invoice generation failed, order remains valid", zap.Error(err))
		return
	}
	if err := s.orders.SetInvoice(ctx, o.ID, path, url); err != nil {
		lg.Warn("record invoice location", zap.Error(err))
		return
	}
	lg.Info("invoice generated", zap.String("path", path))
}

func (s *Service) dispatchNotifications(ctx context.Context, lg *zap.Logger, o *order.Order) {
	results := s.notifier.Notify(ctx, o)

	ns := o.Notifications
	ns.LastAttempt = time.Now()
	for _, r := range results {
		switch r.Channel {
		case "customer":
			ns.CustomerSent = ns.CustomerSent || r.Sent
		case "operator":
			ns.OperatorSent = ns.OperatorSent || r.Sent
		}
		if r.Err != nil {
			ns.LastError = r.Err.Error()
			lg.Warn("notification failed, order remains valid",
				zap.String("channel", r.Channel), zap.Error(r.Err))
		}
	}

	if err := s.orders.SetNotificationState(ctx, o.ID, ns); err != nil {
		lg.Warn("record notification state", zap.Error(err))
	}
}
