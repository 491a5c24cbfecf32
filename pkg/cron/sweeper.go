// Package cron runs the gateway's scheduled maintenance jobs.
package cron

import (
	"context"
	"time"

	"github.com/adhocore/gronx"

	"github.com/pasarlink/gateway/pkg/app"
	"github.com/pasarlink/gateway/pkg/domain/order"
	"github.com/pasarlink/gateway/pkg/logger"
	"github.com/pasarlink/gateway/pkg/transport"
)

const component = "sweeper"

const replyExpired = "Pesanan Anda kedaluwarsa karena belum dikonfirmasi. Silakan kirim pesanan baru jika masih berminat."

// Sweeper cancels PENDING orders that were never confirmed within the TTL.
// It ticks every minute and fires when the cron expression is due.
type Sweeper struct {
	orders    *app.OrderService
	repo      order.Repository
	sender    transport.Sender
	connected func() bool

	expr string
	ttl  time.Duration
	gron *gronx.Gronx
}

// NewSweeper wires the stale-order job. connected gates customer
// notifications; expiry itself runs regardless of session state.
func NewSweeper(orders *app.OrderService, repo order.Repository, sender transport.Sender, connected func() bool, expr string, ttl time.Duration) *Sweeper {
	return &Sweeper{
		orders:    orders,
		repo:      repo,
		sender:    sender,
		connected: connected,
		expr:      expr,
		ttl:       ttl,
		gron:      gronx.New(),
	}
}

// Start runs the sweep loop until ctx is cancelled. Call in a goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	logger.InfoCF(component, "stale order sweeper started", map[string]interface{}{
		"schedule": s.expr,
		"ttl":      s.ttl.String(),
	})

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := s.gron.IsDue(s.expr, now)
			if err != nil {
				logger.ErrorCF(component, "invalid sweep schedule", map[string]interface{}{
					"schedule": s.expr,
					"error":    err.Error(),
				})
				return
			}
			if due {
				s.Sweep(ctx, now)
			}
		}
	}
}

// Sweep expires every pending order older than the TTL and notifies the
// customer when the session is connected.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) {
	pending, err := s.repo.FindByStatus(order.StatusPending)
	if err != nil {
		logger.ErrorCF(component, "failed to list pending orders", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	cutoff := now.Add(-s.ttl)
	expired := 0
	for _, o := range pending {
		if !o.CreatedAt.Before(cutoff) {
			continue
		}
		if err := s.orders.ExpireOrder(o); err != nil {
			logger.ErrorCF(component, "failed to expire order", map[string]interface{}{
				"order_id": string(o.ID()),
				"error":    err.Error(),
			})
			continue
		}
		expired++

		if s.connected == nil || !s.connected() {
			continue
		}
		if err := s.sender.SendText(ctx, o.CustomerPhone, replyExpired); err != nil {
			logger.WarnCF(component, "failed to notify customer of expiry", map[string]interface{}{
				"customer_phone": o.CustomerPhone,
				"error":          err.Error(),
			})
		}
	}

	if expired > 0 {
		logger.InfoCF(component, "sweep completed", map[string]interface{}{
			"expired": expired,
		})
	}
}
