package services

import (
	"context"
	"time"

	"kixikila/internal/config"
	"kixikila/internal/logging"
	"kixikila/internal/metrics"
)

// Each cleanup step deletes or expires rows older than a cutoff.
type (
	OTPCleaner interface {
		DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
	}
	WebhookCleaner interface {
		DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}
	NotificationCleaner interface {
		DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}
	VIPExpirer interface {
		ExpireVIP(ctx context.Context, now time.Time) (int64, error)
	}
	PaymentExpirer interface {
		ExpireStalePayments(ctx context.Context, cutoff time.Time) (int64, error)
	}
)

type CleanupService struct {
	otps          OTPCleaner
	webhooks      WebhookCleaner
	notifications NotificationCleaner
	vip           VIPExpirer
	payments      PaymentExpirer
	otpGrace      time.Duration
	cfg           config.CleanupConfig
	now           func() time.Time
}

func NewCleanupService(otps OTPCleaner, webhooks WebhookCleaner, notifications NotificationCleaner, vip VIPExpirer, payments PaymentExpirer, otpGrace time.Duration, cfg config.CleanupConfig) *CleanupService {
	return &CleanupService{
		otps:          otps,
		webhooks:      webhooks,
		notifications: notifications,
		vip:           vip,
		payments:      payments,
		otpGrace:      otpGrace,
		cfg:           cfg,
		now:           time.Now,
	}
}

type CleanupReport struct {
	OTPCodes      int64     `json:"otp_codes"`
	WebhookEvents int64     `json:"webhook_events"`
	Notifications int64     `json:"notifications"`
	VIPExpired    int64     `json:"vip_expired"`
	StalePayments int64     `json:"stale_payments"`
	RanAt         time.Time `json:"ran_at"`
}

func (s *CleanupService) Run(ctx context.Context) (CleanupReport, error) {
	now := s.now()
	report := CleanupReport{RanAt: now}
	var err error
	if report.OTPCodes, err = s.otps.DeleteExpired(ctx, now.Add(-s.otpGrace)); err != nil {
		return report, err
	}
	if report.WebhookEvents, err = s.webhooks.DeleteBefore(ctx, now.Add(-s.cfg.WebhookRetention)); err != nil {
		return report, err
	}
	if report.Notifications, err = s.notifications.DeleteReadBefore(ctx, now.Add(-s.cfg.ReadNotificationRetention)); err != nil {
		return report, err
	}
	if report.VIPExpired, err = s.vip.ExpireVIP(ctx, now); err != nil {
		return report, err
	}
	if s.cfg.PendingPaymentTTL > 0 {
		if report.StalePayments, err = s.payments.ExpireStalePayments(ctx, now.Add(-s.cfg.PendingPaymentTTL)); err != nil {
			return report, err
		}
	}
	metrics.CleanupRemoved.WithLabelValues("otp_codes").Add(float64(report.OTPCodes))
	metrics.CleanupRemoved.WithLabelValues("webhook_events").Add(float64(report.WebhookEvents))
	metrics.CleanupRemoved.WithLabelValues("notifications").Add(float64(report.Notifications))
	metrics.CleanupRemoved.WithLabelValues("vip_expired").Add(float64(report.VIPExpired))
	metrics.CleanupRemoved.WithLabelValues("stale_payments").Add(float64(report.StalePayments))
	logging.Ctx(ctx).Info().
		Int64("otp_codes", report.OTPCodes).
		Int64("webhook_events", report.WebhookEvents).
		Int64("notifications", report.Notifications).
		Int64("vip_expired", report.VIPExpired).
		Int64("stale_payments", report.StalePayments).
		Msg("cleanup finished")
	return report, nil
}

// Serve runs cleanup on the configured interval until ctx ends.
func (s *CleanupService) Serve(ctx context.Context) error {
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				logging.Ctx(ctx).Error().Err(err).Msg("cleanup failed")
			}
		}
	}
}

func (s *CleanupService) String() string {
	return "cleanup"
}
