package deliveries

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/swiftdrop/swiftdrop-backend/pkg/enums"
)

// EarningsSummary rolls up a courier's payouts. Earned money counts only
// delivered packages; pending covers claims still in flight.
type EarningsSummary struct {
	TotalEarned    decimal.Decimal `json:"total_earned"`
	PendingPayout  decimal.Decimal `json:"pending_payout"`
	CompletedCount int             `json:"completed_count"`
	ActiveCount    int             `json:"active_count"`
}

// PlatformStats is the admin dashboard rollup across all deliveries. Money
// totals count delivered packages only, since the split is not realized until
// the package lands.
type PlatformStats struct {
	TotalDeliveries int             `json:"total_deliveries"`
	ByStatus        map[string]int  `json:"by_status"`
	GrossVolume     decimal.Decimal `json:"gross_volume"`
	PlatformRevenue decimal.Decimal `json:"platform_revenue"`
	CourierPayouts  decimal.Decimal `json:"courier_payouts"`
}

// Earnings summarizes what the courier has earned and what their active
// claims would pay out.
func (s *service) Earnings(ctx context.Context, courierID string) (*EarningsSummary, error) {
	completed, err := s.repo.ForCourier(ctx, courierID, enums.DeliveryStatusDelivered)
	if err != nil {
		return nil, err
	}
	active, err := s.repo.ForCourier(ctx, courierID,
		enums.DeliveryStatusAccepted, enums.DeliveryStatusPickedUp, enums.DeliveryStatusInTransit)
	if err != nil {
		return nil, err
	}

	summary := &EarningsSummary{
		CompletedCount: len(completed),
		ActiveCount:    len(active),
	}
	for _, d := range completed {
		summary.TotalEarned = summary.TotalEarned.Add(d.CourierPayout)
	}
	for _, d := range active {
		summary.PendingPayout = summary.PendingPayout.Add(d.CourierPayout)
	}
	return summary, nil
}

// Stats computes the platform-wide delivery and revenue rollup.
func (s *service) Stats(ctx context.Context) (*PlatformStats, error) {
	all, err := s.repo.All(ctx)
	if err != nil {
		return nil, err
	}

	stats := &PlatformStats{
		TotalDeliveries: len(all),
		ByStatus:        make(map[string]int),
	}
	for _, d := range all {
		stats.ByStatus[d.Status.String()]++
		if d.Status != enums.DeliveryStatusDelivered {
			continue
		}
		stats.GrossVolume = stats.GrossVolume.Add(d.OfferedPrice)
		stats.PlatformRevenue = stats.PlatformRevenue.Add(d.PlatformFee)
		stats.CourierPayouts = stats.CourierPayouts.Add(d.CourierPayout)
	}
	return stats, nil
}
