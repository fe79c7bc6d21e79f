package market

import (
	"context"

	"github.com/stake-plus/escrow-market/src/api/types"
)

var reportTargets = map[string]bool{"user": true, "job": true, "bid": true, "message": true, "review": true}

func (s *Service) CreateReport(ctx context.Context, reporterID uint64, targetType string, targetID uint64, reason string) (*types.Report, error) {
	if !reportTargets[targetType] {
		return nil, invalid("unknown report target %q", targetType)
	}
	if targetID == 0 {
		return nil, invalid("target id is required")
	}
	reason = s.cleanText(reason)
	if n := len(reason); n < 10 || n > 2000 {
		return nil, invalid("reason must be between 10 and 2000 characters")
	}
	r := &types.Report{
		ReporterID: reporterID,
		TargetType: targetType,
		TargetID:   targetID,
		Reason:     reason,
		Status:     types.ReportOpen,
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) ListReports(ctx context.Context, status types.ReportStatus, p Page) (List[types.Report], error) {
	q := s.db.WithContext(ctx).Model(&types.Report{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return paginate[types.Report](q, p, "created_at DESC, id DESC")
}

func (s *Service) UpdateReport(ctx context.Context, id uint64, status types.ReportStatus, note string) (*types.Report, error) {
	switch status {
	case types.ReportOpen, types.ReportReviewed, types.ReportDismissed:
	default:
		return nil, invalid("unknown report status %q", status)
	}
	var r types.Report
	if err := s.db.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, lookupErr(err, "report")
	}
	err := s.db.WithContext(ctx).Model(&r).Updates(map[string]any{
		"status":     status,
		"admin_note": s.cleanText(note),
	}).Error
	if err != nil {
		return nil, err
	}
	r.Status = status
	r.AdminNote = s.cleanText(note)
	return &r, nil
}
