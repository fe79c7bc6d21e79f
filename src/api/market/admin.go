package market

import (
	"context"

	"github.com/stake-plus/escrow-market/src/api/escrow"
	"github.com/stake-plus/escrow-market/src/api/types"
)

func (s *Service) ListDisputes(ctx context.Context, includeResolved bool, p Page) (List[types.Contract], error) {
	q := s.db.WithContext(ctx).Model(&types.Contract{})
	if includeResolved {
		// a refund only counts when it ended a dispute
		q = q.Where("status IN ? OR (status = ? AND dispute_details LIKE ?)",
			[]escrow.Status{escrow.StatusDisputed, escrow.StatusResolved}, escrow.StatusRefunded, `%"raisedBy"%`)
	} else {
		q = q.Where("status = ?", escrow.StatusDisputed)
	}
	return paginate[types.Contract](q, p, "updated_at ASC, id ASC")
}

type Stats struct {
	Users        map[types.Role]int64         `json:"users"`
	Jobs         map[types.JobStatus]int64    `json:"jobs"`
	Bids         map[types.BidStatus]int64    `json:"bids"`
	Contracts    map[escrow.Status]int64      `json:"contracts"`
	Reports      map[types.ReportStatus]int64 `json:"reports"`
	PendingSyncs int64                        `json:"pendingSyncs"`
	StoredFiles  int64                        `json:"storedFiles"`
	ChainEnabled bool                         `json:"chainEnabled"`
}

type statusCount struct {
	Key string
	N   int64
}

// Stats counts rows by status for the admin dashboard.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	out := &Stats{ChainEnabled: s.ChainEnabled()}

	count := func(model any, column string) ([]statusCount, error) {
		var rows []statusCount
		err := s.db.WithContext(ctx).Model(model).
			Select(column + " AS `key`, COUNT(*) AS n").
			Group(column).
			Scan(&rows).Error
		return rows, err
	}

	users, err := count(&types.User{}, "role")
	if err != nil {
		return nil, err
	}
	out.Users = fold[types.Role](users)

	jobs, err := count(&types.Job{}, "status")
	if err != nil {
		return nil, err
	}
	out.Jobs = fold[types.JobStatus](jobs)

	bids, err := count(&types.Bid{}, "status")
	if err != nil {
		return nil, err
	}
	out.Bids = fold[types.BidStatus](bids)

	contracts, err := count(&types.Contract{}, "status")
	if err != nil {
		return nil, err
	}
	out.Contracts = fold[escrow.Status](contracts)

	reports, err := count(&types.Report{}, "status")
	if err != nil {
		return nil, err
	}
	out.Reports = fold[types.ReportStatus](reports)

	if err := s.db.WithContext(ctx).Model(&types.Contract{}).Where("needs_sync = ?", true).Count(&out.PendingSyncs).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&types.StoredFile{}).Count(&out.StoredFiles).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func fold[K ~string](rows []statusCount) map[K]int64 {
	m := make(map[K]int64, len(rows))
	for _, r := range rows {
		m[K(r.Key)] = r.N
	}
	return m
}
