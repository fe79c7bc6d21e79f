package market

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stake-plus/escrow-market/src/api/realtime"
	"github.com/stake-plus/escrow-market/src/api/types"
)

type BidInput struct {
	Proposal      string
	BidAmount     decimal.Decimal
	EstimatedTime string
}

func (s *Service) cleanBid(in BidInput) (BidInput, error) {
	in.Proposal = s.cleanRich(in.Proposal)
	in.EstimatedTime = s.cleanText(in.EstimatedTime)
	if n := len(in.Proposal); n < 10 || n > 5000 {
		return in, invalid("proposal must be between 10 and 5000 characters")
	}
	if !in.BidAmount.IsPositive() {
		return in, invalid("bid amount must be positive")
	}
	if len(in.EstimatedTime) > 64 {
		return in, invalid("estimated time is too long")
	}
	return in, nil
}

// CreateBid places the freelancer's single bid on an open job.
func (s *Service) CreateBid(ctx context.Context, freelancerID, jobID uint64, in BidInput) (*types.Bid, error) {
	u, err := s.user(ctx, freelancerID)
	if err != nil {
		return nil, err
	}
	if u.Role != types.RoleFreelancer {
		return nil, forbidden("only freelancers can bid")
	}
	if in, err = s.cleanBid(in); err != nil {
		return nil, err
	}

	bid := &types.Bid{
		JobID:         jobID,
		FreelancerID:  freelancerID,
		Proposal:      in.Proposal,
		BidAmount:     in.BidAmount,
		EstimatedTime: in.EstimatedTime,
		Status:        types.BidPending,
	}
	var job types.Job
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&job, jobID).Error; err != nil {
			return lookupErr(err, "job")
		}
		if job.Status != types.JobOpen {
			return conflict("job is not accepting bids")
		}
		if job.ClientID == freelancerID {
			return forbidden("cannot bid on your own job")
		}
		var existing int64
		if err := tx.Model(&types.Bid{}).Where("job_id = ? AND freelancer_id = ?", jobID, freelancerID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return conflict("you have already bid on this job")
		}
		if err := tx.Create(bid).Error; err != nil {
			if isDuplicate(err) {
				return conflict("you have already bid on this job")
			}
			return err
		}
		job.Proposals = append(job.Proposals, types.JobProposal{
			BidID:        bid.ID,
			FreelancerID: freelancerID,
			Amount:       bid.BidAmount,
			SubmittedAt:  bid.CreatedAt,
		})
		return tx.Model(&job).Update("proposals", job.Proposals).Error
	})
	if err != nil {
		return nil, err
	}

	s.tell(ctx, job.ClientID, &freelancerID, types.NotifyBidNew,
		"New bid on \""+job.Title+"\"", jobLink(jobID))
	s.event(ctx, job.ClientID, realtime.EventBidNew, bid)
	return bid, nil
}

func (s *Service) ownedBid(ctx context.Context, freelancerID, bidID uint64) (*types.Bid, error) {
	var bid types.Bid
	if err := s.db.WithContext(ctx).First(&bid, bidID).Error; err != nil {
		return nil, lookupErr(err, "bid")
	}
	if bid.FreelancerID != freelancerID {
		return nil, forbidden("not your bid")
	}
	return &bid, nil
}

// UpdateBid edits a pending bid and keeps the previous version in History.
func (s *Service) UpdateBid(ctx context.Context, freelancerID, bidID uint64, in BidInput) (*types.Bid, error) {
	bid, err := s.ownedBid(ctx, freelancerID, bidID)
	if err != nil {
		return nil, err
	}
	if in, err = s.cleanBid(in); err != nil {
		return nil, err
	}
	history := append(bid.History, types.BidRevision{
		Proposal:      bid.Proposal,
		BidAmount:     bid.BidAmount,
		EstimatedTime: bid.EstimatedTime,
		EditedAt:      time.Now().UTC(),
	})

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&types.Bid{}).Where("id = ? AND status = ?", bidID, types.BidPending).Updates(map[string]any{
			"proposal":       in.Proposal,
			"bid_amount":     in.BidAmount,
			"estimated_time": in.EstimatedTime,
			"history":        history,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflict("only pending bids can be edited")
		}

		var job types.Job
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&job, bid.JobID).Error; err != nil {
			return lookupErr(err, "job")
		}
		for i := range job.Proposals {
			if job.Proposals[i].BidID == bidID {
				job.Proposals[i].Amount = in.BidAmount
			}
		}
		return tx.Model(&job).Update("proposals", job.Proposals).Error
	})
	if err != nil {
		return nil, err
	}
	return s.ownedBid(ctx, freelancerID, bidID)
}

func (s *Service) WithdrawBid(ctx context.Context, freelancerID, bidID uint64) error {
	bid, err := s.ownedBid(ctx, freelancerID, bidID)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&types.Bid{}).Where("id = ? AND status = ?", bidID, types.BidPending).
			Update("status", types.BidWithdrawn)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflict("only pending bids can be withdrawn")
		}
		var job types.Job
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&job, bid.JobID).Error; err != nil {
			return lookupErr(err, "job")
		}
		kept := job.Proposals[:0]
		for _, p := range job.Proposals {
			if p.BidID != bidID {
				kept = append(kept, p)
			}
		}
		return tx.Model(&job).Update("proposals", kept).Error
	})
}

// ListBidsForJob is visible to the job owner only.
func (s *Service) ListBidsForJob(ctx context.Context, clientID, jobID uint64) ([]types.Bid, error) {
	if _, err := s.ownedJob(ctx, s.db, clientID, jobID); err != nil {
		return nil, err
	}
	bids := make([]types.Bid, 0)
	err := s.db.WithContext(ctx).Preload("Freelancer").
		Where("job_id = ?", jobID).Order("created_at ASC, id ASC").Find(&bids).Error
	return bids, err
}

func (s *Service) ListMyBids(ctx context.Context, freelancerID uint64, status types.BidStatus, p Page) (List[types.Bid], error) {
	q := s.db.WithContext(ctx).Model(&types.Bid{}).Where("freelancer_id = ?", freelancerID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return paginate[types.Bid](q, p, "created_at DESC, id DESC")
}

// AcceptBid hires the freelancer: the bid is accepted, every other pending
// bid on the job is rejected and the job moves to in_progress, all in one
// transaction.
func (s *Service) AcceptBid(ctx context.Context, clientID, bidID uint64) (*types.Bid, error) {
	var (
		bid      types.Bid
		job      *types.Job
		rejected []types.Bid
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&bid, bidID).Error; err != nil {
			return lookupErr(err, "bid")
		}
		var err error
		if job, err = s.ownedJob(ctx, tx, clientID, bid.JobID); err != nil {
			return err
		}
		if job.Status != types.JobOpen {
			return conflict("job is not open")
		}

		res := tx.Model(&types.Bid{}).Where("id = ? AND status = ?", bidID, types.BidPending).
			Update("status", types.BidAccepted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflict("bid is not pending")
		}

		others := tx.Where("job_id = ? AND id <> ? AND status = ?", job.ID, bidID, types.BidPending)
		if err := others.Find(&rejected).Error; err != nil {
			return err
		}
		if err := tx.Model(&types.Bid{}).Where("job_id = ? AND id <> ? AND status = ?", job.ID, bidID, types.BidPending).
			Update("status", types.BidRejected).Error; err != nil {
			return err
		}

		res = tx.Model(&types.Job{}).Where("id = ? AND status = ?", job.ID, types.JobOpen).Updates(map[string]any{
			"status":              types.JobInProgress,
			"hired_freelancer_id": bid.FreelancerID,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflict("job is not open")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	bid.Status = types.BidAccepted

	s.tell(ctx, bid.FreelancerID, &clientID, types.NotifyBidAccepted,
		"Your bid on \""+job.Title+"\" was accepted", jobLink(job.ID))
	s.tell(ctx, bid.FreelancerID, &clientID, types.NotifyJobHired,
		"You were hired for \""+job.Title+"\"", jobLink(job.ID))
	s.event(ctx, bid.FreelancerID, realtime.EventJobHired, map[string]uint64{"jobId": job.ID, "bidId": bid.ID})
	for _, r := range rejected {
		s.tell(ctx, r.FreelancerID, &clientID, types.NotifyBidRejected,
			"Another freelancer was hired for \""+job.Title+"\"", jobLink(job.ID))
	}
	return &bid, nil
}

func (s *Service) RejectBid(ctx context.Context, clientID, bidID uint64) error {
	var bid types.Bid
	if err := s.db.WithContext(ctx).First(&bid, bidID).Error; err != nil {
		return lookupErr(err, "bid")
	}
	job, err := s.ownedJob(ctx, s.db, clientID, bid.JobID)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&types.Bid{}).Where("id = ? AND status = ?", bidID, types.BidPending).
		Update("status", types.BidRejected)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return conflict("bid is not pending")
	}
	s.tell(ctx, bid.FreelancerID, &clientID, types.NotifyBidRejected,
		"Your bid on \""+job.Title+"\" was declined", jobLink(job.ID))
	return nil
}
