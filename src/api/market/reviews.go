package market

import (
	"context"
	"fmt"

	"github.com/stake-plus/escrow-market/src/api/escrow"
	"github.com/stake-plus/escrow-market/src/api/types"
)

type ReviewInput struct {
	ContractID uint64
	Rating     int
	Comment    string
}

// CreateReview lets a party of a finished contract review the other party
// once.
func (s *Service) CreateReview(ctx context.Context, reviewerID uint64, in ReviewInput) (*types.Review, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, invalid("rating must be between 1 and 5")
	}
	comment := s.cleanText(in.Comment)
	if len(comment) > 2000 {
		return nil, invalid("comment must be at most 2000 characters")
	}
	c, err := s.contract(ctx, in.ContractID)
	if err != nil {
		return nil, err
	}
	if !isParty(c, reviewerID) {
		return nil, forbidden("not a party to this contract")
	}
	if c.Status != escrow.StatusCompleted && c.Status != escrow.StatusResolved {
		return nil, conflict("contract is not finished")
	}

	r := &types.Review{
		ContractID: c.ID,
		ReviewerID: reviewerID,
		RevieweeID: counterparty(c, reviewerID),
		Rating:     uint8(in.Rating),
		Comment:    comment,
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		if isDuplicate(err) {
			return nil, conflict("you already reviewed this contract")
		}
		return nil, err
	}
	s.tell(ctx, r.RevieweeID, &reviewerID, types.NotifyReviewNew,
		fmt.Sprintf("You received a %d star review", r.Rating), contractLink(c.ID))
	return r, nil
}

type UserReviews struct {
	Reviews List[types.Review] `json:"reviews"`
	Average float64            `json:"average"`
	Count   int64              `json:"count"`
}

func (s *Service) ListReviewsForUser(ctx context.Context, userID uint64, p Page) (UserReviews, error) {
	if _, err := s.user(ctx, userID); err != nil {
		return UserReviews{}, err
	}
	q := s.db.WithContext(ctx).Model(&types.Review{}).Where("reviewee_id = ?", userID)
	page, err := paginate[types.Review](q, p, "created_at DESC, id DESC")
	if err != nil {
		return UserReviews{}, err
	}

	var agg struct {
		Avg *float64
		N   int64
	}
	err = s.db.WithContext(ctx).Model(&types.Review{}).
		Select("AVG(rating) AS avg, COUNT(*) AS n").
		Where("reviewee_id = ?", userID).
		Scan(&agg).Error
	if err != nil {
		return UserReviews{}, err
	}
	out := UserReviews{Reviews: page, Count: agg.N}
	if agg.Avg != nil {
		out.Average = *agg.Avg
	}
	return out, nil
}
