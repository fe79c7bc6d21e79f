package market

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stake-plus/escrow-market/src/api/types"
)

type JobInput struct {
	Title       string
	Description string
	Budget      decimal.Decimal
	Duration    types.JobDuration
	Skills      []string
}

func (s *Service) cleanJob(in JobInput) (JobInput, error) {
	in.Title = s.cleanText(in.Title)
	in.Description = s.cleanRich(in.Description)
	if n := len(in.Title); n < 5 || n > 200 {
		return in, invalid("title must be between 5 and 200 characters")
	}
	if n := len(in.Description); n < 20 || n > 10000 {
		return in, invalid("description must be between 20 and 10000 characters")
	}
	if !in.Budget.IsPositive() {
		return in, invalid("budget must be positive")
	}
	if !in.Duration.Valid() {
		return in, invalid("unknown duration %q", in.Duration)
	}
	skills, err := s.cleanSkills(in.Skills)
	if err != nil {
		return in, err
	}
	in.Skills = skills
	return in, nil
}

func (s *Service) CreateJob(ctx context.Context, clientID uint64, in JobInput) (*types.Job, error) {
	u, err := s.user(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if u.Role == types.RoleFreelancer {
		return nil, forbidden("freelancers cannot post jobs")
	}
	in, err = s.cleanJob(in)
	if err != nil {
		return nil, err
	}
	job := &types.Job{
		ClientID:    clientID,
		Title:       in.Title,
		Description: in.Description,
		Budget:      in.Budget,
		Duration:    in.Duration,
		Skills:      in.Skills,
		Status:      types.JobOpen,
		Proposals:   datatypes.JSONSlice[types.JobProposal]{},
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

type JobFilter struct {
	Status    types.JobStatus
	Skill     string
	Search    string
	MinBudget *decimal.Decimal
	MaxBudget *decimal.Decimal
	Page
}

// ListJobs defaults to open jobs, newest first.
func (s *Service) ListJobs(ctx context.Context, f JobFilter) (List[types.Job], error) {
	status := f.Status
	if status == "" {
		status = types.JobOpen
	}
	q := s.db.WithContext(ctx).Model(&types.Job{}).Where("status = ?", status)
	if sk := strings.TrimSpace(f.Skill); sk != "" {
		q = q.Where("skills LIKE ? ESCAPE '!'", `%"`+escapeLike(sk)+`"%`)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + escapeLike(strings.ToLower(term)) + "%"
		q = q.Where("LOWER(title) LIKE ? ESCAPE '!' OR LOWER(description) LIKE ? ESCAPE '!'", like, like)
	}
	if f.MinBudget != nil {
		q = q.Where("budget >= ?", *f.MinBudget)
	}
	if f.MaxBudget != nil {
		q = q.Where("budget <= ?", *f.MaxBudget)
	}
	return paginate[types.Job](q, f.Page, "created_at DESC, id DESC", "Client")
}

// escapeLike quotes LIKE wildcards for patterns using ESCAPE '!'.
func escapeLike(v string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(v)
}

func (s *Service) GetJob(ctx context.Context, id uint64) (*types.Job, error) {
	var job types.Job
	if err := s.db.WithContext(ctx).Preload("Client").First(&job, id).Error; err != nil {
		return nil, lookupErr(err, "job")
	}
	return &job, nil
}

func (s *Service) ownedJob(ctx context.Context, tx *gorm.DB, clientID, jobID uint64) (*types.Job, error) {
	var job types.Job
	if err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&job, jobID).Error; err != nil {
		return nil, lookupErr(err, "job")
	}
	if job.ClientID != clientID {
		return nil, forbidden("not your job")
	}
	return &job, nil
}

type JobPatch struct {
	Title       *string
	Description *string
	Budget      *decimal.Decimal
	Duration    *types.JobDuration
	Skills      []string
}

// UpdateJob edits an open job owned by clientID.
func (s *Service) UpdateJob(ctx context.Context, clientID, jobID uint64, p JobPatch) (*types.Job, error) {
	job, err := s.ownedJob(ctx, s.db, clientID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != types.JobOpen {
		return nil, conflict("only open jobs can be edited")
	}

	in := JobInput{Title: job.Title, Description: job.Description, Budget: job.Budget, Duration: job.Duration, Skills: job.Skills}
	if p.Title != nil {
		in.Title = *p.Title
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	if p.Budget != nil {
		in.Budget = *p.Budget
	}
	if p.Duration != nil {
		in.Duration = *p.Duration
	}
	if p.Skills != nil {
		in.Skills = p.Skills
	}
	if in, err = s.cleanJob(in); err != nil {
		return nil, err
	}

	res := s.db.WithContext(ctx).Model(&types.Job{}).
		Where("id = ? AND status = ?", jobID, types.JobOpen).
		Updates(map[string]any{
			"title":       in.Title,
			"description": in.Description,
			"budget":      in.Budget,
			"duration":    in.Duration,
			"skills":      datatypes.JSONSlice[string](in.Skills),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, conflict("job is no longer open")
	}
	return s.GetJob(ctx, jobID)
}

// DeleteJob cancels an open job without a contract and rejects its
// pending bids. The row is kept for the bid history.
func (s *Service) DeleteJob(ctx context.Context, clientID, jobID uint64) error {
	var rejected []types.Bid
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := s.ownedJob(ctx, tx, clientID, jobID)
		if err != nil {
			return err
		}
		if job.Status != types.JobOpen {
			return conflict("only open jobs can be deleted")
		}
		var contracts int64
		if err := tx.Model(&types.Contract{}).Where("job_id = ?", jobID).Count(&contracts).Error; err != nil {
			return err
		}
		if contracts > 0 {
			return conflict("job has a contract")
		}

		res := tx.Model(&types.Job{}).Where("id = ? AND status = ?", jobID, types.JobOpen).Update("status", types.JobCancelled)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflict("job is no longer open")
		}
		if err := tx.Where("job_id = ? AND status = ?", jobID, types.BidPending).Find(&rejected).Error; err != nil {
			return err
		}
		return tx.Model(&types.Bid{}).Where("job_id = ? AND status = ?", jobID, types.BidPending).
			Update("status", types.BidRejected).Error
	})
	if err != nil {
		return err
	}

	for _, b := range rejected {
		s.tell(ctx, b.FreelancerID, &clientID, types.NotifyBidRejected,
			"A job you bid on was withdrawn by the client", jobLink(jobID))
	}
	return nil
}

func (s *Service) ListMyJobs(ctx context.Context, clientID uint64, status types.JobStatus, p Page) (List[types.Job], error) {
	q := s.db.WithContext(ctx).Model(&types.Job{}).Where("client_id = ?", clientID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return paginate[types.Job](q, p, "created_at DESC, id DESC")
}
