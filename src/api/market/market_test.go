package market

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/stake-plus/escrow-market/src/api/chain"
	"github.com/stake-plus/escrow-market/src/api/data"
	"github.com/stake-plus/escrow-market/src/api/escrow"
	"github.com/stake-plus/escrow-market/src/api/notify"
	"github.com/stake-plus/escrow-market/src/api/types"
)

type sentNote struct {
	userID uint64
	typ    types.NotificationType
}

type fakeNotifier struct {
	mu     sync.Mutex
	notes  []sentNote
	events []string
	alerts []string
}

func (f *fakeNotifier) Notify(_ context.Context, in notify.Input) (*types.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, sentNote{in.UserID, in.Type})
	return &types.Notification{UserID: in.UserID, Type: in.Type}, nil
}

func (f *fakeNotifier) Event(_ context.Context, _ uint64, event string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeNotifier) AlertAdmins(_ context.Context, _ types.NotificationType, title, _, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, title)
}

func (f *fakeNotifier) got(userID uint64, typ types.NotificationType) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.notes {
		if n.userID == userID && n.typ == typ {
			return true
		}
	}
	return false
}

// fakeChain reconciles against a fixed on-chain status.
type fakeChain struct {
	status   escrow.Status
	workHash string
	balance  *big.Int
	err      error
	syncs    []chain.MirrorState
}

func (f *fakeChain) Sync(_ context.Context, mirror chain.MirrorState, _ string) (chain.SyncResult, error) {
	f.syncs = append(f.syncs, mirror)
	if f.err != nil {
		return chain.SyncResult{}, f.err
	}
	st, outcome := escrow.ReconcileWork(mirror.Status, f.status, mirror.HasResolution, mirror.RejectedWork, f.workHash)
	return chain.SyncResult{
		Status:             st,
		ChainStatus:        f.status,
		Outcome:            outcome,
		ClientApproved:     true,
		FreelancerApproved: f.status != escrow.StatusFunded,
		WorkHash:           f.workHash,
		Balance:            f.balance,
	}, nil
}

func (f *fakeChain) Balance(context.Context, uint64) (*big.Int, error) {
	if f.balance == nil {
		return nil, errors.New("no balance")
	}
	return f.balance, nil
}

type fakeResolver struct {
	canTransact bool
	client      *big.Int
	freelancer  *big.Int
}

func (r *fakeResolver) CanTransact() bool { return r.canTransact }

func (r *fakeResolver) ResolveDispute(_ context.Context, _ uint64, clientWei, freelancerWei *big.Int) (common.Hash, error) {
	r.client, r.freelancer = clientWei, freelancerWei
	return common.HexToHash("0xabc"), nil
}

type fixture struct {
	svc        *Service
	db         *gorm.DB
	notes      *fakeNotifier
	client     *types.User
	freelancer *types.User
	other      *types.User
	admin      *types.User
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(t.TempDir()+"/market.db"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, data.Migrate(db))

	f := &fixture{db: db, notes: &fakeNotifier{}}
	f.svc = NewService(db, f.notes, opts)
	mk := func(addr string, role types.Role) *types.User {
		u := &types.User{WalletAddress: addr, Role: role}
		require.NoError(t, db.Create(u).Error)
		return u
	}
	f.client = mk("0x00000000000000000000000000000000000000c1", types.RoleClient)
	f.freelancer = mk("0x00000000000000000000000000000000000000f1", types.RoleFreelancer)
	f.other = mk("0x00000000000000000000000000000000000000f2", types.RoleFreelancer)
	f.admin = mk("0x00000000000000000000000000000000000000ad", types.RoleAdmin)
	return f
}

func (f *fixture) job(t *testing.T) *types.Job {
	t.Helper()
	job, err := f.svc.CreateJob(context.Background(), f.client.ID, JobInput{
		Title:       "Build a landing page",
		Description: "A single page site with a signup form and analytics.",
		Budget:      decimal.RequireFromString("2"),
		Duration:    types.DurationWeeks,
		Skills:      []string{"html", "css", "HTML"},
	})
	require.NoError(t, err)
	return job
}

func (f *fixture) bid(t *testing.T, jobID, freelancerID uint64, amount string) *types.Bid {
	t.Helper()
	bid, err := f.svc.CreateBid(context.Background(), freelancerID, jobID, BidInput{
		Proposal:      "I can ship this within a week.",
		BidAmount:     decimal.RequireFromString(amount),
		EstimatedTime: "1 week",
	})
	require.NoError(t, err)
	return bid
}

// hired returns a contract in the created state.
func (f *fixture) hired(t *testing.T) *types.Contract {
	t.Helper()
	ctx := context.Background()
	job := f.job(t)
	bid := f.bid(t, job.ID, f.freelancer.ID, "1.5")
	_, err := f.svc.AcceptBid(ctx, f.client.ID, bid.ID)
	require.NoError(t, err)
	c, err := f.svc.CreateContract(ctx, f.client.ID, CreateContractInput{
		JobID:           job.ID,
		ContractAddress: "0x1111111111111111111111111111111111111111",
		ContractID:      job.ID + 100,
	})
	require.NoError(t, err)
	return c
}

// working returns a contract both parties have signed.
func (f *fixture) working(t *testing.T) *types.Contract {
	t.Helper()
	ctx := context.Background()
	c := f.hired(t)
	_, err := f.svc.SignContract(ctx, f.client.ID, c.ID, "")
	require.NoError(t, err)
	c, err = f.svc.SignContract(ctx, f.freelancer.ID, c.ID, "")
	require.NoError(t, err)
	require.Equal(t, escrow.StatusBothSigned, c.Status)
	return c
}

func txHash(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

func TestCreateJobSanitizesAndDedupesSkills(t *testing.T) {
	f := newFixture(t, Options{})
	job := f.job(t)
	assert.Equal(t, types.JobOpen, job.Status)
	assert.Equal(t, []string{"html", "css"}, []string(job.Skills))

	_, err := f.svc.CreateJob(context.Background(), f.freelancer.ID, JobInput{})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.CreateJob(context.Background(), f.client.ID, JobInput{
		Title: "<script>x</script>Hi", Description: "too short", Budget: decimal.NewFromInt(1), Duration: types.DurationWeeks,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListJobsFilters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.job(t)
	_, err := f.svc.CreateJob(ctx, f.client.ID, JobInput{
		Title:       "Audit a solidity contract",
		Description: "Review an escrow contract for reentrancy issues.",
		Budget:      decimal.RequireFromString("10"),
		Duration:    types.DurationMonths,
		Skills:      []string{"solidity"},
	})
	require.NoError(t, err)

	all, err := f.svc.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.Total)
	require.NotNil(t, all.Items[0].Client)

	bySkill, err := f.svc.ListJobs(ctx, JobFilter{Skill: "solidity"})
	require.NoError(t, err)
	require.Len(t, bySkill.Items, 1)
	assert.Equal(t, "Audit a solidity contract", bySkill.Items[0].Title)

	floor := decimal.RequireFromString("5")
	byBudget, err := f.svc.ListJobs(ctx, JobFilter{MinBudget: &floor})
	require.NoError(t, err)
	assert.Len(t, byBudget.Items, 1)

	bySearch, err := f.svc.ListJobs(ctx, JobFilter{Search: "LANDING"})
	require.NoError(t, err)
	assert.Len(t, bySearch.Items, 1)
}

func TestDuplicateBidIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	job := f.job(t)
	f.bid(t, job.ID, f.freelancer.ID, "1")

	_, err := f.svc.CreateBid(ctx, f.freelancer.ID, job.ID, BidInput{
		Proposal: "Second try at the same job.", BidAmount: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, ErrConflict)

	// the unique index holds even without the pre-check
	err = f.db.Create(&types.Bid{JobID: job.ID, FreelancerID: f.freelancer.ID, Proposal: "x", BidAmount: decimal.NewFromInt(1)}).Error
	assert.True(t, isDuplicate(err), "got %v", err)

	got, err := f.svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, got.Proposals, 1)
	assert.True(t, f.notes.got(f.client.ID, types.NotifyBidNew))
}

func TestBidRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	job := f.job(t)

	_, err := f.svc.CreateBid(ctx, f.client.ID, job.ID, BidInput{Proposal: "I am a client", BidAmount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrForbidden)

	bid := f.bid(t, job.ID, f.freelancer.ID, "1")
	updated, err := f.svc.UpdateBid(ctx, f.freelancer.ID, bid.ID, BidInput{
		Proposal: "Revised proposal with more detail.", BidAmount: decimal.RequireFromString("1.25"),
	})
	require.NoError(t, err)
	require.Len(t, updated.History, 1)
	assert.True(t, updated.History[0].BidAmount.Equal(decimal.NewFromInt(1)))

	_, err = f.svc.UpdateBid(ctx, f.other.ID, bid.ID, BidInput{Proposal: "Not mine to edit", BidAmount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, f.svc.WithdrawBid(ctx, f.freelancer.ID, bid.ID))
	assert.ErrorIs(t, f.svc.WithdrawBid(ctx, f.freelancer.ID, bid.ID), ErrConflict)
	got, err := f.svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Proposals)
}

func TestAcceptBidHiresAndRejectsOthers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	job := f.job(t)
	win := f.bid(t, job.ID, f.freelancer.ID, "1")
	lose := f.bid(t, job.ID, f.other.ID, "2")

	_, err := f.svc.AcceptBid(ctx, f.freelancer.ID, win.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.AcceptBid(ctx, f.client.ID, win.ID)
	require.NoError(t, err)

	got, err := f.svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobInProgress, got.Status)
	require.NotNil(t, got.HiredFreelancerID)
	assert.Equal(t, f.freelancer.ID, *got.HiredFreelancerID)

	var loser types.Bid
	require.NoError(t, f.db.First(&loser, lose.ID).Error)
	assert.Equal(t, types.BidRejected, loser.Status)
	assert.True(t, f.notes.got(f.freelancer.ID, types.NotifyJobHired))
	assert.True(t, f.notes.got(f.other.ID, types.NotifyBidRejected))

	_, err = f.svc.AcceptBid(ctx, f.client.ID, lose.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, f.svc.DeleteJob(ctx, f.client.ID, job.ID), ErrConflict)
}

func TestDeleteJobRejectsPendingBids(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	job := f.job(t)
	bid := f.bid(t, job.ID, f.freelancer.ID, "1")

	require.NoError(t, f.svc.DeleteJob(ctx, f.client.ID, job.ID))
	var got types.Bid
	require.NoError(t, f.db.First(&got, bid.ID).Error)
	assert.Equal(t, types.BidRejected, got.Status)

	j, err := f.svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCancelled, j.Status)
}

func TestContractHappyPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	c := f.working(t)

	c, err := f.svc.SubmitWork(ctx, f.freelancer.ID, c.ID, WorkInput{WorkHash: "b2-deadbeef", Notes: "**done**"})
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusWorkSubmitted, c.Status)

	c, err = f.svc.ApproveWork(ctx, f.client.ID, c.ID, "")
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusCompleted, c.Status)

	job, err := f.svc.GetJob(ctx, c.JobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, job.Status)

	payments, err := f.svc.ListPayments(ctx, f.client.ID, false, c.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, types.PaymentDeposit, payments[0].Kind)
	assert.Equal(t, types.PaymentRelease, payments[1].Kind)
	assert.Equal(t, "1500000000000000000", payments[1].AmountWei)

	assert.Contains(t, f.notes.events, "work:approved")
	assert.True(t, f.notes.got(f.freelancer.ID, types.NotifyWorkApproved))
}

func TestOutOfOrderTransitionsAreRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	c := f.hired(t)

	_, err := f.svc.ApproveWork(ctx, f.client.ID, c.ID, "")
	var te *escrow.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, escrow.StatusCreated, te.From)
	assert.Equal(t, escrow.StatusCompleted, te.To)

	_, err = f.svc.SignContract(ctx, f.freelancer.ID, c.ID, "")
	require.ErrorAs(t, err, &te)

	_, err = f.svc.RaiseDispute(ctx, f.client.ID, c.ID, "the freelancer went silent", "")
	require.ErrorAs(t, err, &te)

	_, err = f.svc.SignContract(ctx, f.other.ID, c.ID, "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRejectWorkReturnsToBothSigned(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	c := f.working(t)
	_, err := f.svc.SubmitWork(ctx, f.freelancer.ID, c.ID, WorkInput{WorkHash: "b2-01"})
	require.NoError(t, err)

	c, err = f.svc.RejectWork(ctx, f.client.ID, c.ID, "missing the signup form", "")
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusBothSigned, c.Status)
	assert.Empty(t, c.WorkHash)
	assert.True(t, f.notes.got(f.freelancer.ID, types.NotifyWorkRejected))
}

func TestCancelRefundsFundedContract(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	c := f.hired(t)
	_, err := f.svc.SignContract(ctx, f.client.ID, c.ID, "")
	require.NoError(t, err)

	c, err = f.svc.CancelContract(ctx, f.client.ID, c.ID, "")
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusRefunded, c.Status)

	job, err := f.svc.GetJob(ctx, c.JobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCancelled, job.Status)
}

func TestGuardedUpdateDetectsConcurrentChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	c := f.working(t)
	stale := *c

	_, err := f.svc.SubmitWork(ctx, f.freelancer.ID, c.ID, WorkInput{WorkHash: "b2-02"})
	require.NoError(t, err)

	err = f.svc.advance(ctx, &stale, escrow.StatusDisputed, "", nil, nil)
	assert.ErrorIs(t, err, ErrConflict)

	var got types.Contract
	require.NoError(t, f.db.First(&got, c.ID).Error)
	assert.Equal(t, escrow.StatusWorkSubmitted, got.Status)
}

func TestResolveDisputeValidatesSplit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	c := f.working(t)

	c, err := f.svc.RaiseDispute(ctx, f.freelancer.ID, c.ID, "client stopped responding", "")
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusDisputed, c.Status)
	assert.Equal(t, f.freelancer.ID, c.DisputeDetails.Data().RaisedBy)
	assert.True(t, f.notes.got(f.client.ID, types.NotifyDisputeRaised))
	assert.Len(t, f.notes.alerts, 1)

	_, err = f.svc.ResolveDispute(ctx, f.admin.ID, c.ID, ResolveInput{ClientShare: 60, FreelancerShare: 30})
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, escrow.ErrInvalidSplit)

	c, err = f.svc.ResolveDispute(ctx, f.admin.ID, c.ID, ResolveInput{ClientShare: 40, FreelancerShare: 60, Note: "partial delivery"})
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusResolved, c.Status)
	res := c.DisputeResolution.Data()
	assert.Equal(t, "600000000000000000", res.ClientWei)
	assert.Equal(t, "900000000000000000", res.FreelancerWei)

	_, err = f.svc.ResolveDispute(ctx, f.admin.ID, c.ID, ResolveInput{ClientShare: 50, FreelancerShare: 50})
	var te *escrow.TransitionError
	assert.ErrorAs(t, err, &te)

	var splits int64
	require.NoError(t, f.db.Model(&types.Payment{}).Where("contract_id = ? AND kind = ?", c.ID, types.PaymentSplit).Count(&splits).Error)
	assert.Equal(t, int64(2), splits)
}

func TestFullClientShareEndsRefunded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	c := f.working(t)
	_, err := f.svc.RaiseDispute(ctx, f.client.ID, c.ID, "nothing was delivered", "")
	require.NoError(t, err)

	c, err = f.svc.ResolveDispute(ctx, f.admin.ID, c.ID, ResolveInput{ClientShare: 100, FreelancerShare: 0})
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusRefunded, c.Status)

	job, err := f.svc.GetJob(ctx, c.JobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCancelled, job.Status)

	disputes, err := f.svc.ListDisputes(ctx, true, Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), disputes.Total)
}

func TestResolveDisputeOnChain(t *testing.T) {
	ctx := context.Background()
	fc := &fakeChain{status: escrow.StatusFunded, balance: big.NewInt(1000)}
	res := &fakeResolver{canTransact: true}
	f := newFixture(t, Options{Syncer: fc, Resolver: res})

	c := f.hired(t)
	assert.True(t, c.NeedsSync)
	c, err := f.svc.SignContract(ctx, f.client.ID, c.ID, txHash(1))
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusFunded, c.Status)
	assert.False(t, c.NeedsSync)

	fc.status = escrow.StatusBothSigned
	_, err = f.svc.SignContract(ctx, f.freelancer.ID, c.ID, txHash(2))
	require.NoError(t, err)
	fc.status = escrow.StatusDisputed
	_, err = f.svc.RaiseDispute(ctx, f.client.ID, c.ID, "work never started at all", txHash(3))
	require.NoError(t, err)

	fc.status = escrow.StatusCompleted
	c, err = f.svc.ResolveDispute(ctx, f.admin.ID, c.ID, ResolveInput{ClientShare: 30, FreelancerShare: 70})
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusResolved, c.Status)
	assert.Equal(t, "300", res.client.String())
	assert.Equal(t, "700", res.freelancer.String())
	assert.Equal(t, common.HexToHash("0xabc").Hex(), c.LastTxHash)
	assert.True(t, fc.syncs[len(fc.syncs)-1].HasResolution)
}

func TestResolveDisputeNeedsSignerOrTxHash(t *testing.T) {
	ctx := context.Background()
	fc := &fakeChain{status: escrow.StatusDisputed, balance: big.NewInt(10)}
	f := newFixture(t, Options{Syncer: fc, Resolver: &fakeResolver{}})
	c := f.hired(t)
	require.NoError(t, f.db.Model(c).Update("status", escrow.StatusDisputed).Error)

	_, err := f.svc.ResolveDispute(ctx, f.admin.ID, c.ID, ResolveInput{ClientShare: 50, FreelancerShare: 50})
	assert.ErrorIs(t, err, ErrChainUnavailable)

	fc.status = escrow.StatusCompleted
	c, err = f.svc.ResolveDispute(ctx, f.admin.ID, c.ID, ResolveInput{ClientShare: 50, FreelancerShare: 50, TxHash: txHash(9)})
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusResolved, c.Status)
}

func TestRevertedTransactionLeavesMirrorUntouched(t *testing.T) {
	ctx := context.Background()
	fc := &fakeChain{err: fmt.Errorf("confirming: %w", chain.ErrTxReverted)}
	f := newFixture(t, Options{Syncer: fc})
	c := f.hired(t)

	_, err := f.svc.SignContract(ctx, f.client.ID, c.ID, txHash(4))
	assert.ErrorIs(t, err, chain.ErrTxReverted)

	var got types.Contract
	require.NoError(t, f.db.First(&got, c.ID).Error)
	assert.Equal(t, escrow.StatusCreated, got.Status)
	var payments int64
	require.NoError(t, f.db.Model(&types.Payment{}).Count(&payments).Error)
	assert.Zero(t, payments)
}

func TestUnavailableChainAppliesLocallyAndFlags(t *testing.T) {
	ctx := context.Background()
	fc := &fakeChain{err: &chain.StateUnavailableError{ContractID: 1, Attempts: 8, Err: errors.New("rpc down")}}
	f := newFixture(t, Options{Syncer: fc})
	c := f.hired(t)

	c, err := f.svc.SignContract(ctx, f.client.ID, c.ID, txHash(5))
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusFunded, c.Status)
	assert.True(t, c.NeedsSync)
	assert.Equal(t, txHash(5), c.LastTxHash)
}

func TestSyncPendingFollowsChain(t *testing.T) {
	ctx := context.Background()
	fc := &fakeChain{status: escrow.StatusBothSigned}
	f := newFixture(t, Options{Syncer: fc})
	c := f.hired(t)

	rep, err := f.svc.SyncPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Checked)
	assert.Equal(t, 1, rep.Advanced)

	var got types.Contract
	require.NoError(t, f.db.First(&got, c.ID).Error)
	assert.Equal(t, escrow.StatusBothSigned, got.Status)
	assert.False(t, got.NeedsSync)
	assert.NotNil(t, got.ChainSyncedAt)
	assert.True(t, f.notes.got(f.client.ID, types.NotifySystem))

	rep, err = f.svc.SyncPending(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, rep.Checked, "fresh contracts are not revisited")
}

func TestForceSyncRequiresChain(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.hired(t)
	_, _, err := f.svc.ForceSync(context.Background(), f.client.ID, false, c.ID, "")
	assert.ErrorIs(t, err, ErrChainUnavailable)
}

func TestContractVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	c := f.hired(t)

	_, err := f.svc.GetContract(ctx, f.other.ID, false, c.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.GetContract(ctx, f.admin.ID, true, c.ID)
	assert.NoError(t, err)

	mine, err := f.svc.ListMyContracts(ctx, f.freelancer.ID, "", Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), mine.Total)

	_, err = f.svc.CreateContract(ctx, f.client.ID, CreateContractInput{
		JobID: c.JobID, ContractAddress: "0x2222222222222222222222222222222222222222", ContractID: 999,
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestReviewsOncePerFinishedContract(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	c := f.working(t)

	_, err := f.svc.CreateReview(ctx, f.client.ID, ReviewInput{ContractID: c.ID, Rating: 5})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.svc.SubmitWork(ctx, f.freelancer.ID, c.ID, WorkInput{WorkHash: "b2-03"})
	require.NoError(t, err)
	_, err = f.svc.ApproveWork(ctx, f.client.ID, c.ID, "")
	require.NoError(t, err)

	r, err := f.svc.CreateReview(ctx, f.client.ID, ReviewInput{ContractID: c.ID, Rating: 4, Comment: "solid work"})
	require.NoError(t, err)
	assert.Equal(t, f.freelancer.ID, r.RevieweeID)

	_, err = f.svc.CreateReview(ctx, f.client.ID, ReviewInput{ContractID: c.ID, Rating: 5})
	assert.ErrorIs(t, err, ErrConflict)
	_, err = f.svc.CreateReview(ctx, f.other.ID, ReviewInput{ContractID: c.ID, Rating: 1})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.CreateReview(ctx, f.freelancer.ID, ReviewInput{ContractID: c.ID, Rating: 0})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.CreateReview(ctx, f.freelancer.ID, ReviewInput{ContractID: c.ID, Rating: 2})
	require.NoError(t, err)

	got, err := f.svc.ListReviewsForUser(ctx, f.freelancer.ID, Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Count)
	assert.InDelta(t, 4.0, got.Average, 0.001)
}

func TestMessagesAndInbox(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	_, err := f.svc.SendMessage(ctx, f.client.ID, MessageInput{RecipientID: f.client.ID, Body: "hi"})
	assert.ErrorIs(t, err, ErrValidation)

	for _, body := range []string{"hello", "are you free?"} {
		_, err := f.svc.SendMessage(ctx, f.client.ID, MessageInput{RecipientID: f.freelancer.ID, Body: body})
		require.NoError(t, err)
	}
	_, err = f.svc.SendMessage(ctx, f.other.ID, MessageInput{RecipientID: f.freelancer.ID, Body: "<b>ping</b><script>x</script>"})
	require.NoError(t, err)
	assert.Contains(t, f.notes.events, "message:new")

	inbox, err := f.svc.Inbox(ctx, f.freelancer.ID)
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	assert.Equal(t, f.other.ID, inbox[0].User.ID)
	assert.False(t, strings.Contains(inbox[0].LastMessage.Body, "script"))
	assert.Equal(t, int64(2), inbox[1].Unread)

	conv, err := f.svc.Conversation(ctx, f.freelancer.ID, f.client.ID, Page{})
	require.NoError(t, err)
	require.Len(t, conv.Items, 2)
	assert.Equal(t, "hello", conv.Items[0].Body)

	inbox, err = f.svc.Inbox(ctx, f.freelancer.ID)
	require.NoError(t, err)
	assert.Zero(t, inbox[1].Unread)
}

func TestUsersAndAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{AdminWallets: []string{"0x00000000000000000000000000000000000000AA"}})

	u, err := f.svc.UpsertByWallet(ctx, "0x00000000000000000000000000000000000000aa")
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, u.Role)
	again, err := f.svc.UpsertByWallet(ctx, "0x00000000000000000000000000000000000000AA")
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)

	assert.True(t, f.svc.AdminAllowed("0x00000000000000000000000000000000000000aa"))
	assert.False(t, f.svc.AdminAllowed(f.admin.WalletAddress))

	name, email := "Ada", "not-an-email"
	_, err = f.svc.UpdateProfile(ctx, f.client.ID, ProfileUpdate{Name: &name, Email: &email})
	assert.ErrorIs(t, err, ErrValidation)
	email = "ada@example.com"
	role := types.RoleFreelancer
	p, err := f.svc.UpdateProfile(ctx, f.client.ID, ProfileUpdate{Name: &name, Email: &email, Role: &role, Skills: []string{"go"}})
	require.NoError(t, err)
	assert.Equal(t, types.RoleFreelancer, p.Role)
	assert.Equal(t, []string{"go"}, []string(p.Skills))

	_, err = f.svc.SetRole(ctx, f.admin.ID, f.admin.ID, types.RoleClient)
	assert.ErrorIs(t, err, ErrForbidden)

	rep, err := f.svc.CreateReport(ctx, f.client.ID, "user", f.other.ID, "spamming my inbox with offers")
	require.NoError(t, err)
	rep, err = f.svc.UpdateReport(ctx, rep.ID, types.ReportDismissed, "duplicate")
	require.NoError(t, err)
	assert.Equal(t, types.ReportDismissed, rep.Status)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Users[types.RoleAdmin])
	assert.Equal(t, int64(1), stats.Reports[types.ReportDismissed])
	assert.False(t, stats.ChainEnabled)
}

func TestSearchTreatsWildcardsLiterally(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.job(t)
	_, err := f.svc.CreateJob(ctx, f.client.ID, JobInput{
		Title:       "Cut gas costs by 50% on_chain",
		Description: "Optimise storage layout of the escrow contract.",
		Budget:      decimal.RequireFromString("3"),
		Duration:    types.DurationUnderWeek,
		Skills:      []string{"solidity"},
	})
	require.NoError(t, err)

	for _, term := range []string{"50%", "on_chain", "%"} {
		got, err := f.svc.ListJobs(ctx, JobFilter{Search: term})
		require.NoError(t, err)
		require.Len(t, got.Items, 1, term)
		assert.Equal(t, "Cut gas costs by 50% on_chain", got.Items[0].Title)
	}

	got, err := f.svc.ListJobs(ctx, JobFilter{Search: "_"})
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)

	users, err := f.svc.ListUsers(ctx, "", "%", Page{})
	require.NoError(t, err)
	assert.Zero(t, users.Total)
}

func TestContractsWithoutEscrowID(t *testing.T) {
	ctx := context.Background()
	hire := func(f *fixture) *types.Job {
		job := f.job(t)
		bid := f.bid(t, job.ID, f.freelancer.ID, "1")
		_, err := f.svc.AcceptBid(ctx, f.client.ID, bid.ID)
		require.NoError(t, err)
		return job
	}

	f := newFixture(t, Options{})
	for range 2 {
		c, err := f.svc.CreateContract(ctx, f.client.ID, CreateContractInput{
			JobID: hire(f).ID, ContractAddress: "0x3333333333333333333333333333333333333333",
		})
		require.NoError(t, err)
		assert.Nil(t, c.ContractID)
		assert.Zero(t, c.EscrowID())
	}

	chained := newFixture(t, Options{Syncer: &fakeChain{status: escrow.StatusCreated}})
	_, err := chained.svc.CreateContract(ctx, chained.client.ID, CreateContractInput{
		JobID: hire(chained).ID, ContractAddress: "0x3333333333333333333333333333333333333333",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRejectedWorkSurvivesReconcile(t *testing.T) {
	ctx := context.Background()
	fc := &fakeChain{status: escrow.StatusBothSigned}
	f := newFixture(t, Options{Syncer: fc})
	c := f.working(t)

	fc.status, fc.workHash = escrow.StatusWorkSubmitted, "bafy-delivery-1"
	_, err := f.svc.SubmitWork(ctx, f.freelancer.ID, c.ID, WorkInput{WorkHash: "bafy-delivery-1", TxHash: txHash(10)})
	require.NoError(t, err)

	// the escrow still reports the delivery after the rejection
	c, err = f.svc.RejectWork(ctx, f.client.ID, c.ID, "the signup form is missing", "")
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusBothSigned, c.Status)
	assert.Equal(t, "bafy-delivery-1", c.RejectedWorkHash)
	assert.True(t, c.NeedsSync)

	rep, err := f.svc.SyncPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Checked)
	assert.Zero(t, rep.Advanced)

	var got types.Contract
	require.NoError(t, f.db.First(&got, c.ID).Error)
	assert.Equal(t, escrow.StatusBothSigned, got.Status)
	assert.Empty(t, got.WorkHash)
	assert.False(t, got.NeedsSync)

	// a new delivery on chain is picked up
	fc.workHash = "bafy-delivery-2"
	c, outcome, err := f.svc.ForceSync(ctx, f.client.ID, false, c.ID, "")
	require.NoError(t, err)
	assert.Equal(t, escrow.Advanced, outcome)
	assert.Equal(t, escrow.StatusWorkSubmitted, c.Status)
	assert.Equal(t, "bafy-delivery-2", c.WorkHash)
	assert.Empty(t, c.RejectedWorkHash)
}

func TestResubmitAfterRejection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	c := f.working(t)
	_, err := f.svc.SubmitWork(ctx, f.freelancer.ID, c.ID, WorkInput{WorkHash: "b2-first"})
	require.NoError(t, err)
	_, err = f.svc.RejectWork(ctx, f.client.ID, c.ID, "", "")
	require.NoError(t, err)

	c, err = f.svc.SubmitWork(ctx, f.freelancer.ID, c.ID, WorkInput{WorkHash: "b2-second"})
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusWorkSubmitted, c.Status)
	assert.Equal(t, "b2-second", c.WorkHash)
	assert.Empty(t, c.RejectedWorkHash)
}

func TestConfirmedTxOnDivergedChainSkipsSideEffects(t *testing.T) {
	ctx := context.Background()
	fc := &fakeChain{status: escrow.StatusWorkSubmitted}
	f := newFixture(t, Options{Syncer: fc})
	c := f.working(t)
	_, err := f.svc.SubmitWork(ctx, f.freelancer.ID, c.ID, WorkInput{WorkHash: "bafy-3", TxHash: txHash(6)})
	require.NoError(t, err)

	fc.status = escrow.StatusDisputed
	_, err = f.svc.ApproveWork(ctx, f.client.ID, c.ID, txHash(7))
	require.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "disputed")

	var got types.Contract
	require.NoError(t, f.db.First(&got, c.ID).Error)
	assert.Equal(t, escrow.StatusDisputed, got.Status)
	assert.Equal(t, txHash(7), got.LastTxHash)
	assert.False(t, got.NeedsSync)

	var releases int64
	require.NoError(t, f.db.Model(&types.Payment{}).Where("contract_id = ? AND kind = ?", c.ID, types.PaymentRelease).Count(&releases).Error)
	assert.Zero(t, releases)
	job, err := f.svc.GetJob(ctx, c.JobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobInProgress, job.Status)
	assert.False(t, f.notes.got(f.freelancer.ID, types.NotifyWorkApproved))
}

func TestSentResolutionSurvivesFailedConfirmation(t *testing.T) {
	ctx := context.Background()
	fc := &fakeChain{status: escrow.StatusDisputed, balance: big.NewInt(1000)}
	f := newFixture(t, Options{Syncer: fc, Resolver: &fakeResolver{canTransact: true}})
	c := f.working(t)
	_, err := f.svc.RaiseDispute(ctx, f.client.ID, c.ID, "the delivery never arrived", "")
	require.NoError(t, err)

	fc.err = errors.New("receipt 0xabc: context deadline exceeded")
	c, err = f.svc.ResolveDispute(ctx, f.admin.ID, c.ID, ResolveInput{ClientShare: 20, FreelancerShare: 80})
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusResolved, c.Status)
	assert.True(t, c.NeedsSync)
	assert.Equal(t, common.HexToHash("0xabc").Hex(), c.LastTxHash)
	assert.Equal(t, "800", c.DisputeResolution.Data().FreelancerWei)

	var splits int64
	require.NoError(t, f.db.Model(&types.Payment{}).Where("contract_id = ? AND kind = ?", c.ID, types.PaymentSplit).Count(&splits).Error)
	assert.Equal(t, int64(2), splits)
	job, err := f.svc.GetJob(ctx, c.JobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, job.Status)

	fc.err = nil
	fc.status = escrow.StatusCompleted
	_, err = f.svc.SyncPending(ctx, 10)
	require.NoError(t, err)

	var got types.Contract
	require.NoError(t, f.db.First(&got, c.ID).Error)
	assert.Equal(t, escrow.StatusResolved, got.Status)
	assert.False(t, got.NeedsSync)
}

func TestRevertedResolutionIsForgotten(t *testing.T) {
	ctx := context.Background()
	fc := &fakeChain{status: escrow.StatusDisputed, balance: big.NewInt(1000)}
	f := newFixture(t, Options{Syncer: fc, Resolver: &fakeResolver{canTransact: true}})
	c := f.working(t)
	_, err := f.svc.RaiseDispute(ctx, f.client.ID, c.ID, "the delivery never arrived", "")
	require.NoError(t, err)

	fc.err = fmt.Errorf("confirming: %w", chain.ErrTxReverted)
	_, err = f.svc.ResolveDispute(ctx, f.admin.ID, c.ID, ResolveInput{ClientShare: 50, FreelancerShare: 50})
	require.ErrorIs(t, err, chain.ErrTxReverted)

	var got types.Contract
	require.NoError(t, f.db.First(&got, c.ID).Error)
	assert.Equal(t, escrow.StatusDisputed, got.Status)
	assert.True(t, got.DisputeResolution.Data().ResolvedAt.IsZero())
	var payments int64
	require.NoError(t, f.db.Model(&types.Payment{}).Where("contract_id = ?", c.ID).Count(&payments).Error)
	assert.Zero(t, payments)
}

func TestForceSyncFlagsUnreachableChain(t *testing.T) {
	ctx := context.Background()
	fc := &fakeChain{status: escrow.StatusCreated}
	f := newFixture(t, Options{Syncer: fc})
	c := f.hired(t)
	require.NoError(t, f.db.Model(c).Update("needs_sync", false).Error)

	fc.err = &chain.StateUnavailableError{ContractID: c.EscrowID(), Attempts: 3, Err: errors.New("rpc down")}
	_, _, err := f.svc.ForceSync(ctx, f.client.ID, false, c.ID, "")
	var unavailable *chain.StateUnavailableError
	require.ErrorAs(t, err, &unavailable)

	var got types.Contract
	require.NoError(t, f.db.First(&got, c.ID).Error)
	assert.True(t, got.NeedsSync)
}
