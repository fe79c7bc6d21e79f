package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/stake-plus/escrow-market/src/api/escrow"
)

type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
	RoleAdmin      Role = "admin"
)

// Users are identified by wallet; the login nonce lives in redis.
type User struct {
	ID            uint64                      `gorm:"primaryKey" json:"id"`
	WalletAddress string                      `gorm:"size:42;uniqueIndex;not null" json:"walletAddress"`
	Role          Role                        `gorm:"size:16;not null;default:client" json:"role"`
	Name          string                      `gorm:"size:128" json:"name"`
	Email         string                      `gorm:"size:256" json:"email,omitempty"`
	Bio           string                      `gorm:"type:text" json:"bio"`
	Skills        datatypes.JSONSlice[string] `json:"skills"`
	AvatarCID     string                      `gorm:"size:80" json:"avatarCid,omitempty"`
	CreatedAt     time.Time                   `json:"createdAt"`
	UpdatedAt     time.Time                   `json:"updatedAt"`
}

type JobStatus string

const (
	JobOpen       JobStatus = "open"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobCancelled  JobStatus = "cancelled"
)

type JobDuration string

const (
	DurationUnderWeek   JobDuration = "less_than_1_week"
	DurationWeeks       JobDuration = "1_to_4_weeks"
	DurationMonths      JobDuration = "1_to_3_months"
	DurationQuarters    JobDuration = "3_to_6_months"
	DurationLongRunning JobDuration = "more_than_6_months"
)

func (d JobDuration) Valid() bool {
	switch d {
	case DurationUnderWeek, DurationWeeks, DurationMonths, DurationQuarters, DurationLongRunning:
		return true
	}
	return false
}

// JobProposal is the summary of a bid embedded in its job.
type JobProposal struct {
	BidID        uint64          `json:"bidId"`
	FreelancerID uint64          `json:"freelancerId"`
	Amount       decimal.Decimal `json:"amount"`
	SubmittedAt  time.Time       `json:"submittedAt"`
}

type Job struct {
	ID                uint64                           `gorm:"primaryKey" json:"id"`
	ClientID          uint64                           `gorm:"index;not null" json:"clientId"`
	Title             string                           `gorm:"size:200;not null" json:"title"`
	Description       string                           `gorm:"type:text;not null" json:"description"`
	Budget            decimal.Decimal                  `gorm:"type:decimal(36,18);not null" json:"budget"`
	Duration          JobDuration                      `gorm:"size:32;not null" json:"duration"`
	Skills            datatypes.JSONSlice[string]      `json:"skills"`
	Status            JobStatus                        `gorm:"size:16;index;not null;default:open" json:"status"`
	Proposals         datatypes.JSONSlice[JobProposal] `json:"proposals"`
	HiredFreelancerID *uint64                          `json:"hiredFreelancerId,omitempty"`
	CreatedAt         time.Time                        `json:"createdAt"`
	UpdatedAt         time.Time                        `json:"updatedAt"`
	Client            *User                            `gorm:"foreignKey:ClientID" json:"client,omitempty"`
}

type BidStatus string

const (
	BidPending   BidStatus = "pending"
	BidAccepted  BidStatus = "accepted"
	BidRejected  BidStatus = "rejected"
	BidWithdrawn BidStatus = "withdrawn"
)

// BidRevision is the state of a bid before an edit.
type BidRevision struct {
	Proposal      string          `json:"proposal"`
	BidAmount     decimal.Decimal `json:"bidAmount"`
	EstimatedTime string          `json:"estimatedTime"`
	EditedAt      time.Time       `json:"editedAt"`
}

type Bid struct {
	ID            uint64                           `gorm:"primaryKey" json:"id"`
	JobID         uint64                           `gorm:"uniqueIndex:idx_bid_job_freelancer;not null" json:"jobId"`
	FreelancerID  uint64                           `gorm:"uniqueIndex:idx_bid_job_freelancer;index;not null" json:"freelancerId"`
	Proposal      string                           `gorm:"type:text;not null" json:"proposal"`
	BidAmount     decimal.Decimal                  `gorm:"type:decimal(36,18);not null" json:"bidAmount"`
	EstimatedTime string                           `gorm:"size:64" json:"estimatedTime"`
	Status        BidStatus                        `gorm:"size:16;index;not null;default:pending" json:"status"`
	History       datatypes.JSONSlice[BidRevision] `json:"history"`
	CreatedAt     time.Time                        `json:"createdAt"`
	UpdatedAt     time.Time                        `json:"updatedAt"`
	Freelancer    *User                            `gorm:"foreignKey:FreelancerID" json:"freelancer,omitempty"`
}

type DisputeDetails struct {
	RaisedBy uint64    `json:"raisedBy,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	RaisedAt time.Time `json:"raisedAt,omitempty"`
	TxHash   string    `json:"txHash,omitempty"`
}

type DisputeResolution struct {
	ClientShare     uint8     `json:"clientShare"`
	FreelancerShare uint8     `json:"freelancerShare"`
	ClientWei       string    `json:"clientWei"`
	FreelancerWei   string    `json:"freelancerWei"`
	ResolvedBy      uint64    `json:"resolvedBy"`
	Note            string    `json:"note,omitempty"`
	TxHash          string    `json:"txHash,omitempty"`
	ResolvedAt      time.Time `json:"resolvedAt"`
}

// Contract mirrors the on-chain escrow for fast reads. Status holds the
// mirror status; the chain stays authoritative.
type Contract struct {
	ID                 uint64                                `gorm:"primaryKey" json:"id"`
	JobID              uint64                                `gorm:"uniqueIndex;not null" json:"jobId"`
	BidID              uint64                                `gorm:"not null" json:"bidId"`
	ClientID           uint64                                `gorm:"index;not null" json:"clientId"`
	FreelancerID       uint64                                `gorm:"index;not null" json:"freelancerId"`
	ContractAddress    string                                `gorm:"size:42" json:"contractAddress"`
	ContractID         *uint64                               `gorm:"uniqueIndex" json:"contractId,omitempty"`
	Amount             decimal.Decimal                       `gorm:"type:decimal(36,18);not null" json:"amount"`
	Status             escrow.Status                         `gorm:"size:24;index;not null" json:"status"`
	ClientApproved     bool                                  `json:"clientApproved"`
	FreelancerApproved bool                                  `json:"freelancerApproved"`
	WorkHash           string                                `gorm:"size:128" json:"workHash,omitempty"`
	RejectedWorkHash   string                                `gorm:"size:128" json:"rejectedWorkHash,omitempty"`
	WorkNotes          string                                `gorm:"type:text" json:"workNotes,omitempty"`
	DisputeDetails     datatypes.JSONType[DisputeDetails]    `json:"disputeDetails"`
	DisputeResolution  datatypes.JSONType[DisputeResolution] `json:"disputeResolution"`
	LastTxHash         string                                `gorm:"size:66" json:"lastTxHash,omitempty"`
	NeedsSync          bool                                  `gorm:"index" json:"needsSync"`
	ChainSyncedAt      *time.Time                            `json:"chainSyncedAt,omitempty"`
	CreatedAt          time.Time                             `json:"createdAt"`
	UpdatedAt          time.Time                             `json:"updatedAt"`
}

// EscrowID is the on-chain escrow id, zero when the contract is tracked in
// the database only.
func (c *Contract) EscrowID() uint64 {
	if c.ContractID == nil {
		return 0
	}
	return *c.ContractID
}

type NotificationType string

const (
	NotifyBidNew          NotificationType = "bid_new"
	NotifyBidAccepted     NotificationType = "bid_accepted"
	NotifyBidRejected     NotificationType = "bid_rejected"
	NotifyJobHired        NotificationType = "job_hired"
	NotifyContractCreated NotificationType = "contract_created"
	NotifyContractSigned  NotificationType = "contract_signed"
	NotifyWorkSubmitted   NotificationType = "work_submitted"
	NotifyWorkApproved    NotificationType = "work_approved"
	NotifyWorkRejected    NotificationType = "work_rejected"
	NotifyDisputeRaised   NotificationType = "dispute_raised"
	NotifyDisputeResolved NotificationType = "dispute_resolved"
	NotifyMessageNew      NotificationType = "message_new"
	NotifyReviewNew       NotificationType = "review_new"
	NotifySystem          NotificationType = "system"
)

type Notification struct {
	ID        uint64           `gorm:"primaryKey" json:"id"`
	UserID    uint64           `gorm:"index;not null" json:"userId"`
	SenderID  *uint64          `json:"senderId,omitempty"`
	Type      NotificationType `gorm:"size:32;not null" json:"type"`
	Content   string           `gorm:"type:text;not null" json:"content"`
	Link      string           `gorm:"size:255" json:"link,omitempty"`
	IsRead    bool             `gorm:"index;default:false" json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}

type Message struct {
	ID          uint64     `gorm:"primaryKey" json:"id"`
	SenderID    uint64     `gorm:"index;not null" json:"senderId"`
	RecipientID uint64     `gorm:"index;not null" json:"recipientId"`
	JobID       *uint64    `gorm:"index" json:"jobId,omitempty"`
	Body        string     `gorm:"type:text;not null" json:"body"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type PaymentKind string

const (
	PaymentDeposit PaymentKind = "deposit"
	PaymentRelease PaymentKind = "release"
	PaymentRefund  PaymentKind = "refund"
	PaymentSplit   PaymentKind = "split"
)

type Payment struct {
	ID         uint64      `gorm:"primaryKey" json:"id"`
	ContractID uint64      `gorm:"index;not null" json:"contractId"`
	PayerID    uint64      `json:"payerId"`
	PayeeID    uint64      `json:"payeeId"`
	Kind       PaymentKind `gorm:"size:16;not null" json:"kind"`
	AmountWei  string      `gorm:"size:80;not null" json:"amountWei"`
	TxHash     string      `gorm:"size:66" json:"txHash,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

type Review struct {
	ID         uint64    `gorm:"primaryKey" json:"id"`
	ContractID uint64    `gorm:"uniqueIndex:idx_review_contract_reviewer;not null" json:"contractId"`
	ReviewerID uint64    `gorm:"uniqueIndex:idx_review_contract_reviewer;not null" json:"reviewerId"`
	RevieweeID uint64    `gorm:"index;not null" json:"revieweeId"`
	Rating     uint8     `gorm:"not null" json:"rating"`
	Comment    string    `gorm:"type:text" json:"comment"`
	CreatedAt  time.Time `json:"createdAt"`
}

type ReportStatus string

const (
	ReportOpen      ReportStatus = "open"
	ReportReviewed  ReportStatus = "reviewed"
	ReportDismissed ReportStatus = "dismissed"
)

type Report struct {
	ID         uint64       `gorm:"primaryKey" json:"id"`
	ReporterID uint64       `gorm:"index;not null" json:"reporterId"`
	TargetType string       `gorm:"size:16;not null" json:"targetType"`
	TargetID   uint64       `gorm:"not null" json:"targetId"`
	Reason     string       `gorm:"type:text;not null" json:"reason"`
	Status     ReportStatus `gorm:"size:16;index;not null;default:open" json:"status"`
	AdminNote  string       `gorm:"type:text" json:"adminNote,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// StoredFile indexes blobs held by the file store.
type StoredFile struct {
	CID         string    `gorm:"primaryKey;size:80" json:"cid"`
	Name        string    `gorm:"size:255" json:"name"`
	ContentType string    `gorm:"size:128" json:"contentType"`
	Size        int64     `json:"size"`
	UploaderID  uint64    `gorm:"index" json:"uploaderId"`
	Backend     string    `gorm:"size:16" json:"backend"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AllModels lists every table for AutoMigrate.
var AllModels = []interface{}{
	&User{}, &Job{}, &Bid{}, &Contract{}, &Notification{},
	&Message{}, &Payment{}, &Review{}, &Report{}, &StoredFile{},
}
