// Package market implements the marketplace: jobs, bids, escrow contracts,
// messages, reviews, reports and the admin views over them.
package market

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"

	"github.com/stake-plus/escrow-market/src/api/chain"
	"github.com/stake-plus/escrow-market/src/api/notify"
	"github.com/stake-plus/escrow-market/src/api/types"
)

// Notifier is the part of the notification dispatcher the services use.
type Notifier interface {
	Notify(ctx context.Context, in notify.Input) (*types.Notification, error)
	Event(ctx context.Context, userID uint64, event string, payload any)
	AlertAdmins(ctx context.Context, typ types.NotificationType, title, body, link string)
}

// ChainSyncer reads escrow state and reconciles it with the mirror.
type ChainSyncer interface {
	Sync(ctx context.Context, mirror chain.MirrorState, txHash string) (chain.SyncResult, error)
	Balance(ctx context.Context, contractID uint64) (*big.Int, error)
}

type Options struct {
	// Syncer and Resolver are nil when no chain is configured; the service
	// then runs on the mirror alone.
	Syncer       ChainSyncer
	Resolver     chain.Resolver
	AdminWallets []string
	// StaleAfter is how old a sync may be before the reconciler revisits
	// a live contract.
	StaleAfter time.Duration
}

type Service struct {
	db           *gorm.DB
	notify       Notifier
	syncer       ChainSyncer
	resolver     chain.Resolver
	adminWallets map[string]struct{}
	staleAfter   time.Duration
	plain        *bluemonday.Policy
	rich         *bluemonday.Policy
}

func NewService(db *gorm.DB, n Notifier, opts Options) *Service {
	s := &Service{
		db:           db,
		notify:       n,
		syncer:       opts.Syncer,
		resolver:     opts.Resolver,
		adminWallets: make(map[string]struct{}),
		staleAfter:   opts.StaleAfter,
		plain:        bluemonday.StrictPolicy(),
		rich:         richPolicy(),
	}
	if s.staleAfter <= 0 {
		s.staleAfter = 10 * time.Minute
	}
	for _, w := range opts.AdminWallets {
		s.adminWallets[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return s
}

// ChainEnabled reports whether contract state is checked against the chain.
func (s *Service) ChainEnabled() bool {
	return s.syncer != nil
}

// richPolicy keeps basic markdown formatting in long-form text.
func richPolicy() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AllowElements("p", "br", "strong", "em", "code", "pre", "blockquote")
	p.AllowElements("ul", "ol", "li")
	p.AllowElements("h1", "h2", "h3", "h4", "h5", "h6")
	p.AllowAttrs("href").OnElements("a")
	p.RequireParseableURLs(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoFollowOnLinks(true)
	return p
}

func (s *Service) cleanText(v string) string {
	return strings.TrimSpace(s.plain.Sanitize(v))
}

func (s *Service) cleanRich(v string) string {
	return strings.TrimSpace(s.rich.Sanitize(v))
}

// Page is a 1-based page request.
type Page struct {
	Page  int
	Limit int
}

func (p Page) normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 || p.Limit > 100 {
		p.Limit = 20
	}
	return p
}

func (p Page) offset() int { return (p.Page - 1) * p.Limit }

// List is one page of results.
type List[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}

// paginate counts q and loads one page of it; preloads apply to the page
// query only.
func paginate[T any](q *gorm.DB, p Page, order string, preloads ...string) (List[T], error) {
	p = p.normalize()
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return List[T]{}, err
	}
	page := q.Session(&gorm.Session{})
	for _, name := range preloads {
		page = page.Preload(name)
	}
	items := make([]T, 0)
	if err := page.Order(order).Offset(p.offset()).Limit(p.Limit).Find(&items).Error; err != nil {
		return List[T]{}, err
	}
	return List[T]{Items: items, Total: total, Page: p.Page, Limit: p.Limit}, nil
}

func (s *Service) user(ctx context.Context, id uint64) (*types.User, error) {
	var u types.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, lookupErr(err, "user")
	}
	return &u, nil
}

func ptr[T any](v T) *T { return &v }
