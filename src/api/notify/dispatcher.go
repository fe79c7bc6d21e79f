// Package notify stores notifications and fans them out to the realtime hub,
// the redis event stream, email and the admin Discord channel.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/stake-plus/escrow-market/src/api/data"
	"github.com/stake-plus/escrow-market/src/api/realtime"
	"github.com/stake-plus/escrow-market/src/api/types"
	"github.com/stake-plus/escrow-market/src/logging"
)

var ErrNotFound = errors.New("notification not found")

const sideEffectTimeout = 15 * time.Second

// Emitter is the realtime side of the hub.
type Emitter interface {
	Emit(userID uint64, event string, payload any) bool
}

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Alerter interface {
	Alert(ctx context.Context, title, body, link string) error
}

type Dispatcher struct {
	db    *gorm.DB
	rdb   *redis.Client
	hub   Emitter
	mail  Mailer
	alert Alerter
	wg    sync.WaitGroup
}

type Option func(*Dispatcher)

func WithMailer(m Mailer) Option   { return func(d *Dispatcher) { d.mail = m } }
func WithAlerter(a Alerter) Option { return func(d *Dispatcher) { d.alert = a } }

// NewDispatcher wires the dispatcher. rdb and hub may be nil.
func NewDispatcher(db *gorm.DB, rdb *redis.Client, hub Emitter, opts ...Option) *Dispatcher {
	d := &Dispatcher{db: db, rdb: rdb, hub: hub}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Input is a notification to deliver to one user.
type Input struct {
	UserID   uint64
	SenderID *uint64
	Type     types.NotificationType
	Content  string
	Link     string
}

// Notify persists the notification and then delivers it on every channel.
// Only the database write can fail the call.
func (d *Dispatcher) Notify(ctx context.Context, in Input) (*types.Notification, error) {
	n := &types.Notification{
		UserID:   in.UserID,
		SenderID: in.SenderID,
		Type:     in.Type,
		Content:  in.Content,
		Link:     in.Link,
	}
	if err := d.db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, err
	}

	d.Event(ctx, n.UserID, realtime.EventNotification, n)

	if d.mail != nil {
		d.sendEmail(ctx, n)
	}
	return n, nil
}

// Event pushes a domain event to the user's sockets and the event stream.
func (d *Dispatcher) Event(ctx context.Context, userID uint64, event string, payload any) {
	if d.hub != nil {
		d.hub.Emit(userID, event, payload)
	}
	if d.rdb != nil {
		if err := data.PublishEvent(ctx, d.rdb, data.Event{Name: event, UserID: userID, Payload: payload}); err != nil {
			logging.Warn(ctx, "publish event failed", "event", event, "user_id", userID, "error", err)
		}
	}
}

// AlertAdmins notifies every admin account and posts to the admin channel.
func (d *Dispatcher) AlertAdmins(ctx context.Context, typ types.NotificationType, title, body, link string) {
	var admins []types.User
	if err := d.db.WithContext(ctx).Where("role = ?", types.RoleAdmin).Find(&admins).Error; err != nil {
		logging.Error(ctx, "load admins", "error", err)
	}
	for _, a := range admins {
		if _, err := d.Notify(ctx, Input{UserID: a.ID, Type: typ, Content: title + ": " + body, Link: link}); err != nil {
			logging.Error(ctx, "notify admin", "admin_id", a.ID, "error", err)
		}
	}

	if d.alert == nil {
		return
	}
	d.background(ctx, func(ctx context.Context) {
		if err := d.alert.Alert(ctx, title, body, link); err != nil {
			logging.Warn(ctx, "admin alert failed", "error", err)
		}
	})
}

func (d *Dispatcher) sendEmail(ctx context.Context, n *types.Notification) {
	var user types.User
	if err := d.db.WithContext(ctx).Select("id", "email").First(&user, n.UserID).Error; err != nil || user.Email == "" {
		return
	}
	subject := "New activity: " + string(n.Type)
	body := n.Content
	if n.Link != "" {
		body += "\n\n" + n.Link
	}
	d.background(ctx, func(ctx context.Context) {
		if err := d.mail.Send(ctx, user.Email, subject, body); err != nil {
			logging.Warn(ctx, "notification email failed", "user_id", n.UserID, "error", err)
		}
	})
}

// background runs fn detached from the request but bounded in time.
func (d *Dispatcher) background(ctx context.Context, fn func(context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
		defer cancel()
		fn(bg)
	}()
}

// Wait blocks until pending emails and alerts are done.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) List(ctx context.Context, userID uint64, unreadOnly bool, page, limit int) ([]types.Notification, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	q := d.db.WithContext(ctx).Model(&types.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []types.Notification
	err := q.Order("created_at DESC, id DESC").Offset((page - 1) * limit).Limit(limit).Find(&out).Error
	return out, total, err
}

func (d *Dispatcher) UnreadCount(ctx context.Context, userID uint64) (int64, error) {
	var n int64
	err := d.db.WithContext(ctx).Model(&types.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).Count(&n).Error
	return n, err
}

func (d *Dispatcher) MarkRead(ctx context.Context, userID, id uint64) error {
	res := d.db.WithContext(ctx).Model(&types.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// MySQL reports unchanged rows as unaffected
		var n int64
		if err := d.db.WithContext(ctx).Model(&types.Notification{}).
			Where("id = ? AND user_id = ?", id, userID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
	}
	return nil
}

func (d *Dispatcher) MarkAllRead(ctx context.Context, userID uint64) (int64, error) {
	res := d.db.WithContext(ctx).Model(&types.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).Update("is_read", true)
	return res.RowsAffected, res.Error
}

func (d *Dispatcher) Delete(ctx context.Context, userID, id uint64) error {
	res := d.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&types.Notification{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
