package market

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/stake-plus/escrow-market/src/api/types"
)

// UpsertByWallet returns the user for addr, creating it on first login.
// Wallets in the admin allowlist are promoted to admin.
func (s *Service) UpsertByWallet(ctx context.Context, addr string) (*types.User, error) {
	addr = strings.ToLower(strings.TrimSpace(addr))
	var u types.User
	err := s.db.WithContext(ctx).Where("wallet_address = ?", addr).First(&u).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		u = types.User{WalletAddress: addr, Role: types.RoleClient}
		if s.isAdminWallet(addr) {
			u.Role = types.RoleAdmin
		}
		if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
			if isDuplicate(err) {
				return s.UpsertByWallet(ctx, addr)
			}
			return nil, err
		}
	case err != nil:
		return nil, err
	case u.Role != types.RoleAdmin && s.isAdminWallet(addr):
		if err := s.db.WithContext(ctx).Model(&u).Update("role", types.RoleAdmin).Error; err != nil {
			return nil, err
		}
		u.Role = types.RoleAdmin
	}
	return &u, nil
}

func (s *Service) isAdminWallet(addr string) bool {
	_, ok := s.adminWallets[strings.ToLower(addr)]
	return ok
}

// AdminAllowed reports whether addr may use admin routes. An empty
// allowlist defers to the user's role alone.
func (s *Service) AdminAllowed(addr string) bool {
	return len(s.adminWallets) == 0 || s.isAdminWallet(addr)
}

func (s *Service) GetUser(ctx context.Context, id uint64) (*types.User, error) {
	return s.user(ctx, id)
}

// ProfileUpdate carries the optional profile fields; nil means unchanged.
type ProfileUpdate struct {
	Name   *string
	Email  *string
	Bio    *string
	Skills []string
	Role   *types.Role
}

func (s *Service) UpdateProfile(ctx context.Context, userID uint64, in ProfileUpdate) (*types.User, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	updates := map[string]any{}
	if in.Name != nil {
		name := s.cleanText(*in.Name)
		if len(name) > 128 {
			return nil, invalid("name must be at most 128 characters")
		}
		updates["name"] = name
	}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if email != "" {
			if _, err := mail.ParseAddress(email); err != nil || strings.ContainsAny(email, "<> ") {
				return nil, invalid("invalid email address")
			}
		}
		updates["email"] = email
	}
	if in.Bio != nil {
		bio := s.cleanRich(*in.Bio)
		if len(bio) > 5000 {
			return nil, invalid("bio must be at most 5000 characters")
		}
		updates["bio"] = bio
	}
	if in.Skills != nil {
		skills, err := s.cleanSkills(in.Skills)
		if err != nil {
			return nil, err
		}
		updates["skills"] = datatypes.JSONSlice[string](skills)
	}
	if in.Role != nil {
		if *in.Role != types.RoleClient && *in.Role != types.RoleFreelancer {
			return nil, invalid("role must be client or freelancer")
		}
		if u.Role == types.RoleAdmin {
			return nil, forbidden("admins cannot change their own role")
		}
		updates["role"] = *in.Role
	}
	if len(updates) == 0 {
		return u, nil
	}
	if err := s.db.WithContext(ctx).Model(u).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.user(ctx, userID)
}

func (s *Service) SetAvatar(ctx context.Context, userID uint64, cid string) error {
	res := s.db.WithContext(ctx).Model(&types.User{}).Where("id = ?", userID).Update("avatar_cid", cid)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound("user")
	}
	return nil
}

func (s *Service) ListUsers(ctx context.Context, role types.Role, search string, p Page) (List[types.User], error) {
	q := s.db.WithContext(ctx).Model(&types.User{})
	if role != "" {
		q = q.Where("role = ?", role)
	}
	if search = strings.TrimSpace(search); search != "" {
		like := "%" + escapeLike(strings.ToLower(search)) + "%"
		q = q.Where("LOWER(name) LIKE ? ESCAPE '!' OR LOWER(wallet_address) LIKE ? ESCAPE '!'", like, like)
	}
	return paginate[types.User](q, p, "id ASC")
}

func (s *Service) SetRole(ctx context.Context, adminID, userID uint64, role types.Role) (*types.User, error) {
	switch role {
	case types.RoleClient, types.RoleFreelancer, types.RoleAdmin:
	default:
		return nil, invalid("unknown role %q", role)
	}
	if adminID == userID && role != types.RoleAdmin {
		return nil, forbidden("admins cannot demote themselves")
	}
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(u).Update("role", role).Error; err != nil {
		return nil, err
	}
	u.Role = role
	return u, nil
}

func (s *Service) cleanSkills(in []string) ([]string, error) {
	if len(in) > 20 {
		return nil, invalid("at most 20 skills")
	}
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, sk := range in {
		sk = s.cleanText(sk)
		if sk == "" || seen[strings.ToLower(sk)] {
			continue
		}
		if len(sk) > 50 {
			return nil, invalid("skill %q is too long", sk)
		}
		seen[strings.ToLower(sk)] = true
		out = append(out, sk)
	}
	return out, nil
}
