// internal/seed/seed.go
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/baiweichihu/26b-website-sub001/internal/repository"
	"github.com/baiweichihu/26b-website-sub001/internal/types"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// DefaultPassword is shared by every seeded profile.
const DefaultPassword = "password123"

// Member is one entry of the development roster.
type Member struct {
	Email            string
	Nickname         string
	IdentityType     types.IdentityType
	Role             types.Role
	CanManageJournal bool
}

// Roster covers every tier so each screen can be exercised locally.
var Roster = []Member{
	{Email: "monitor@class26b.site", Nickname: "Class Monitor", IdentityType: types.IdentityClassmate, Role: types.RoleSuperuser, CanManageJournal: true},
	{Email: "editor@class26b.site", Nickname: "Journal Editor", IdentityType: types.IdentityClassmate, Role: types.RoleAdmin, CanManageJournal: true},
	{Email: "helper@class26b.site", Nickname: "Event Helper", IdentityType: types.IdentityClassmate, Role: types.RoleAdmin},
	{Email: "lin@class26b.site", Nickname: "Lin", IdentityType: types.IdentityClassmate},
	{Email: "chen@alumni.class26b.site", Nickname: "Chen", IdentityType: types.IdentityAlumni},
	{Email: "wang@alumni.class26b.site", Nickname: "Wang", IdentityType: types.IdentityAlumni},
	{Email: "visitor@example.com", Nickname: "Visitor", IdentityType: types.IdentityGuest},
}

// SeedData creates the roster and one pending request per alumnus.
// Profiles that already exist are left untouched.
func SeedData(ctx context.Context, repos *repository.Repositories, logger *zap.Logger) error {
	log := logger.Named("seed")

	password, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}

	created := 0
	for _, m := range Roster {
		existing, err := repos.ProfileRepo.FindByEmail(ctx, m.Email)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}

		profile := &repository.Profile{
			Email:            m.Email,
			Password:         string(password),
			Nickname:         m.Nickname,
			IdentityType:     m.IdentityType,
			Role:             m.Role,
			CanManageJournal: m.CanManageJournal,
		}
		if err := repos.ProfileRepo.Create(ctx, profile); err != nil {
			return err
		}
		created++

		if m.IdentityType != types.IdentityAlumni {
			continue
		}
		start := time.Now().Add(24 * time.Hour).Truncate(time.Hour)
		req := &repository.AccessRequest{
			RequesterID: profile.ID,
			Status:      types.StatusPending,
			WindowStart: start,
			WindowEnd:   start.Add(2 * time.Hour),
			Reason:      "Looking back at our graduation trip entries",
		}
		if err := repos.AccessRequestRepo.Create(ctx, req); err != nil {
			return err
		}
	}

	if created == 0 {
		log.Info("data already exists, skipping")
		return nil
	}
	log.Info("seeded class roster", zap.Int("profiles", created), zap.String("password", DefaultPassword))
	return nil
}
