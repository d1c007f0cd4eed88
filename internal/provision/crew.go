package provision

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"flightops/internal/apperr"
)

// Role is a crew member's seat qualification.
type Role string

const (
	RoleCaptain      Role = "captain"
	RoleFirstOfficer Role = "first_officer"
)

// User is the account record.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile holds a user's personal details.
type Profile struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone,omitempty"`
}

// CrewMember is the operational crew record referenced by logbook entries.
type CrewMember struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Role    Role   `json:"role"`
	License string `json:"license"`
}

// Directory stores the three record kinds. Create methods return an apperr conflict when a
// unique key (user email, crew license) is taken.
type Directory interface {
	CreateUser(ctx context.Context, u User) error
	DeleteUser(ctx context.Context, id string) error
	CreateProfile(ctx context.Context, p Profile) error
	DeleteProfile(ctx context.Context, id string) error
	CreateCrewMember(ctx context.Context, c CrewMember) error
}

// CrewRequest carries the inputs of a new crew account.
type CrewRequest struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Role    Role   `json:"role"`
	License string `json:"license"`
}

// Crew is a provisioned crew account.
type Crew struct {
	User       User       `json:"user"`
	Profile    Profile    `json:"profile"`
	CrewMember CrewMember `json:"crew_member"`
}

// Service provisions crew accounts.
type Service struct {
	dir    Directory
	saga   *Saga
	logger *logrus.Logger
	now    func() time.Time
}

// NewService creates a provisioning service.
func NewService(dir Directory, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{
		dir:    dir,
		saga:   NewSaga(logger),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ProvisionCrew creates the user, profile and crew member records for req. On failure every
// record already created is removed again.
func (s *Service) ProvisionCrew(ctx context.Context, req CrewRequest) (Crew, error) {
	const op = "provision.ProvisionCrew"

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	req.License = strings.ToUpper(strings.TrimSpace(req.License))
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return Crew{}, apperr.Invalid(op, "invalid email %q", req.Email)
	}
	if req.Name == "" || req.License == "" {
		return Crew{}, apperr.Invalid(op, "name and license are required")
	}
	if req.Role == "" {
		req.Role = RoleCaptain
	}
	if req.Role != RoleCaptain && req.Role != RoleFirstOfficer {
		return Crew{}, apperr.Invalid(op, "unknown crew role %q", req.Role)
	}

	user := User{ID: uuid.NewString(), Email: req.Email, CreatedAt: s.now()}
	profile := Profile{ID: uuid.NewString(), UserID: user.ID, FullName: req.Name, Phone: req.Phone}
	member := CrewMember{ID: uuid.NewString(), UserID: user.ID, Name: req.Name, Role: req.Role, License: req.License}

	err := s.saga.Run(ctx,
		Step{
			Name: "create user",
			Do:   func(ctx context.Context) error { return s.dir.CreateUser(ctx, user) },
			Undo: func(ctx context.Context) error { return s.dir.DeleteUser(ctx, user.ID) },
		},
		Step{
			Name: "create profile",
			Do:   func(ctx context.Context) error { return s.dir.CreateProfile(ctx, profile) },
			Undo: func(ctx context.Context) error { return s.dir.DeleteProfile(ctx, profile.ID) },
		},
		Step{
			Name: "create crew member",
			Do:   func(ctx context.Context) error { return s.dir.CreateCrewMember(ctx, member) },
		},
	)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			return Crew{}, apperr.Internal(op, err)
		}
		return Crew{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"user":    user.ID,
		"crew":    member.ID,
		"license": member.License,
	}).Info("Crew member provisioned")
	return Crew{User: user, Profile: profile, CrewMember: member}, nil
}
