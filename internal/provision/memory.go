package provision

import (
	"context"
	"sync"

	"flightops/internal/apperr"
)

// MemoryDirectory is an in-process Directory.
type MemoryDirectory struct {
	mu       sync.Mutex
	users    map[string]User
	profiles map[string]Profile
	crew     map[string]CrewMember
}

// NewMemoryDirectory returns an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users:    make(map[string]User),
		profiles: make(map[string]Profile),
		crew:     make(map[string]CrewMember),
	}
}

func (d *MemoryDirectory) CreateUser(_ context.Context, u User) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.users {
		if existing.Email == u.Email {
			return apperr.Conflict("provision.CreateUser", "email %s is already registered", u.Email)
		}
	}
	d.users[u.ID] = u
	return nil
}

func (d *MemoryDirectory) DeleteUser(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.users, id)
	return nil
}

func (d *MemoryDirectory) CreateProfile(_ context.Context, p Profile) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.ID] = p
	return nil
}

func (d *MemoryDirectory) DeleteProfile(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.profiles, id)
	return nil
}

func (d *MemoryDirectory) CreateCrewMember(_ context.Context, c CrewMember) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.crew {
		if existing.License == c.License {
			return apperr.Conflict("provision.CreateCrewMember", "license %s is already assigned", c.License)
		}
	}
	d.crew[c.ID] = c
	return nil
}

// Counts returns the number of stored users, profiles and crew members.
func (d *MemoryDirectory) Counts() (users, profiles, crew int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.users), len(d.profiles), len(d.crew)
}
