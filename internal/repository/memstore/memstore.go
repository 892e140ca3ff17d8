// Package memstore keeps every table in process memory behind one mutex.
// It mirrors the constraints of the MySQL schema (unique keys, restricting
// and cascading foreign keys, compare-and-swap consumption) so services can
// be exercised without a database.
package memstore

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/access-control-api/internal/model"
)

type refreshRow struct {
	userID    int64
	expiresAt time.Time
	revoked   bool
}

// DB holds all tables. Use the accessor methods to obtain typed stores.
type DB struct {
	mu          sync.Mutex
	seq         int64
	users       map[int64]*model.User
	bootstrap   int64
	roles       map[int64]*model.Role
	privileges  map[int64]*model.Privilege
	assignments map[int64]map[int64]time.Time
	invitations map[int64]*model.Invitation
	resets      map[int64]*model.PasswordResetToken
	policies    map[int64]*model.Policy
	refresh     map[string]*refreshRow
}

// New returns an empty database.
func New() *DB {
	return &DB{
		users:       map[int64]*model.User{},
		roles:       map[int64]*model.Role{},
		privileges:  map[int64]*model.Privilege{},
		assignments: map[int64]map[int64]time.Time{},
		invitations: map[int64]*model.Invitation{},
		resets:      map[int64]*model.PasswordResetToken{},
		policies:    map[int64]*model.Policy{},
		refresh:     map[string]*refreshRow{},
	}
}

// Seeded returns a database holding the default roles, privileges and
// policies of a fresh deployment.
func Seeded() *DB {
	db := New()
	now := time.Now().UTC()
	for _, r := range []model.Role{
		{ID: 1, Name: "Super Admin", Description: "Full system access", HierarchyLevel: 0},
		{ID: 2, Name: "Normal User", Description: "Standard user access", HierarchyLevel: 3},
		{ID: 3, Name: "Property Admin", Description: "Property management access", HierarchyLevel: 1},
		{ID: 4, Name: "Security Admin", Description: "Security management access", HierarchyLevel: 2},
	} {
		r := r
		r.CreatedAt = now
		db.roles[r.ID] = &r
	}
	for i, p := range [][3]string{
		{"User Management", "Manage users", "User"},
		{"Role Management", "Manage roles", "Role"},
		{"Invitation Management", "Manage invitations", "Invitation"},
		{"System Configuration", "Configure system settings", "System"},
		{"Property Management", "Manage properties", "Property"},
		{"Security Management", "Manage security settings", "Security"},
		{"View Profile", "View own profile", "User"},
		{"Edit Profile", "Edit own profile", "User"},
	} {
		id := int64(i + 1)
		db.privileges[id] = &model.Privilege{ID: id, Name: p[0], Description: p[1], Category: p[2],
			CreatedOnly: model.CreatedOnly{CreatedAt: now}}
	}
	for i, typ := range []string{"terms", "privacy"} {
		id := int64(i + 1)
		db.policies[id] = &model.Policy{ID: id, Type: typ, Content: typ + " content", Version: "1.0",
			IsActive: true, Timestamps: model.Timestamps{CreatedAt: now, UpdatedAt: now}}
	}
	db.seq = 100
	return db
}

func (db *DB) nextID() int64 {
	db.seq++
	return db.seq
}

func (db *DB) Users() *Users { return &Users{db: db} }
func (db *DB) Roles() *Roles { return &Roles{db: db} }
func (db *DB) Privileges() *Privileges { return &Privileges{db: db} }
func (db *DB) Invitations() *Invitations { return &Invitations{db: db} }
func (db *DB) ResetTokens() *ResetTokens { return &ResetTokens{db: db} }
func (db *DB) Policies() *Policies { return &Policies{db: db} }
func (db *DB) RefreshTokens() *Refresh { return &Refresh{db: db} }

func normEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func sortedIDs[T any](m map[int64]T) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
