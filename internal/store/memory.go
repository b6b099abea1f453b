package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mycloud-app/mycloud/types"
)

// Memory holds users and files in process memory with the same semantics as
// the postgres repositories: unique login and email, cascading file delete.
type Memory struct {
	mu         sync.Mutex
	users      map[int]types.User
	files      map[int]types.FileRecord
	nextUserID int
	nextFileID int
}

func NewMemory() *Memory {
	return &Memory{
		users: make(map[int]types.User),
		files: make(map[int]types.FileRecord),
	}
}

// Users returns the user repository view.
func (m *Memory) Users() *MemoryUsers {
	return &MemoryUsers{m: m}
}

// Files returns the file repository view.
func (m *Memory) Files() *MemoryFiles {
	return &MemoryFiles{m: m}
}

type MemoryUsers struct {
	m *Memory
}

func (r *MemoryUsers) GetByID(_ context.Context, id int) (types.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return u, nil
}

func (r *MemoryUsers) find(match func(types.User) bool) (types.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		if match(u) {
			return u, nil
		}
	}
	return types.User{}, ErrNotFound
}

func (r *MemoryUsers) GetByLogin(_ context.Context, login string) (types.User, error) {
	return r.find(func(u types.User) bool { return u.Login == login })
}

func (r *MemoryUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	return r.find(func(u types.User) bool { return u.Email == email })
}

func (r *MemoryUsers) List(context.Context) ([]types.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]types.User, 0, len(r.m.users))
	for _, u := range r.m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryUsers) conflicts(user types.User) bool {
	for _, u := range r.m.users {
		if u.ID != user.ID && (u.Login == user.Login || u.Email == user.Email) {
			return true
		}
	}
	return false
}

func (r *MemoryUsers) Create(_ context.Context, user types.User) (types.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.conflicts(user) {
		return types.User{}, ErrConflict
	}
	r.m.nextUserID++
	user.ID = r.m.nextUserID
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	user.Files = nil
	r.m.users[user.ID] = user
	return user, nil
}

func (r *MemoryUsers) Update(_ context.Context, user types.User) (types.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.users[user.ID]; !ok {
		return types.User{}, ErrNotFound
	}
	if r.conflicts(user) {
		return types.User{}, ErrConflict
	}
	user.UpdatedAt = time.Now()
	user.Files = nil
	r.m.users[user.ID] = user
	return user, nil
}

func (r *MemoryUsers) Delete(_ context.Context, id int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.users[id]; !ok {
		return ErrNotFound
	}
	delete(r.m.users, id)
	for fid, f := range r.m.files {
		if f.UserID == id {
			delete(r.m.files, fid)
		}
	}
	return nil
}

type MemoryFiles struct {
	m *Memory
}

func (r *MemoryFiles) Get(_ context.Context, id int) (types.FileRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	f, ok := r.m.files[id]
	if !ok {
		return types.FileRecord{}, ErrNotFound
	}
	return f, nil
}

func (r *MemoryFiles) filter(match func(types.FileRecord) bool) []types.FileRecord {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := []types.FileRecord{}
	for _, f := range r.m.files {
		if match(f) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *MemoryFiles) List(context.Context) ([]types.FileRecord, error) {
	return r.filter(func(types.FileRecord) bool { return true }), nil
}

func (r *MemoryFiles) ListByUser(_ context.Context, userID int) ([]types.FileRecord, error) {
	return r.filter(func(f types.FileRecord) bool { return f.UserID == userID }), nil
}

func (r *MemoryFiles) Create(_ context.Context, rec types.FileRecord) (types.FileRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.users[rec.UserID]; !ok {
		return types.FileRecord{}, ErrNotFound
	}
	r.m.nextFileID++
	rec.ID = r.m.nextFileID
	rec.UploadDate = time.Now()
	rec.UpdatedAt = rec.UploadDate
	r.m.files[rec.ID] = rec
	return rec, nil
}

func (r *MemoryFiles) Update(_ context.Context, rec types.FileRecord) (types.FileRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cur, ok := r.m.files[rec.ID]
	if !ok {
		return types.FileRecord{}, ErrNotFound
	}
	cur.FileName = rec.FileName
	cur.Comment = rec.Comment
	cur.UpdatedAt = time.Now()
	r.m.files[rec.ID] = cur
	return cur, nil
}

func (r *MemoryFiles) MarkDownloaded(_ context.Context, id int, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cur, ok := r.m.files[id]
	if !ok {
		return ErrNotFound
	}
	cur.LastDownloaded = &at
	r.m.files[id] = cur
	return nil
}

func (r *MemoryFiles) Delete(_ context.Context, id int, url string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cur, ok := r.m.files[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.m.files, id)
	if owner, ok := r.m.users[cur.UserID]; ok && url != "" && owner.Avatar == url {
		owner.Avatar = ""
		owner.UpdatedAt = time.Now()
		r.m.users[owner.ID] = owner
	}
	return nil
}
