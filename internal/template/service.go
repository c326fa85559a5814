package template

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"bot-core/pkg/store"
)

// Service is the CRUD layer over stored templates.
type Service struct {
	store *store.Store
}

func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

func (s *Service) Create(ctx context.Context, t *Template) (*Template, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.ID = uuid.NewString()
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	if err := store.PutTyped(ctx, s.store, store.Templates, t.ID, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) Update(ctx context.Context, userID string, t *Template) (*Template, error) {
	existing, err := s.Get(ctx, userID, t.ID)
	if err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.UserID = existing.UserID
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	if err := store.PutTyped(ctx, s.store, store.Templates, t.ID, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Get returns one template owned by userID, or ErrNotFound. Bots hold weak
// references; callers must treat ErrNotFound as "cannot execute", not fatal.
func (s *Service) Get(ctx context.Context, userID, id string) (*Template, error) {
	var t Template
	if err := store.GetTyped(ctx, s.store, store.Templates, id, &t); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if t.UserID != userID {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]Template, error) {
	all, err := store.List[Template](ctx, s.store, store.Templates)
	if err != nil {
		return nil, err
	}
	out := make([]Template, 0, len(all))
	for _, t := range all {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	return s.store.DeleteByID(ctx, store.Templates, id)
}
