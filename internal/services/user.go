package services

import (
	"context"
	"time"

	"github.com/orstracker/apiserver/internal/store"
	"github.com/orstracker/apiserver/types"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	SetResetState(ctx context.Context, id primitive.ObjectID, otpHash string, expire time.Time) error
	MarkResetVerified(ctx context.Context, id primitive.ObjectID) error
	ReplacePassword(ctx context.Context, id primitive.ObjectID, passwordHash string) error
	Delete(ctx context.Context, id primitive.ObjectID) (types.User, error)
	List(ctx context.Context, filter store.UserListFilter) ([]types.User, int64, error)
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id primitive.ObjectID) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, email)
}

func (s *UserService) Create(ctx context.Context, user types.User) (types.User, error) {
	return s.repo.Create(ctx, user)
}

func (s *UserService) SetResetState(ctx context.Context, id primitive.ObjectID, otpHash string, expire time.Time) error {
	return s.repo.SetResetState(ctx, id, otpHash, expire)
}

func (s *UserService) MarkResetVerified(ctx context.Context, id primitive.ObjectID) error {
	return s.repo.MarkResetVerified(ctx, id)
}

func (s *UserService) ReplacePassword(ctx context.Context, id primitive.ObjectID, passwordHash string) error {
	return s.repo.ReplacePassword(ctx, id, passwordHash)
}

func (s *UserService) Delete(ctx context.Context, id primitive.ObjectID) (types.User, error) {
	return s.repo.Delete(ctx, id)
}

func (s *UserService) List(ctx context.Context, filter store.UserListFilter) ([]types.User, int64, error) {
	return s.repo.List(ctx, filter)
}
