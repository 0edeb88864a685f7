package social

import "context"

// RepositoryPort defines data access methods for the follow graph.
type RepositoryPort interface {
	GetProfile(ctx context.Context, userID int64) (Profile, error)
	Follow(ctx context.Context, followerID, followingID int64) error
	Unfollow(ctx context.Context, followerID, followingID int64) error
	Followers(ctx context.Context, userID int64) ([]FollowEntry, error)
	Following(ctx context.Context, userID int64) ([]FollowEntry, error)
}

// Service handles follow graph business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

func (s *Service) Profile(ctx context.Context, userID int64) (Profile, error) {
	return s.repo.GetProfile(ctx, userID)
}

// Follow adds a follow edge. Following yourself is rejected before any
// storage call.
func (s *Service) Follow(ctx context.Context, followerID, targetID int64) error {
	if followerID == targetID {
		return ErrSelfFollow
	}
	return s.repo.Follow(ctx, followerID, targetID)
}

func (s *Service) Unfollow(ctx context.Context, followerID, targetID int64) error {
	return s.repo.Unfollow(ctx, followerID, targetID)
}

func (s *Service) Followers(ctx context.Context, userID int64) ([]FollowEntry, error) {
	return s.repo.Followers(ctx, userID)
}

func (s *Service) Following(ctx context.Context, userID int64) ([]FollowEntry, error) {
	return s.repo.Following(ctx, userID)
}
