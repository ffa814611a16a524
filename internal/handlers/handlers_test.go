package handlers

import (
	"context"
	"net/http"
	"testing"

	"fleetdesk/internal/auth"
	"fleetdesk/internal/config"
	"fleetdesk/internal/database"
	"fleetdesk/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var testSecret = []byte("test-secret")

type fakeUserRepo struct {
	users map[uuid.UUID]*models.User
}

func newFakeUserRepo(users ...*models.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[uuid.UUID]*models.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, database.ErrNotFound
}

func (f *fakeUserRepo) ListCandidateUsers(ctx context.Context) ([]models.User, error) {
	return nil, nil
}

func newTestAuthService(repo database.UserRepository) *auth.Service {
	cfg := &config.Config{}
	cfg.JWT.Secret = testSecret
	return auth.NewService(repo, cfg)
}

func mintToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID.String(),
	})
	signed, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func authorize(r *http.Request, token string) {
	r.Header.Set("Authorization", "Bearer "+token)
}
