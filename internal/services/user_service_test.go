package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-upload-service/internal/models"
	"weather-upload-service/internal/repository"
)

type fakeUserRepo struct {
	byEmail     map[string]*models.User
	nextID      int64
	createErr   error
	createCalls int

	// missNextLookup makes the next FindByEmail miss even when the row
	// exists, simulating a lost creation race.
	missNextLookup bool
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byEmail: make(map[string]*models.User), nextID: 100}
}

func (f *fakeUserRepo) GetByID(_ context.Context, id int64) (*models.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, &repository.NotFoundError{Resource: "user"}
}

func (f *fakeUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if f.missNextLookup {
		f.missNextLookup = false
		return nil, &repository.NotFoundError{Resource: "user", ID: email}
	}
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, &repository.NotFoundError{Resource: "user", ID: email}
}

func (f *fakeUserRepo) Create(_ context.Context, user *models.User) error {
	f.createCalls++
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	user.ID = f.nextID
	f.byEmail[user.Email] = user
	return nil
}

func demoIdentity() DemoUser {
	return DemoUser{Name: "Demo", Email: "demo@example.com", PasswordHash: "hash"}
}

func TestEnsureDemoUser_CreatesOnFirstUse(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewUserService(repo, testLogger())

	user, err := svc.EnsureDemoUser(context.Background(), demoIdentity())
	require.NoError(t, err)
	assert.Equal(t, "demo@example.com", user.Email)
	assert.NotZero(t, user.ID)
	assert.Equal(t, 1, repo.createCalls)
}

func TestEnsureDemoUser_ReusesExisting(t *testing.T) {
	repo := newFakeUserRepo()
	repo.byEmail["demo@example.com"] = &models.User{ID: 5, Email: "demo@example.com"}
	svc := NewUserService(repo, testLogger())

	user, err := svc.EnsureDemoUser(context.Background(), demoIdentity())
	require.NoError(t, err)
	assert.Equal(t, int64(5), user.ID)
	assert.Zero(t, repo.createCalls)
}

func TestEnsureDemoUser_CreationRaceRereads(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewUserService(repo, testLogger())

	// Another consumer instance inserts the row between our lookup and our
	// insert: the first lookup misses, the insert trips the unique email
	// index, and the follow-up lookup finds the other instance's row.
	repo.byEmail["demo@example.com"] = &models.User{ID: 9, Email: "demo@example.com"}
	repo.missNextLookup = true
	repo.createErr = &repository.DuplicateError{Resource: "user", Constraint: "users_email_key"}

	user, err := svc.EnsureDemoUser(context.Background(), demoIdentity())
	require.NoError(t, err)
	assert.Equal(t, int64(9), user.ID)
	assert.Equal(t, 1, repo.createCalls)
}

func TestEnsureDemoUser_IncompleteIdentity(t *testing.T) {
	svc := NewUserService(newFakeUserRepo(), testLogger())

	_, err := svc.EnsureDemoUser(context.Background(), DemoUser{Name: "Demo"})
	require.Error(t, err)
}

func TestEnsureDemoUser_CreateErrorPropagates(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewUserService(repo, testLogger())
	repo.createErr = errors.New("connection refused")

	_, err := svc.EnsureDemoUser(context.Background(), demoIdentity())
	require.Error(t, err)
}
