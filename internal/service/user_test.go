package service

import (
	"Kladovka/internal/model"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type mockUserRepo struct{ mock.Mock }

func (m *mockUserRepo) CreateUser(ctx context.Context, u *model.User) (*model.User, error) {
	args := m.Called(ctx, u)
	if v, ok := args.Get(0).(*model.User); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserRepo) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	args := m.Called(ctx, login)
	if v, ok := args.Get(0).(*model.User); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func TestUserService_Register(t *testing.T) {
	r := new(mockUserRepo)
	svc := NewUserService(r)
	ctx := context.Background()

	r.On("GetUserByLogin", mock.Anything, "alice").Return(nil, nil).Once()
	r.On("CreateUser", mock.Anything, mock.MatchedBy(func(u *model.User) bool {
		// пароль приходит в репозиторий уже bcrypt-хэшем
		return u.Login == "alice" &&
			bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("secret")) == nil
	})).Return(&model.User{ID: 1, Login: "alice"}, nil).Once()

	u, err := svc.Register(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.EqualValues(t, 1, u.ID)
	r.AssertExpectations(t)

	// занятый логин
	r.On("GetUserByLogin", mock.Anything, "alice").Return(&model.User{ID: 1, Login: "alice"}, nil).Once()
	_, err = svc.Register(ctx, "alice", "secret")
	assert.ErrorIs(t, err, ErrLoginTaken)

	// пустые креды
	var verr *ValidationError
	_, err = svc.Register(ctx, "", "secret")
	assert.ErrorAs(t, err, &verr)
	_, err = svc.Register(ctx, "bob", "")
	assert.ErrorAs(t, err, &verr)
}

func TestUserService_Authenticate(t *testing.T) {
	r := new(mockUserRepo)
	svc := NewUserService(r)
	ctx := context.Background()

	hash, _ := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	stored := &model.User{ID: 1, Login: "alice", Password: string(hash)}

	r.On("GetUserByLogin", mock.Anything, "alice").Return(stored, nil)
	u, err := svc.Authenticate(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.EqualValues(t, 1, u.ID)

	_, err = svc.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	r.On("GetUserByLogin", mock.Anything, "nobody").Return(nil, nil)
	_, err = svc.Authenticate(ctx, "nobody", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
