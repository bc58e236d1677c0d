package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/CUknot/nexus_chat/models"
	"github.com/CUknot/nexus_chat/utils"
)

// IdentityVerifier turns a bearer credential into a trusted user.
// Implementations return errors wrapping ErrUnauthenticated for every
// rejected credential.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (*models.User, error)
}

type userLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// TokenVerifier verifies JWT bearer credentials against the user store.
type TokenVerifier struct {
	tokens *utils.TokenManager
	users  userLookup
}

func NewTokenVerifier(tokens *utils.TokenManager, users userLookup) *TokenVerifier {
	return &TokenVerifier{tokens: tokens, users: users}
}

// Verify accepts "Bearer <jwt>" or a bare token.
func (v *TokenVerifier) Verify(ctx context.Context, credential string) (*models.User, error) {
	token := StripBearer(credential)
	if token == "" {
		return nil, fmt.Errorf("%w: credential missing", ErrUnauthenticated)
	}

	claims, err := v.tokens.ParseToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	user, err := v.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: user %s no longer exists", ErrUnauthenticated, claims.UserID)
		}
		return nil, err
	}
	return user, nil
}

// StripBearer removes an optional "Bearer " scheme prefix.
func StripBearer(credential string) string {
	credential = strings.TrimSpace(credential)
	if len(credential) >= 7 && strings.EqualFold(credential[:7], "bearer ") {
		credential = credential[7:]
	}
	return strings.TrimSpace(credential)
}
