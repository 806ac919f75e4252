package app

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"docuquery/internal/model"
	"docuquery/internal/pkg/jwtutil"
	"docuquery/internal/repository"
)

const (
	apiKeyPrefix   = "dk_"
	apiKeyLength   = 32
	apiKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	minPasswordLength = 8
)

type AuthService struct {
	userRepo      *repository.UserRepository
	orgRepo       *repository.OrganizationRepository
	jwtSecret     string
	jwtExpiration time.Duration
}

type RegisterInput struct {
	Email            string
	Password         string
	OrganizationName string
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResult struct {
	Token  string
	APIKey string
	User   *model.User
}

// Principal is the authenticated caller. OrganizationID is the tenant id.
type Principal struct {
	UserID         string
	OrganizationID string
}

func NewAuthService(
	userRepo *repository.UserRepository,
	orgRepo *repository.OrganizationRepository,
	jwtSecret string,
	jwtExpiration time.Duration,
) *AuthService {
	return &AuthService{
		userRepo:      userRepo,
		orgRepo:       orgRepo,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
	}
}

// Register creates an organization with its owner and returns a token plus
// the organization's API key. The key is only ever returned here and on
// rotation.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	password := strings.TrimSpace(input.Password)
	orgName := strings.TrimSpace(input.OrganizationName)

	if email == "" || orgName == "" || len(password) < minPasswordLength {
		return nil, ErrInvalidInput
	}

	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailExists
	}
	existingOrg, err := s.orgRepo.GetByName(ctx, orgName)
	if err != nil {
		return nil, err
	}
	if existingOrg != nil {
		return nil, ErrOrgNameExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password failed: %w", err)
	}
	apiKey, err := generateAPIKey()
	if err != nil {
		return nil, err
	}

	org := &model.Organization{Name: orgName, APIKeyHash: HashAPIKey(apiKey)}
	user := &model.User{Email: email, PasswordHash: string(hash)}
	if err := s.orgRepo.CreateWithOwner(ctx, org, user); err != nil {
		return nil, err
	}

	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, user.ID, org.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, APIKey: apiKey, User: user}, nil
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	password := strings.TrimSpace(input.Password)
	if email == "" || password == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredential
	}

	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, user.ID, user.OrganizationID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

// RotateAPIKey replaces the organization's key; the old key stops working
// immediately.
func (s *AuthService) RotateAPIKey(ctx context.Context, organizationID string) (string, error) {
	if organizationID == "" {
		return "", ErrInvalidInput
	}
	org, err := s.orgRepo.GetByID(ctx, organizationID)
	if err != nil {
		return "", err
	}
	if org == nil {
		return "", ErrOrgNotFound
	}
	apiKey, err := generateAPIKey()
	if err != nil {
		return "", err
	}
	if err := s.orgRepo.UpdateAPIKeyHash(ctx, org.ID, HashAPIKey(apiKey)); err != nil {
		return "", err
	}
	return apiKey, nil
}

func (s *AuthService) AuthenticateAPIKey(ctx context.Context, apiKey string) (*Principal, error) {
	apiKey = strings.TrimSpace(apiKey)
	if !strings.HasPrefix(apiKey, apiKeyPrefix) {
		return nil, ErrUnauthenticated
	}
	org, err := s.orgRepo.GetByAPIKeyHash(ctx, HashAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, ErrUnauthenticated
	}
	return &Principal{OrganizationID: org.ID}, nil
}

// AuthenticateToken validates a bearer token and re-reads the user so that
// the tenant comes from the database rather than the token alone.
func (s *AuthService) AuthenticateToken(ctx context.Context, token string) (*Principal, error) {
	claims, err := jwtutil.ParseToken(s.jwtSecret, token)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnauthenticated
	}
	return &Principal{UserID: user.ID, OrganizationID: user.OrganizationID}, nil
}

func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

func generateAPIKey() (string, error) {
	var b strings.Builder
	b.Grow(len(apiKeyPrefix) + apiKeyLength)
	b.WriteString(apiKeyPrefix)
	max := big.NewInt(int64(len(apiKeyAlphabet)))
	for i := 0; i < apiKeyLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate api key failed: %w", err)
		}
		b.WriteByte(apiKeyAlphabet[n.Int64()])
	}
	return b.String(), nil
}
