package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vibe-drinks/models"
	"vibe-drinks/store"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AccountRepository is what login and staff registration read and write.
type AccountRepository interface {
	store.UserStore
	store.MotoboyStore
}

// Claims are the JWT claims issued at login.
type Claims struct {
	UserID string      `json:"userId"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

type AuthService struct {
	repo   AccountRepository
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthService(repo AccountRepository, secret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{repo: repo, secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Login checks a whatsapp/password pair and returns a signed token. Unknown
// accounts and wrong passwords give the same error.
func (s *AuthService) Login(ctx context.Context, whatsapp, password string) (string, *models.User, error) {
	u, err := s.repo.GetUserByWhatsapp(ctx, models.NormalizeWhatsapp(whatsapp))
	if errors.Is(err, store.ErrNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.IssueToken(u)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

func (s *AuthService) IssueToken(u *models.User) (string, error) {
	now := s.now()
	claims := &Claims{
		UserID: u.ID,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates an HS256 token signed with secret.
func ParseToken(tokenStr, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// MotoboyForUser finds the courier record of a login account through the
// explicit user link, then by whatsapp for records created before the link.
func (s *AuthService) MotoboyForUser(ctx context.Context, u *models.User) (*models.Motoboy, error) {
	m, err := s.repo.GetMotoboyByUserID(ctx, u.ID)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return s.repo.GetMotoboyByWhatsapp(ctx, models.NormalizeWhatsapp(u.Whatsapp))
}

type RegisterInput struct {
	Name     string
	Whatsapp string
	Role     models.Role
	Password string // generated when empty
}

// Register creates an account and, for couriers, the linked motoboy record.
// It returns the plain password so the caller can hand it over once.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, string, error) {
	phone := models.NormalizeWhatsapp(in.Whatsapp)
	if phone == "" {
		return nil, "", invalid("whatsapp", "required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, "", invalid("name", "required")
	}
	if !in.Role.IsValid() {
		return nil, "", invalid("role", fmt.Sprintf("unknown role %q", in.Role))
	}

	password := in.Password
	if password == "" {
		var err error
		if password, err = GenerateSecurePassword(); err != nil {
			return nil, "", fmt.Errorf("generate password: %w", err)
		}
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, "", err
	}

	u := &models.User{
		Name:         strings.TrimSpace(in.Name),
		Whatsapp:     phone,
		Role:         in.Role,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, "", fmt.Errorf("create user: %w", err)
	}

	if u.Role == models.RoleMotoboy {
		m := &models.Motoboy{
			UserID:    &u.ID,
			Name:      u.Name,
			Whatsapp:  phone,
			Active:    true,
			CreatedAt: u.CreatedAt,
		}
		if err := s.repo.CreateMotoboy(ctx, m); err != nil {
			// A courier login without its motoboy record could never be assigned.
			if derr := s.repo.DeleteUser(context.WithoutCancel(ctx), u.ID); derr != nil {
				err = errors.Join(err, fmt.Errorf("remove user %s: %w", u.ID, derr))
			}
			return nil, "", fmt.Errorf("create motoboy: %w", err)
		}
	}
	return u, password, nil
}
