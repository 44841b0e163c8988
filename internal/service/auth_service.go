package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ewallet/internal/config"
	"ewallet/internal/model"
	"ewallet/internal/repository"
	"ewallet/internal/security"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

// AuthService 用户注册、登录和令牌签发
// 账务引擎不感知这里的任何逻辑，只消费中间件解析出的 userID
type AuthService struct {
	db       *gorm.DB
	cfg      *config.JWTConfig
	userRepo *repository.UserRepository
}

func NewAuthService(db *gorm.DB, cfg *config.JWTConfig) *AuthService {
	return &AuthService{
		db:       db,
		cfg:      cfg,
		userRepo: repository.NewUserRepository(db),
	}
}

// 令牌种类，防止拿访问令牌去换新令牌
const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims 令牌载荷
type Claims struct {
	UserID    int64  `json:"uid"`
	Username  string `json:"username"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

type RegisterRequest struct {
	FirstName  string
	MiddleName string
	LastName   string
	BirthDate  *time.Time
	NationalID string
	Phone      string
	Username   string
	Email      string
	Password   string
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Register 注册用户
// 用户名/邮箱/证件号/手机号任一已被占用则拒绝
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*model.User, *TokenPair, error) {
	exists, err := s.userRepo.ExistsByIdentity(ctx, req.Username, req.Email, req.NationalID, req.Phone)
	if err != nil {
		return nil, nil, fmt.Errorf("查询用户失败: %w", err)
	}
	if exists {
		return nil, nil, ErrUserAlreadyExists
	}

	passwordHash, err := security.HashSecret(req.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("生成密码哈希失败: %w", err)
	}

	user := &model.User{
		FirstName:  req.FirstName,
		MiddleName: req.MiddleName,
		LastName:   req.LastName,
		BirthDate:  req.BirthDate,
		NationalID: req.NationalID,
		Phone:      req.Phone,
		Username:   req.Username,
		Email:      req.Email,
		Password:   passwordHash,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, nil, fmt.Errorf("创建用户失败: %w", err)
	}

	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, nil, err
	}
	return user, tokens, nil
}

// Login 用户名密码登录
func (s *AuthService) Login(ctx context.Context, username, password string) (*model.User, *TokenPair, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if !security.VerifySecret(password, user.Password) {
		return nil, nil, ErrInvalidCredentials
	}

	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, nil, err
	}
	return user, tokens, nil
}

// RefreshAccessToken 用刷新令牌换新的访问令牌
func (s *AuthService) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.ParseToken(refreshToken)
	if err != nil {
		return "", ErrInvalidToken
	}
	if claims.TokenType != tokenTypeRefresh {
		return "", ErrInvalidToken
	}
	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrInvalidToken
		}
		return "", err
	}
	return s.signToken(user, tokenTypeAccess, time.Duration(s.cfg.AccessTTLMinutes)*time.Minute)
}

// ParseToken 解析并校验令牌
func (s *AuthService) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("非预期的签名算法: %v", t.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *AuthService) issueTokens(user *model.User) (*TokenPair, error) {
	access, err := s.signToken(user, tokenTypeAccess, time.Duration(s.cfg.AccessTTLMinutes)*time.Minute)
	if err != nil {
		return nil, err
	}
	refresh, err := s.signToken(user, tokenTypeRefresh, time.Duration(s.cfg.RefreshTTLMinutes)*time.Minute)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AuthService) signToken(user *model.User, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:    user.ID,
		Username:  user.Username,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("签发令牌失败: %w", err)
	}
	return signed, nil
}
