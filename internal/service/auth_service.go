package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/baiweichihu/26b-website-sub001/internal/config"
	"github.com/baiweichihu/26b-website-sub001/internal/repository"
	"github.com/baiweichihu/26b-website-sub001/internal/sentinel"
	"github.com/baiweichihu/26b-website-sub001/internal/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ============================================
// Auth Service (identity resolution)
// ============================================

type RegisterInput struct {
	Email        string
	Password     string
	Nickname     string
	IdentityType types.IdentityType
}

type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*Principal, string, string, error)
	Login(ctx context.Context, email, password string) (*Principal, string, string, error)
	RefreshToken(ctx context.Context, refreshToken string) (string, string, error)
	// SignOut revokes the session behind accessToken. Every token sharing the
	// session stops resolving immediately.
	SignOut(ctx context.Context, accessToken string) error
	// Resolve maps a token to its principal. Any failure is ErrAuth and callers
	// treat it as anonymous.
	Resolve(ctx context.Context, accessToken string) (*Principal, error)
	Principal(ctx context.Context, id string) (*Principal, error)
}

// WelcomeSender greets new members. Failures never block registration.
type WelcomeSender interface {
	SendWelcome(ctx context.Context, recipientID, nickname string) error
}

type authService struct {
	cfg      *config.Config
	profiles repository.ProfileRepository
	sessions repository.SessionRepository
	welcome  WelcomeSender
	logger   *zap.Logger
	now      func() time.Time
}

func NewAuthService(
	cfg *config.Config,
	profiles repository.ProfileRepository,
	sessions repository.SessionRepository,
	welcome WelcomeSender,
	logger *zap.Logger,
) AuthService {
	return &authService{
		cfg:      cfg,
		profiles: profiles,
		sessions: sessions,
		welcome:  welcome,
		logger:   logger.Named("auth"),
		now:      time.Now,
	}
}

func (s *authService) Register(ctx context.Context, input RegisterInput) (*Principal, string, string, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", "", sentinel.Invalid("email", "a valid email is required")
	}
	if len(input.Password) < 8 {
		return nil, "", "", sentinel.Invalid("password", "password must be at least 8 characters")
	}
	if input.IdentityType == "" {
		input.IdentityType = types.IdentityGuest
	}
	if !types.IsValidIdentityType(string(input.IdentityType)) {
		return nil, "", "", sentinel.Invalid("identity_type", "must be guest, classmate or alumni")
	}

	existing, err := s.profiles.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", "", sentinel.Storage("find profile", err)
	}
	if existing != nil {
		return nil, "", "", ErrUserExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to hash password: %w", err)
	}

	nickname := strings.TrimSpace(input.Nickname)
	if nickname == "" {
		nickname, _, _ = strings.Cut(email, "@")
	}

	// Role is never taken from signup input.
	profile := &repository.Profile{
		Email:        email,
		Password:     string(hashedPassword),
		Nickname:     nickname,
		IdentityType: input.IdentityType,
		Role:         types.RoleNone,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		return nil, "", "", sentinel.Storage("create profile", err)
	}

	if s.welcome != nil {
		if err := s.welcome.SendWelcome(ctx, profile.ID, profile.Nickname); err != nil {
			s.logger.Warn("welcome notification failed", zap.String("user_id", profile.ID), zap.Error(err))
		}
	}

	accessToken, refreshToken, err := s.startSession(ctx, profile.ID)
	if err != nil {
		return nil, "", "", err
	}
	return PrincipalFromProfile(profile), accessToken, refreshToken, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*Principal, string, string, error) {
	profile, err := s.profiles.FindByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil || profile == nil {
		return nil, "", "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.Password), []byte(password)); err != nil {
		return nil, "", "", ErrInvalidCredentials
	}

	accessToken, refreshToken, err := s.startSession(ctx, profile.ID)
	if err != nil {
		return nil, "", "", err
	}
	return PrincipalFromProfile(profile), accessToken, refreshToken, nil
}

func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (string, string, error) {
	rt, err := s.profiles.FindRefreshToken(ctx, refreshToken)
	if err != nil || rt == nil {
		return "", "", ErrAuth
	}

	// Refresh tokens are single use.
	if err := s.profiles.DeleteRefreshToken(ctx, refreshToken); err != nil {
		return "", "", sentinel.Storage("delete refresh token", err)
	}
	if s.now().After(rt.ExpiresAt) {
		return "", "", ErrAuth
	}

	session, err := s.sessions.Find(ctx, rt.SessionID)
	if err != nil {
		return "", "", sentinel.Storage("find session", err)
	}
	if session == nil || session.UserID != rt.UserID {
		return "", "", ErrAuth
	}

	return s.issueTokens(ctx, rt.UserID, session.ID)
}

func (s *authService) SignOut(ctx context.Context, accessToken string) error {
	_, sessionID, err := s.parseToken(accessToken)
	if err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return sentinel.Storage("delete session", err)
	}
	if err := s.profiles.DeleteSessionRefreshTokens(ctx, sessionID); err != nil {
		return sentinel.Storage("delete refresh tokens", err)
	}
	return nil
}

func (s *authService) Resolve(ctx context.Context, accessToken string) (*Principal, error) {
	userID, sessionID, err := s.parseToken(accessToken)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.Find(ctx, sessionID)
	if err != nil {
		s.logger.Warn("session lookup failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, ErrAuth
	}
	if session == nil || session.UserID != userID {
		return nil, ErrAuth
	}

	profile, err := s.profiles.FindByID(ctx, userID)
	if err != nil || profile == nil {
		return nil, ErrAuth
	}
	return PrincipalFromProfile(profile), nil
}

func (s *authService) Principal(ctx context.Context, id string) (*Principal, error) {
	profile, err := s.profiles.FindByID(ctx, id)
	if err != nil {
		return nil, sentinel.Storage("find profile", err)
	}
	if profile == nil {
		return nil, ErrNotFound
	}
	return PrincipalFromProfile(profile), nil
}

// parseToken validates signature and expiry and returns the subject and session id.
func (s *authService) parseToken(tokenString string) (string, string, error) {
	if tokenString == "" {
		return "", "", ErrAuth
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return "", "", ErrAuth
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", ErrAuth
	}
	userID, _ := claims["sub"].(string)
	sessionID, _ := claims["sid"].(string)
	if userID == "" || sessionID == "" {
		return "", "", ErrAuth
	}
	return userID, sessionID, nil
}

func (s *authService) startSession(ctx context.Context, userID string) (string, string, error) {
	session := &repository.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: s.now(),
	}
	if err := s.sessions.Save(ctx, session, s.refreshTTL()); err != nil {
		return "", "", sentinel.Storage("save session", err)
	}
	return s.issueTokens(ctx, userID, session.ID)
}

func (s *authService) refreshTTL() time.Duration {
	return time.Hour * 24 * time.Duration(s.cfg.RefreshExpiry)
}

func (s *authService) issueTokens(ctx context.Context, userID, sessionID string) (string, string, error) {
	now := s.now()
	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"sid": sessionID,
		"exp": now.Add(time.Hour * time.Duration(s.cfg.JWTExpiry)).Unix(),
		"iat": now.Unix(),
	})

	accessTokenString, err := accessToken.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", "", fmt.Errorf("failed to sign token: %w", err)
	}

	rt := &repository.RefreshToken{
		Token:     uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		ExpiresAt: now.Add(s.refreshTTL()),
	}
	if err := s.profiles.SaveRefreshToken(ctx, rt); err != nil {
		return "", "", sentinel.Storage("save refresh token", err)
	}

	return accessTokenString, rt.Token, nil
}

// IsAuthError reports whether err should make the caller anonymous.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuth)
}
