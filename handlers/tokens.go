package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/camden-git/parentsgallery/models"
)

const (
	tokenIssuer  = "parentsgallery"
	galleryScope = "gallery:read"
)

// UserClaims is the payload of the bearer token issued at login.
type UserClaims struct {
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	jwt.RegisteredClaims
}

// GalleryClaims is the payload of a gallery-scoped token. It proves the
// holder knew the gallery password and grants reads of that gallery only.
type GalleryClaims struct {
	GalleryID uint   `json:"gallery_id"`
	Scope     string `json:"scope"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies both token kinds. They use different keys,
// so a gallery token can never pass as a bearer token.
type TokenManager struct {
	userKey    []byte
	galleryKey []byte
	userTTL    time.Duration
	galleryTTL time.Duration
	now        func() time.Time
}

func NewTokenManager(userSecret, gallerySecret string, userTTL, galleryTTL time.Duration) *TokenManager {
	return &TokenManager{
		userKey:    []byte(userSecret),
		galleryKey: []byte(gallerySecret),
		userTTL:    userTTL,
		galleryTTL: galleryTTL,
		now:        time.Now,
	}
}

func (tm *TokenManager) registered(subject string, ttl time.Duration) (jwt.RegisteredClaims, time.Time) {
	now := tm.now()
	expiresAt := now.Add(ttl)
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    tokenIssuer,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}, expiresAt
}

func (tm *TokenManager) IssueUserToken(user *models.User) (string, time.Time, error) {
	rc, expiresAt := tm.registered(strconv.FormatUint(uint64(user.ID), 10), tm.userTTL)
	claims := &UserClaims{Username: user.Username, Role: user.Role, RegisteredClaims: rc}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.userKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (tm *TokenManager) IssueGalleryToken(galleryID uint) (string, time.Time, error) {
	rc, expiresAt := tm.registered(strconv.FormatUint(uint64(galleryID), 10), tm.galleryTTL)
	claims := &GalleryClaims{GalleryID: galleryID, Scope: galleryScope, RegisteredClaims: rc}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.galleryKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign gallery token: %w", err)
	}
	return signed, expiresAt, nil
}

func (tm *TokenManager) parse(tokenString string, claims jwt.Claims, key []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("invalid token")
	}
	return nil
}

// ParseUserToken verifies signature and expiry of a bearer token.
func (tm *TokenManager) ParseUserToken(tokenString string) (*UserClaims, error) {
	claims := &UserClaims{}
	if err := tm.parse(tokenString, claims, tm.userKey); err != nil {
		return nil, err
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("token carries unknown role %q", claims.Role)
	}
	return claims, nil
}

// ParseGalleryToken verifies a gallery token.
func (tm *TokenManager) ParseGalleryToken(tokenString string) (*GalleryClaims, error) {
	claims := &GalleryClaims{}
	if err := tm.parse(tokenString, claims, tm.galleryKey); err != nil {
		return nil, err
	}
	if claims.Scope != galleryScope || claims.GalleryID == 0 {
		return nil, errors.New("token is not a gallery token")
	}
	return claims, nil
}

// UserID is the subject of a user token.
func (c *UserClaims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id in token: %w", err)
	}
	return uint(id), nil
}
