package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/blues/eos/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// bcrypt限制密码最长72字节，超出部分截断
const maxPasswordBytes = 72

// HashPassword 生成密码哈希
func HashPassword(password string) (string, error) {
	raw := []byte(password)
	if len(raw) > maxPasswordBytes {
		raw = raw[:maxPasswordBytes]
	}
	bytes, err := bcrypt.GenerateFromPassword(raw, bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// VerifyPassword 校验密码
func VerifyPassword(password, hash string) bool {
	raw := []byte(password)
	if len(raw) > maxPasswordBytes {
		raw = raw[:maxPasswordBytes]
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), raw) == nil
}

// CreateAccessToken 签发访问令牌，subject为钱包地址
func CreateAccessToken(walletAddress string, cfg config.AuthConfig) (string, error) {
	claims := jwt.MapClaims{
		"sub": walletAddress,
		"exp": time.Now().Add(time.Duration(cfg.TokenExpiry) * time.Minute).Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JwtSecret))
}

// VerifyToken 校验令牌并返回钱包地址
func VerifyToken(tokenStr string, cfg config.AuthConfig) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return []byte(cfg.JwtSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", jwt.ErrTokenMalformed
	}
	wallet, ok := claims["sub"].(string)
	if !ok || wallet == "" {
		return "", errors.New("token missing subject")
	}
	return wallet, nil
}

// ExtractBearer 从Authorization头中提取token
func ExtractBearer(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
