package security

import (
	"errors"
	"time"

	"script_console/internal/domain/model"
	"script_console/internal/platform/config"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
)

var TokenAuth *jwtauth.JWTAuth

func InitJWT() {
	TokenAuth = jwtauth.New("HS256", config.AppConfig.JWTKey, nil)
}

func GenerateToken(user *model.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id":    user.ID,
		"username":   user.Username,
		"name":       user.Name,
		"role":       user.Role,
		"department": user.Department,
		"exp":        time.Now().Add(config.AppConfig.JWTExp).Unix(),
		"iat":        time.Now().Unix(),
	}
	_, tokenString, err := TokenAuth.Encode(claims)
	return tokenString, err
}

// Helper functions to extract claims, can be used in middleware or services
func GetUserIDFromClaims(claims jwt.MapClaims) (string, error) {
	id, ok := claims["user_id"].(string)
	if !ok || id == "" {
		return "", errors.New("user_id claim is missing or not a string")
	}
	return id, nil
}

func GetUserRoleFromClaims(claims jwt.MapClaims) (string, error) {
	role, ok := claims["role"].(string)
	if !ok {
		return "", errors.New("role claim is missing or not a string")
	}
	return role, nil
}

// IdentityFromClaims builds the identity carried by a verified token.
func IdentityFromClaims(claims jwt.MapClaims) (Identity, error) {
	userID, err := GetUserIDFromClaims(claims)
	if err != nil {
		return Identity{}, err
	}
	role, err := GetUserRoleFromClaims(claims)
	if err != nil {
		return Identity{}, err
	}
	username, _ := claims["username"].(string)
	name, _ := claims["name"].(string)
	department, _ := claims["department"].(string)
	return Identity{
		UserID:     userID,
		Username:   username,
		Name:       name,
		Role:       role,
		Department: department,
	}, nil
}
