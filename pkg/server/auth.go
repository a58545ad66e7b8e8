package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	legacycrypt "github.com/emberwake-mud/emberwake/pkg/crypt"
	"github.com/emberwake-mud/emberwake/pkg/world"
)

// HashPassword hashes a password with bcrypt for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword verifies a password against a stored hash. New accounts
// store bcrypt; accounts imported from old player files carry 13-char
// DES crypt(3) hashes, which still verify here until the next login
// re-hashes them.
func CheckPassword(stored, password string) bool {
	if stored == "" {
		return false
	}
	if stored[0] == '$' {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return legacycrypt.CheckPassword(password, stored)
}

// NeedsRehash reports whether a stored hash is in the legacy DES format
// and should be upgraded to bcrypt on the next successful login.
func NeedsRehash(stored string) bool {
	return stored != "" && stored[0] != '$'
}

// Claims holds the JWT claims for an authenticated player session.
type Claims struct {
	PlayerRef  world.Ref `json:"player_ref"`
	PlayerName string    `json:"player_name"`
	jwt.RegisteredClaims
}

// AuthService provides JWT-based authentication bound to player
// identity, used by the web listener.
type AuthService struct {
	game   *Game
	jwtKey []byte
	expiry time.Duration
}

// NewAuthService creates an auth service. If jwtSecret is empty, a
// random 32-byte key is generated.
func NewAuthService(game *Game, jwtSecret string, expirySeconds int) *AuthService {
	var key []byte
	if jwtSecret != "" {
		key = []byte(jwtSecret)
	} else {
		// Ephemeral key: web sessions will not survive a restart.
		key = []byte(GenerateJWTSecret())
	}
	expiry := 24 * time.Hour
	if expirySeconds > 0 {
		expiry = time.Duration(expirySeconds) * time.Second
	}
	return &AuthService{
		game:   game,
		jwtKey: key,
		expiry: expiry,
	}
}

// Login authenticates a player and returns a JWT token.
func (a *AuthService) Login(name, password string) (string, error) {
	player, ok := a.game.World.PlayerByName(name)
	if !ok {
		return "", fmt.Errorf("invalid credentials")
	}
	if !CheckPassword(player.PassHash, password) {
		return "", fmt.Errorf("invalid credentials")
	}
	if NeedsRehash(player.PassHash) {
		if hash, err := HashPassword(password); err == nil {
			player.PassHash = hash
			a.game.PersistPlayer(player)
		}
	}

	now := time.Now()
	claims := Claims{
		PlayerRef:  player.Ref,
		PlayerName: player.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   player.Ref.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
			Issuer:    "emberwake",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtKey)
}

// ValidateToken parses and validates a JWT token string.
func (a *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.jwtKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// RefreshToken creates a new token with a fresh expiry for an existing
// valid token.
func (a *AuthService) RefreshToken(tokenStr string) (string, error) {
	claims, err := a.ValidateToken(tokenStr)
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims.ID = uuid.NewString()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(a.expiry))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtKey)
}

// GenerateJWTSecret generates a random hex-encoded secret suitable for
// the jwt_secret config key.
func GenerateJWTSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
