// Package auth implements the authentication gate: password login with
// JWT tokens, IP-based profile matching, and a config-level IP whitelist
// that grants admin access.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/dmxx/dmxx-go/internal/database/models"
	"github.com/dmxx/dmxx-go/internal/database/repositories"
)

const (
	// Tokens for IP-bound profiles last a day; password-only logins
	// expire after an hour.
	tokenLifetimeIPBound  = 24 * time.Hour
	tokenLifetimePassword = time.Hour
)

// AdminPages is the full page set granted to whitelist admins.
var AdminPages = []string{"faders", "scenes", "fixtures", "patch", "io", "groups", "settings"}

// Claims is the JWT payload issued at login.
type Claims struct {
	ProfileName  string   `json:"profile_name"`
	AllowedPages []string `json:"allowed_pages"`
	IsAdmin      bool     `json:"is_admin"`
	jwt.RegisteredClaims
}

// Identity describes an authenticated caller and its permissions.
type Identity struct {
	Method        string   `json:"method"` // token, ip_profile, ip_whitelist
	IP            string   `json:"ip"`
	ProfileID     int      `json:"profile_id,omitempty"`
	ProfileName   string   `json:"profile_name"`
	AllowedPages  []string `json:"allowed_pages"`
	IsAdmin       bool     `json:"is_admin"`
	CanPark       bool     `json:"can_park"`
	CanHighlight  bool     `json:"can_highlight"`
	CanBypass     bool     `json:"can_bypass"`
	AllowedGrids  []int    `json:"allowed_grids,omitempty"`  // nil = all
	AllowedScenes []int    `json:"allowed_scenes,omitempty"` // nil = all
	gridsLimited  bool
	scenesLimited bool
}

// Service issues and verifies credentials.
type Service struct {
	secret      []byte
	password    string
	ipWhitelist []string
	profileRepo *repositories.ProfileRepository
}

// NewService creates the auth service. The password and whitelist come
// from server config and act as fallbacks when no profiles exist.
func NewService(secret, password string, ipWhitelist []string, profileRepo *repositories.ProfileRepository) *Service {
	return &Service{
		secret:      []byte(secret),
		password:    password,
		ipWhitelist: ipWhitelist,
		profileRepo: profileRepo,
	}
}

// AuthenticatePassword checks a password against all stored profiles and
// the config fallback password. It returns the matching profile, or nil
// with ok=true when the fallback password matched.
func (s *Service) AuthenticatePassword(ctx context.Context, password string) (*models.Profile, bool, error) {
	profiles, err := s.profileRepo.FindAll(ctx)
	if err != nil {
		return nil, false, err
	}
	for i := range profiles {
		p := &profiles[i]
		if p.Password == nil {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(password), []byte(*p.Password)) == 1 {
			return p, true, nil
		}
	}
	if s.password != "" && subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1 {
		return nil, true, nil
	}
	return nil, false, nil
}

// CreateToken issues a signed JWT for a profile. Profiles without IP
// addresses get the shorter lifetime since the password is their only
// factor. A nil profile means the config fallback password; it gets an
// admin token.
func (s *Service) CreateToken(profile *models.Profile) (string, error) {
	now := time.Now()
	claims := Claims{
		ProfileName:  "Admin",
		AllowedPages: AdminPages,
		IsAdmin:      true,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetimePassword)),
		},
	}
	if profile != nil {
		claims.Subject = fmt.Sprintf("%d", profile.ID)
		claims.ProfileName = profile.Name
		claims.AllowedPages = repositories.StringList(profile.AllowedPagesJSON)
		claims.IsAdmin = profile.IsAdmin
		if len(repositories.StringList(profile.IPAddressesJSON)) > 0 {
			claims.ExpiresAt = jwt.NewNumericDate(now.Add(tokenLifetimeIPBound))
		}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// VerifyToken parses and validates a JWT, returning its claims or nil.
func (s *Service) VerifyToken(tokenString string) *Claims {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil
	}
	return claims
}

// Authenticate resolves an identity for a request. Priority order:
// explicit JWT token, then a profile whose IP list matches the client,
// then the config whitelist which grants full admin.
func (s *Service) Authenticate(ctx context.Context, token, clientIP string) (*Identity, error) {
	if token != "" {
		if claims := s.VerifyToken(token); claims != nil {
			return s.identityFromClaims(ctx, claims, clientIP)
		}
	}

	profile, err := s.ProfileByIP(ctx, clientIP)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		id := identityFromProfile(profile, clientIP)
		id.Method = "ip_profile"
		return id, nil
	}

	for _, pattern := range s.ipWhitelist {
		if IPMatches(clientIP, pattern) {
			return &Identity{
				Method:       "ip_whitelist",
				IP:           clientIP,
				ProfileName:  "Admin",
				AllowedPages: AdminPages,
				IsAdmin:      true,
				CanPark:      true,
				CanHighlight: true,
				CanBypass:    true,
			}, nil
		}
	}

	return nil, nil
}

func (s *Service) identityFromClaims(ctx context.Context, claims *Claims, clientIP string) (*Identity, error) {
	// Re-resolve the profile so permission edits take effect before the
	// token expires.
	if claims.Subject != "" {
		var id int
		if _, err := fmt.Sscanf(claims.Subject, "%d", &id); err == nil {
			profiles, err := s.profileRepo.FindAll(ctx)
			if err != nil {
				return nil, err
			}
			for i := range profiles {
				if profiles[i].ID == id {
					identity := identityFromProfile(&profiles[i], clientIP)
					identity.Method = "token"
					return identity, nil
				}
			}
		}
	}
	return &Identity{
		Method:       "token",
		IP:           clientIP,
		ProfileName:  claims.ProfileName,
		AllowedPages: claims.AllowedPages,
		IsAdmin:      claims.IsAdmin,
		CanPark:      claims.IsAdmin,
		CanHighlight: claims.IsAdmin,
		CanBypass:    claims.IsAdmin,
	}, nil
}

func identityFromProfile(profile *models.Profile, clientIP string) *Identity {
	id := &Identity{
		IP:           clientIP,
		ProfileID:    profile.ID,
		ProfileName:  profile.Name,
		AllowedPages: repositories.StringList(profile.AllowedPagesJSON),
		IsAdmin:      profile.IsAdmin,
		CanPark:      profile.CanPark,
		CanHighlight: profile.CanHighlight,
		CanBypass:    profile.CanBypass,
	}
	if profile.AllowedGridsJSON != nil {
		id.gridsLimited = true
		id.AllowedGrids = repositories.IntList(*profile.AllowedGridsJSON)
	}
	if profile.AllowedScenesJSON != nil {
		id.scenesLimited = true
		id.AllowedScenes = repositories.IntList(*profile.AllowedScenesJSON)
	}
	return id
}

// ProfileByIP finds a profile listing the client IP. Exact matches win
// over wildcard or CIDR matches.
func (s *Service) ProfileByIP(ctx context.Context, clientIP string) (*models.Profile, error) {
	profiles, err := s.profileRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range profiles {
		for _, pattern := range repositories.StringList(profiles[i].IPAddressesJSON) {
			if pattern == clientIP {
				return &profiles[i], nil
			}
		}
	}
	for i := range profiles {
		for _, pattern := range repositories.StringList(profiles[i].IPAddressesJSON) {
			if pattern != clientIP && IPMatches(clientIP, pattern) {
				return &profiles[i], nil
			}
		}
	}
	return nil, nil
}

// IPMatches reports whether a client IP matches a whitelist pattern.
// Patterns may be exact addresses, trailing-wildcard prefixes like
// "192.168.1.*", or CIDR blocks like "10.0.0.0/8".
func IPMatches(clientIP, pattern string) bool {
	if pattern == clientIP {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(clientIP, prefix)
	}
	if strings.Contains(pattern, "/") {
		_, network, err := net.ParseCIDR(pattern)
		if err != nil {
			return false
		}
		ip := net.ParseIP(clientIP)
		return ip != nil && network.Contains(ip)
	}
	return false
}

// CanAccessPage reports whether the identity may use a UI page. Admins
// can access everything.
func (id *Identity) CanAccessPage(page string) bool {
	if id.IsAdmin {
		return true
	}
	for _, p := range id.AllowedPages {
		if p == page {
			return true
		}
	}
	return false
}

// CanAccessGrid reports whether the identity may use a grid's groups.
func (id *Identity) CanAccessGrid(gridID int) bool {
	if id.IsAdmin || !id.gridsLimited {
		return true
	}
	for _, g := range id.AllowedGrids {
		if g == gridID {
			return true
		}
	}
	return false
}

// CanAccessScene reports whether the identity may recall a scene.
func (id *Identity) CanAccessScene(sceneID int) bool {
	if id.IsAdmin || !id.scenesLimited {
		return true
	}
	for _, s := range id.AllowedScenes {
		if s == sceneID {
			return true
		}
	}
	return false
}

// ClientIP extracts the caller's address, honoring X-Forwarded-For when
// the server sits behind a proxy.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
