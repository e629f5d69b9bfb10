package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmxx/dmxx-go/internal/auth"
	"github.com/dmxx/dmxx-go/internal/database/models"
	"github.com/dmxx/dmxx-go/internal/services/testutil"
)

func TestIPMatches(t *testing.T) {
	assert.True(t, auth.IPMatches("192.168.1.50", "192.168.1.50"))
	assert.True(t, auth.IPMatches("192.168.1.50", "192.168.1.*"))
	assert.False(t, auth.IPMatches("192.168.2.50", "192.168.1.*"))
	assert.True(t, auth.IPMatches("10.1.2.3", "10.0.0.0/8"))
	assert.False(t, auth.IPMatches("11.1.2.3", "10.0.0.0/8"))
	assert.False(t, auth.IPMatches("192.168.1.50", "not-a-pattern"))
}

func TestPasswordLoginAndToken(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	password := "operator-secret"
	require.NoError(t, tdb.ProfileRepo.Create(ctx, &models.Profile{
		Name:             "operator",
		Password:         &password,
		AllowedPagesJSON: `["faders","scenes"]`,
		CanPark:          false,
		CanHighlight:     true,
		CanBypass:        false,
	}))

	svc := auth.NewService("test-secret", "fallback-pass", nil, tdb.ProfileRepo)

	profile, ok, err := svc.AuthenticatePassword(ctx, "operator-secret")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, profile)
	assert.Equal(t, "operator", profile.Name)

	_, ok, err = svc.AuthenticatePassword(ctx, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	// Config fallback password yields an admin identity with no profile.
	profile, ok, err = svc.AuthenticatePassword(ctx, "fallback-pass")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, profile)

	token, err := svc.CreateToken(mustProfile(t, svc, ctx, "operator-secret"))
	require.NoError(t, err)

	identity, err := svc.Authenticate(ctx, token, "203.0.113.9")
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, "token", identity.Method)
	assert.Equal(t, "operator", identity.ProfileName)
	assert.False(t, identity.CanPark)
	assert.True(t, identity.CanHighlight)
	assert.True(t, identity.CanAccessPage("faders"))
	assert.False(t, identity.CanAccessPage("settings"))
}

func mustProfile(t *testing.T, svc *auth.Service, ctx context.Context, password string) *models.Profile {
	t.Helper()
	profile, ok, err := svc.AuthenticatePassword(ctx, password)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, profile)
	return profile
}

func TestTokenRejectedWithWrongSecret(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	issuer := auth.NewService("secret-a", "", nil, tdb.ProfileRepo)
	verifier := auth.NewService("secret-b", "", nil, tdb.ProfileRepo)

	token, err := issuer.CreateToken(nil)
	require.NoError(t, err)

	assert.NotNil(t, issuer.VerifyToken(token))
	assert.Nil(t, verifier.VerifyToken(token))
}

func TestIPProfileMatch(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	grids := `[2]`
	require.NoError(t, tdb.ProfileRepo.Create(ctx, &models.Profile{
		Name:             "booth",
		IPAddressesJSON:  `["192.168.1.*"]`,
		AllowedPagesJSON: `["faders"]`,
		AllowedGridsJSON: &grids,
		CanPark:          true,
	}))
	require.NoError(t, tdb.ProfileRepo.Create(ctx, &models.Profile{
		Name:            "desk",
		IPAddressesJSON: `["192.168.1.10"]`,
		IsAdmin:         true,
	}))

	svc := auth.NewService("test-secret", "", nil, tdb.ProfileRepo)

	// Exact match beats the wildcard profile.
	identity, err := svc.Authenticate(ctx, "", "192.168.1.10")
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, "desk", identity.ProfileName)
	assert.Equal(t, "ip_profile", identity.Method)

	identity, err = svc.Authenticate(ctx, "", "192.168.1.77")
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, "booth", identity.ProfileName)
	assert.True(t, identity.CanAccessGrid(2))
	assert.False(t, identity.CanAccessGrid(3))
	assert.True(t, identity.CanAccessScene(99)) // scenes unrestricted

	identity, err = svc.Authenticate(ctx, "", "10.0.0.5")
	require.NoError(t, err)
	assert.Nil(t, identity)
}

func TestConfigWhitelistGrantsAdmin(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	svc := auth.NewService("test-secret", "", []string{"127.0.0.1", "10.0.0.0/8"}, tdb.ProfileRepo)

	identity, err := svc.Authenticate(ctx, "", "10.4.5.6")
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, "ip_whitelist", identity.Method)
	assert.True(t, identity.IsAdmin)
	assert.True(t, identity.CanAccessPage("settings"))

	identity, err = svc.Authenticate(ctx, "", "172.16.0.1")
	require.NoError(t, err)
	assert.Nil(t, identity)
}
