package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/vaultsim/vaultd/libs/apikey"
	"github.com/vaultsim/vaultd/libs/auth"
)

var (
	DemoWorkspaceID  = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	OtherWorkspaceID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
)

func GenerateJWT(secret []byte, workspaceID uuid.UUID, roles []string, ttl time.Duration) (string, error) {
	return auth.NewToken(secret, workspaceID.String(), workspaceID.String(), roles, ttl)
}

func GenerateAPIKey(env string) (string, string, string, error) {
	return apikey.Generate(env)
}
