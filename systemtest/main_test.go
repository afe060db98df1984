package systemtest

import (
	"context"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	internalhttp "github.com/brigadepos/edgelink/internal/api/http"
	"github.com/brigadepos/edgelink/internal/db"
	"github.com/brigadepos/edgelink/internal/nodes"
	"github.com/brigadepos/edgelink/systemtest/postgres"
	"github.com/brigadepos/edgelink/systemtest/tests"
)

const adminAPIKey = "systemtest-admin-key"

func TestSystemIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping system test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, dbURL, err := postgres.Start(ctx, postgres.Options{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = postgres.Terminate(context.Background(), container)
	})

	require.NoError(t, db.RunMigrations(dbURL))

	pool, err := db.InitDB(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	nodeService := nodes.NewService(nodes.NewPostgresStore(pool))

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	internalhttp.SetupCloudRoutes(engine, &internalhttp.CloudServices{
		Nodes:       nodeService,
		AdminAPIKey: adminAPIKey,
	})

	t.Run("NodeLifecycle", func(t *testing.T) { tests.TestNodeLifecycle(t, engine, adminAPIKey) })
	t.Run("BootstrapAdminGuard", func(t *testing.T) { tests.TestBootstrapAdminGuard(t, engine, adminAPIKey) })
}
