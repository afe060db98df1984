package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brigadepos/edgelink/internal/api/http/dto"
)

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func issueBootstrapToken(t *testing.T, router *gin.Engine, adminKey, storeID string) dto.CreateBootstrapTokenResponse {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(dto.CreateBootstrapTokenRequest{Label: "provisioning"}))
	req, _ := http.NewRequest("POST", "/cloud/stores/"+storeID+"/nodes/bootstrap", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", adminKey)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var resp dto.CreateBootstrapTokenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestNodeLifecycle(t *testing.T, router *gin.Engine, adminKey string) {
	t.Run("bootstrap and register", func(t *testing.T) {
		issued := issueBootstrapToken(t, router, adminKey, "store-lifecycle")
		assert.Contains(t, issued.BootstrapToken, "btk_")
		assert.Equal(t, "store-lifecycle", issued.StoreID)

		rr := doJSON(router, "POST", "/cloud/nodes/register", dto.RegisterNodeRequest{
			BootstrapToken:  issued.BootstrapToken,
			Label:           "kitchen server",
			SoftwareVersion: "3.2.0",
		})
		require.Equal(t, http.StatusCreated, rr.Code)

		var creds dto.RegisterNodeResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &creds))
		assert.Equal(t, "store-lifecycle", creds.StoreID)
		assert.NotEmpty(t, creds.NodeID)
		assert.Contains(t, creds.NodeKey, "nk_")
		assert.Contains(t, creds.NodeToken, "ntk_")

		t.Run("heartbeat with fresh credentials", func(t *testing.T) {
			req, _ := http.NewRequest("POST", "/cloud/nodes/"+creds.NodeID+"/heartbeat", nil)
			req.Header.Set("x-node-id", creds.NodeID)
			req.Header.Set("x-node-token", creds.NodeToken)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			require.Equal(t, http.StatusOK, rr.Code)

			var node dto.NodeResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &node))
			assert.Equal(t, "online", node.Status)
			assert.NotNil(t, node.LastSeenAt)
		})

		t.Run("bootstrap token is single use", func(t *testing.T) {
			rr := doJSON(router, "POST", "/cloud/nodes/register", dto.RegisterNodeRequest{
				BootstrapToken: issued.BootstrapToken,
			})
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
		})
	})

	t.Run("register with unknown token", func(t *testing.T) {
		rr := doJSON(router, "POST", "/cloud/nodes/register", dto.RegisterNodeRequest{
			BootstrapToken: "btk_never_issued",
		})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("heartbeat with bad token", func(t *testing.T) {
		issued := issueBootstrapToken(t, router, adminKey, "store-badtoken")
		rr := doJSON(router, "POST", "/cloud/nodes/register", dto.RegisterNodeRequest{
			BootstrapToken: issued.BootstrapToken,
		})
		require.Equal(t, http.StatusCreated, rr.Code)
		var creds dto.RegisterNodeResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &creds))

		req, _ := http.NewRequest("POST", "/cloud/nodes/"+creds.NodeID+"/heartbeat", nil)
		req.Header.Set("x-node-id", creds.NodeID)
		req.Header.Set("x-node-token", "ntk_tampered")
		rr2 := httptest.NewRecorder()
		router.ServeHTTP(rr2, req)
		assert.Equal(t, http.StatusUnauthorized, rr2.Code)
	})

	t.Run("heartbeat for unknown node", func(t *testing.T) {
		unknown := uuid.NewString()
		req, _ := http.NewRequest("POST", "/cloud/nodes/"+unknown+"/heartbeat", nil)
		req.Header.Set("x-node-id", unknown)
		req.Header.Set("x-node-token", "ntk_whatever")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestBootstrapAdminGuard(t *testing.T, router *gin.Engine, adminKey string) {
	t.Run("missing api key", func(t *testing.T) {
		rr := doJSON(router, "POST", "/cloud/stores/store-1/nodes/bootstrap", dto.CreateBootstrapTokenRequest{})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("wrong api key", func(t *testing.T) {
		var buf bytes.Buffer
		_ = json.NewEncoder(&buf).Encode(dto.CreateBootstrapTokenRequest{})
		req, _ := http.NewRequest("POST", "/cloud/stores/store-1/nodes/bootstrap", &buf)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", adminKey+"-wrong")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
