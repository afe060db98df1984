package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brigadepos/edgelink/internal/api/http/dto"
	"github.com/brigadepos/edgelink/internal/heartbeat"
	"github.com/brigadepos/edgelink/internal/identity"
	"github.com/brigadepos/edgelink/internal/pairing"
	"github.com/brigadepos/edgelink/internal/settings"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newOnsiteTestHandler(t *testing.T) *OnsiteHandler {
	h, _ := newOnsiteTestHandlerWithSettings(t)
	return h
}

func newOnsiteTestHandlerWithSettings(t *testing.T) (*OnsiteHandler, *settings.Store) {
	t.Helper()
	kv, err := settings.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	store := identity.NewStore(kv)
	svc := pairing.NewService(store, kv)
	publisher := heartbeat.NewPublisher(store, heartbeat.Config{})
	return NewOnsiteHandler(svc, publisher), kv
}

func setupOnsiteRouter(h *OnsiteHandler) *gin.Engine {
	r := gin.New()
	r.GET("/onsite/identity", h.Identity)
	r.POST("/onsite/claim/create", h.CreateClaim)
	r.POST("/onsite/public/claim/consume", h.ConsumeClaim)
	r.POST("/onsite/public/claim/finalize", h.Finalize)
	r.GET("/onsite/cloud/link", h.Link)
	r.POST("/onsite/cloud/heartbeat", h.Heartbeat)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(raw)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdentityEndpoint(t *testing.T) {
	h := newOnsiteTestHandler(t)
	r := setupOnsiteRouter(h)

	w := doJSON(t, r, "GET", "/onsite/identity", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.IdentityResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ServerUID)
	assert.Equal(t, "unclaimed", resp.State)
	assert.False(t, resp.ClaimActive)
	assert.False(t, resp.Linked)

	// Identity creation is idempotent across calls.
	w2 := doJSON(t, r, "GET", "/onsite/identity", nil)
	var resp2 dto.IdentityResponse
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &resp2))
	assert.Equal(t, resp.ServerUID, resp2.ServerUID)
}

func TestIdentityEndpointStoreHints(t *testing.T) {
	h, kv := newOnsiteTestHandlerWithSettings(t)
	r := setupOnsiteRouter(h)

	ctx := context.Background()
	require.NoError(t, kv.Put(ctx, pairing.StoreNameKey, "Brigade Test Kitchen"))
	require.NoError(t, kv.Put(ctx, pairing.StoreTimezoneKey, "America/Montreal"))

	w := doJSON(t, r, "GET", "/onsite/identity", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.IdentityResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Brigade Test Kitchen", resp.StoreNameHint)
	assert.Equal(t, "America/Montreal", resp.TimezoneHint)
	assert.Empty(t, resp.AddressHint)
}

func TestIdentityEndpointReturnsNoSecrets(t *testing.T) {
	h := newOnsiteTestHandler(t)
	r := setupOnsiteRouter(h)

	w := doJSON(t, r, "POST", "/onsite/claim/create", dto.CreateClaimRequest{})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, "GET", "/onsite/identity", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "claimCode")
	assert.NotContains(t, w.Body.String(), "codeHash")

	var resp dto.IdentityResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.ClaimActive)
}

func TestClaimCreateAndConsume(t *testing.T) {
	h := newOnsiteTestHandler(t)
	r := setupOnsiteRouter(h)

	w := doJSON(t, r, "POST", "/onsite/claim/create", dto.CreateClaimRequest{Label: "Back Office", ExpiresInMinutes: 15})
	require.Equal(t, http.StatusCreated, w.Code)

	var created dto.CreateClaimResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ClaimID)
	assert.NotEmpty(t, created.ClaimCode)

	w = doJSON(t, r, "POST", "/onsite/public/claim/consume", dto.ConsumeClaimRequest{
		ClaimID:   created.ClaimID,
		ClaimCode: created.ClaimCode,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var consumed dto.ConsumeClaimResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &consumed))
	assert.NotEmpty(t, consumed.FinalizeToken)
	assert.Equal(t, created.ServerUID, consumed.ServerUID)
}

func TestClaimConsumeWrongCode(t *testing.T) {
	h := newOnsiteTestHandler(t)
	r := setupOnsiteRouter(h)

	w := doJSON(t, r, "POST", "/onsite/claim/create", dto.CreateClaimRequest{})
	require.Equal(t, http.StatusCreated, w.Code)
	var created dto.CreateClaimResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, r, "POST", "/onsite/public/claim/consume", dto.ConsumeClaimRequest{
		ClaimID:   created.ClaimID,
		ClaimCode: "XXXX-XXXX",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestClaimConsumeUnknownID(t *testing.T) {
	h := newOnsiteTestHandler(t)
	r := setupOnsiteRouter(h)

	w := doJSON(t, r, "POST", "/onsite/public/claim/consume", dto.ConsumeClaimRequest{
		ClaimID:   "clm_unknown",
		ClaimCode: "XXXX-XXXX",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClaimConsumeMissingFields(t *testing.T) {
	h := newOnsiteTestHandler(t)
	r := setupOnsiteRouter(h)

	w := doJSON(t, r, "POST", "/onsite/public/claim/consume", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFinalizeFlow(t *testing.T) {
	h := newOnsiteTestHandler(t)
	r := setupOnsiteRouter(h)

	w := doJSON(t, r, "POST", "/onsite/claim/create", dto.CreateClaimRequest{})
	require.Equal(t, http.StatusCreated, w.Code)
	var created dto.CreateClaimResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, r, "POST", "/onsite/public/claim/consume", dto.ConsumeClaimRequest{
		ClaimID:   created.ClaimID,
		ClaimCode: created.ClaimCode,
	})
	require.Equal(t, http.StatusOK, w.Code)
	var consumed dto.ConsumeClaimResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &consumed))

	// Finalize persists the link even though the cloud has never seen
	// this node; the first heartbeat is where bad ids actually fail.
	w = doJSON(t, r, "POST", "/onsite/public/claim/finalize", dto.FinalizeRequest{
		FinalizeToken:  consumed.FinalizeToken,
		CloudStoreID:   "store-9",
		CloudStoreCode: "S009",
		CloudNodeID:    "node-never-provisioned",
		NodeKey:        "nk_x",
		NodeToken:      "ntk_x",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var finalized dto.FinalizeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &finalized))
	assert.True(t, finalized.OK)
	assert.Equal(t, "node-never-provisioned", finalized.CloudLink.CloudNodeID)

	w = doJSON(t, r, "GET", "/onsite/cloud/link", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var link dto.LinkResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &link))
	assert.True(t, link.Linked)
	require.NotNil(t, link.CloudLink)
	assert.Equal(t, "store-9", link.CloudLink.CloudStoreID)
	assert.Equal(t, "nk_x", link.CloudLink.NodeKey)

	// The raw node token stays onsite.
	assert.NotContains(t, w.Body.String(), "ntk_x")
}

func TestFinalizeReuseRejected(t *testing.T) {
	h := newOnsiteTestHandler(t)
	r := setupOnsiteRouter(h)

	w := doJSON(t, r, "POST", "/onsite/claim/create", dto.CreateClaimRequest{})
	require.Equal(t, http.StatusCreated, w.Code)
	var created dto.CreateClaimResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, r, "POST", "/onsite/public/claim/consume", dto.ConsumeClaimRequest{
		ClaimID:   created.ClaimID,
		ClaimCode: created.ClaimCode,
	})
	require.Equal(t, http.StatusOK, w.Code)
	var consumed dto.ConsumeClaimResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &consumed))

	req := dto.FinalizeRequest{
		FinalizeToken:  consumed.FinalizeToken,
		CloudStoreID:   "store-1",
		CloudStoreCode: "S001",
		CloudNodeID:    "node-1",
		NodeKey:        "nk_1",
		NodeToken:      "ntk_1",
	}
	w = doJSON(t, r, "POST", "/onsite/public/claim/finalize", req)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, "POST", "/onsite/public/claim/finalize", req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLinkUnlinked(t *testing.T) {
	h := newOnsiteTestHandler(t)
	r := setupOnsiteRouter(h)

	w := doJSON(t, r, "GET", "/onsite/cloud/link", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var link dto.LinkResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &link))
	assert.False(t, link.Linked)
	assert.Nil(t, link.CloudLink)
}

func TestHeartbeatUnlinked(t *testing.T) {
	h := newOnsiteTestHandler(t)
	r := setupOnsiteRouter(h)

	w := doJSON(t, r, "POST", "/onsite/cloud/heartbeat", dto.HeartbeatRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
