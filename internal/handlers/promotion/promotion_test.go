package promotion

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"boost-service/internal/pkg/session"
	service "boost-service/internal/service/promotion"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Data    struct {
		ID        string `json:"id"`
		State     string `json:"state"`
		CanSubmit bool   `json:"can_submit"`
	} `json:"data"`
}

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc := service.NewPromotionService(service.Deps{
		Store:  session.NewStore(client, time.Hour),
		Locker: session.NewSubmitLock(client, time.Minute),
	}, time.Second, zap.NewNop())
	h := NewPromotionHandler(svc)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		id, _ := strconv.ParseInt(c.GetHeader("X-Identity"), 10, 64)
		c.Set("identity_id", id)
	})
	r.POST("/promotions", h.StartPromotion)
	r.GET("/promotions/:id", h.GetPromotion)
	r.PUT("/promotions/:id/configure", h.Configure)
	return r
}

func do(t *testing.T, r *gin.Engine, method, path, identity string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Identity", identity)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env
}

func TestStartAndGetPromotion(t *testing.T) {
	r := setupRouter(t)

	code, env := do(t, r, http.MethodPost, "/promotions", "7", map[string]string{"listing_id": "listing-1"})
	require.Equal(t, http.StatusCreated, code)
	assert.True(t, env.Success)
	assert.Equal(t, "configuring", env.Data.State)
	assert.False(t, env.Data.CanSubmit)
	id := env.Data.ID
	require.NotEmpty(t, id)

	code, env = do(t, r, http.MethodGet, "/promotions/"+id, "7", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, env.Data.ID)

	code, env = do(t, r, http.MethodGet, "/promotions/"+id, "8", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
}

func TestStartPromotionRequiresListing(t *testing.T) {
	r := setupRouter(t)

	code, env := do(t, r, http.MethodPost, "/promotions", "7", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)
}

func TestConfigureRejectsInvalidDuration(t *testing.T) {
	r := setupRouter(t)

	_, env := do(t, r, http.MethodPost, "/promotions", "7", map[string]string{"listing_id": "listing-1"})
	id := env.Data.ID

	code, env := do(t, r, http.MethodPut, "/promotions/"+id+"/configure", "7", map[string]interface{}{
		"type":          "featured",
		"duration_days": 0,
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)

	code, env = do(t, r, http.MethodGet, "/promotions/"+id, "7", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "configuring", env.Data.State)
}
