package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"sarnabroker/internal/config"
	"sarnabroker/internal/infra"
	"sarnabroker/internal/middleware"
	"sarnabroker/internal/router"
	"sarnabroker/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "router-test-secret"

// samplePDF sniffs as application/pdf.
var samplePDF = []byte("%PDF-1.4\n1 0 obj <<>> endobj\ntrailer <<>>\n%%EOF\n")

type nopNotifier struct {
	mu   sync.Mutex
	sent int
}

func (n *nopNotifier) Send(context.Context, string, string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent++
	return true
}

type nopStatements struct{}

func (nopStatements) EnqueueStatement(context.Context, uuid.UUID) error { return nil }

type party struct {
	id    uuid.UUID
	token string
}

type apiEnv struct {
	t      *testing.T
	engine *gin.Engine
	miller party
	buyer  party
	admin  party
}

func init() { gin.SetMode(gin.TestMode) }

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, infra.Migrate(db))

	docs, err := infra.NewLocalDocumentStore(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{Env: "test", JWTSecret: testSecret, RateLimitRPM: 10000, PhoneRegion: "IN"}
	svc := router.NewServices(db, &nopNotifier{}, nopStatements{}, cfg.PhoneRegion)
	engine := router.New(router.Deps{Config: cfg, DB: db, Docs: docs}, svc)

	env := &apiEnv{t: t, engine: engine}
	env.miller = env.party(service.RoleMiller)
	env.buyer = env.party(service.RoleBuyer)
	env.admin = env.party(service.RoleAdmin)
	return env
}

func (e *apiEnv) party(role string) party {
	id := uuid.New()
	tok, err := middleware.SignToken(testSecret, middleware.JWTClaims{UserID: id.String(), Role: role}, time.Hour)
	require.NoError(e.t, err)
	return party{id: id, token: tok}
}

func (e *apiEnv) do(req *http.Request, p party) *httptest.ResponseRecorder {
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func (e *apiEnv) json(method, path string, body any, p party) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return e.do(req, p)
}

func (e *apiEnv) multipart(path string, fields map[string]string, fileField string, file []byte, p party) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(e.t, mw.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, "upload.pdf")
		require.NoError(e.t, err)
		_, err = fw.Write(file)
		require.NoError(e.t, err)
	}
	require.NoError(e.t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.do(req, p)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}
