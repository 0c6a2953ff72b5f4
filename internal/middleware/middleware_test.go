package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tc-academic-api/internal/models"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims models.JWTClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func validClaims(userID string, role models.UserRole) models.JWTClaims {
	return models.JWTClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	chain := append(handlers, func(c *gin.Context) {
		claims, _ := c.Get(ContextUserKey)
		c.JSON(http.StatusOK, gin.H{"user": claims.(*models.JWTClaims).UserID})
	})
	r.GET("/students/:id", chain...)
	return r
}

func TestJWTAcceptsValidToken(t *testing.T) {
	r := newRouter(JWT(testSecret))
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("stu-1", models.RoleStudent))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/students/stu-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "stu-1")
}

func TestJWTRejectsBadTokens(t *testing.T) {
	expired := validClaims("stu-1", models.RoleStudent)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic abc",
		"wrong secret":   "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), validClaims("stu-1", models.RoleStudent)),
		"expired":        "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), expired),
		"no subject":     "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("", models.RoleStudent)),
		"wrong method":   "Bearer " + signToken(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims("stu-1", models.RoleStudent)),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			r := newRouter(JWT(testSecret))
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/students/stu-1", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func withClaims(claims *models.JWTClaims) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
		c.Next()
	}
}

func TestStaffOrSelf(t *testing.T) {
	cases := []struct {
		name   string
		claims *models.JWTClaims
		path   string
		status int
	}{
		{"staff", &models.JWTClaims{UserID: "staff-1", Role: models.RoleAcademicStaff}, "/students/stu-1", http.StatusOK},
		{"self", &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent}, "/students/stu-1", http.StatusOK},
		{"other student", &models.JWTClaims{UserID: "stu-2", Role: models.RoleStudent}, "/students/stu-1", http.StatusForbidden},
		{"teacher", &models.JWTClaims{UserID: "t-1", Role: models.RoleTeacher}, "/students/stu-1", http.StatusForbidden},
		{"anonymous", nil, "/students/stu-1", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(withClaims(tc.claims), StaffOrSelf())
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestStaffOnlyRejectsStudents(t *testing.T) {
	r := newRouter(withClaims(&models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent}), StaffOnly())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/students/stu-1", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

type observation struct {
	method string
	path   string
	status int
}

type observerStub struct {
	mu   sync.Mutex
	seen []observation
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, observation{method, path, status})
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &observerStub{}
	r := gin.New()
	r.Use(Metrics(observer))
	r.GET("/sessions/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/sessions/ses-1", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	require.Len(t, observer.seen, 2)
	assert.Equal(t, observation{http.MethodGet, "/sessions/:id", http.StatusNoContent}, observer.seen[0])
	assert.Equal(t, "unmatched", observer.seen[1].path)
	assert.Equal(t, http.StatusNotFound, observer.seen[1].status)
}
