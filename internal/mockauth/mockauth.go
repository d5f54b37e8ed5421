// Package mockauth is a deterministic token endpoint for tests: a
// gin-backed POST /auth/v1/token handler that returns one scripted
// response per grant type, in registration order, falling back to a 500
// once its queue for that grant type runs dry.
package mockauth

import (
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/supabase-community/supabase-realtime-go/internal/authtransport"
)

type scriptedResponse struct {
	status int
	body   any
	raw    []byte // when set, written verbatim instead of marshaling body
}

// Server is an httptest-backed mock of POST /auth/v1/token, scripted one
// response at a time per grant_type.
type Server struct {
	mu        sync.Mutex
	responses map[string][]scriptedResponse // keyed by grant_type
	engine    *gin.Engine
	httpSrv   *httptest.Server
}

// NewServer starts listening immediately.
func NewServer() *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		responses: make(map[string][]scriptedResponse),
	}
	s.engine = gin.New()
	s.engine.POST("/auth/v1/token", s.handleToken)
	s.httpSrv = httptest.NewServer(s.engine)
	return s
}

// URL is the mock server's base URL, suitable for authtransport.Config.BaseURL.
func (s *Server) URL() string { return s.httpSrv.URL }

// Close shuts down the underlying listener.
func (s *Server) Close() { s.httpSrv.Close() }

// RegisterPassword queues a 200 response returned the next time
// grant_type=password is requested.
func (s *Server) RegisterPassword(resp authtransport.TokenResponse) {
	s.enqueue("password", scriptedResponse{status: http.StatusOK, body: resp})
}

// RegisterRefresh queues a 200 response for the next grant_type=refresh_token request.
func (s *Server) RegisterRefresh(resp authtransport.TokenResponse) {
	s.enqueue("refresh_token", scriptedResponse{status: http.StatusOK, body: resp})
}

// RegisterStatus queues a non-200 response for the given grant type.
func (s *Server) RegisterStatus(grantType string, status int, body authtransport.ErrorResponse) {
	s.enqueue(grantType, scriptedResponse{status: status, body: body})
}

// RegisterRaw queues a response whose body is written verbatim, useful
// for exercising a client's handling of malformed JSON.
func (s *Server) RegisterRaw(grantType string, status int, raw []byte) {
	s.enqueue(grantType, scriptedResponse{status: status, raw: raw})
}

func (s *Server) enqueue(grantType string, resp scriptedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[grantType] = append(s.responses[grantType], resp)
}

func (s *Server) handleToken(c *gin.Context) {
	grantType := c.Query("grant_type")

	s.mu.Lock()
	queue := s.responses[grantType]
	var next scriptedResponse
	if len(queue) > 0 {
		next, queue = queue[0], queue[1:]
		s.responses[grantType] = queue
	} else {
		next = scriptedResponse{status: http.StatusInternalServerError, body: authtransport.ErrorResponse{
			ErrorCode: "server_error", ErrorDescription: "no scripted response registered",
		}}
	}
	s.mu.Unlock()

	if next.raw != nil {
		c.Data(next.status, "application/json", next.raw)
		return
	}
	c.JSON(next.status, next.body)
}
