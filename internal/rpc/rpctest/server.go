// Package rpctest runs an in-memory LogicMonitor RPC endpoint for tests.
package rpctest

import (
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/logicmonitor/collector-agent/internal/credentials"
	"github.com/logicmonitor/collector-agent/internal/domain"
)

// RPCPath is the prefix the fake endpoint serves actions under.
const RPCPath = "/santaba/rpc"

type rejection struct {
	status int
	msg    string
}

// Server is a fake inventory service holding collectors in memory.
type Server struct {
	creds  credentials.Credentials
	http   *httptest.Server
	logger *slog.Logger

	mu         sync.Mutex
	agents     []domain.AgentRecord
	nextID     int
	installer  []byte
	calls      map[string]int
	params     map[string][]url.Values
	rejections map[string]rejection
	httpErrors map[string]int
	// duplicates makes addAgent reject an existing description with 409.
	duplicates bool
}

// NewServer starts a fake endpoint accepting creds.
func NewServer(creds credentials.Credentials) *Server {
	s := &Server{
		creds:      creds,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		nextID:     1,
		installer:  []byte("#!/bin/sh\nexit 0\n"),
		calls:      make(map[string]int),
		params:     make(map[string][]url.Values),
		rejections: make(map[string]rejection),
		httpErrors: make(map[string]int),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.logger))
	router.Use(s.record)
	router.Use(authMiddleware(creds))
	router.GET(RPCPath+"/:action", s.dispatch)

	s.http = httptest.NewServer(router)
	return s
}

// URL is the base URL to configure as the client endpoint.
func (s *Server) URL() string {
	return s.http.URL
}

// Close shuts the endpoint down. Calls made afterwards fail at the transport.
func (s *Server) Close() {
	s.http.Close()
}

// Seed adds collectors to the inventory.
func (s *Server) Seed(records ...domain.AgentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.agents = append(s.agents, r)
		if r.ID >= s.nextID {
			s.nextID = r.ID + 1
		}
	}
}

// Agents returns a copy of the inventory.
func (s *Server) Agents() []domain.AgentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AgentRecord(nil), s.agents...)
}

// SetInstaller replaces the payload served by logicmonitorsetup.
func (s *Server) SetInstaller(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installer = payload
}

// Reject makes action answer with an envelope carrying status and msg.
func (s *Server) Reject(action string, status int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejections[action] = rejection{status: status, msg: msg}
}

// FailHTTP makes action answer with the given HTTP status code.
func (s *Server) FailHTTP(action string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.httpErrors[action] = code
}

// EnforceUniqueDescriptions makes addAgent refuse a description that is
// already registered.
func (s *Server) EnforceUniqueDescriptions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duplicates = true
}

// Calls reports how many requests reached action.
func (s *Server) Calls(action string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[action]
}

// TotalCalls reports the number of requests across all actions.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// Params returns the query of every request made to action.
func (s *Server) Params(action string) []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.params[action]...)
}

type envelope struct {
	Status int    `json:"status"`
	Data   any    `json:"data"`
	ErrMsg string `json:"errmsg"`
}

func (s *Server) record(c *gin.Context) {
	action := c.Param("action")
	if action == "" {
		action = lastSegment(c.Request.URL.Path)
	}
	s.mu.Lock()
	s.calls[action]++
	s.params[action] = append(s.params[action], c.Request.URL.Query())
	s.mu.Unlock()
	c.Next()
}

func (s *Server) dispatch(c *gin.Context) {
	action := c.Param("action")

	s.mu.Lock()
	code, failHTTP := s.httpErrors[action]
	rej, reject := s.rejections[action]
	s.mu.Unlock()

	if failHTTP {
		c.String(code, "internal error")
		return
	}
	if reject {
		c.JSON(http.StatusOK, envelope{Status: rej.status, ErrMsg: rej.msg})
		return
	}

	switch action {
	case "getAgents":
		c.JSON(http.StatusOK, envelope{Status: http.StatusOK, Data: s.Agents(), ErrMsg: "OK"})
	case "addAgent":
		s.addAgent(c)
	case "deleteAgent":
		s.deleteAgent(c)
	case "logicmonitorsetup":
		s.download(c)
	default:
		params := map[string]string{}
		for k := range c.Request.URL.Query() {
			switch k {
			case "c", "u", "p":
				continue
			}
			params[k] = c.Query(k)
		}
		c.JSON(http.StatusOK, envelope{Status: http.StatusOK, Data: params, ErrMsg: "OK"})
	}
}

func (s *Server) addAgent(c *gin.Context) {
	description := c.Query("description")
	if description == "" {
		c.JSON(http.StatusOK, envelope{Status: http.StatusBadRequest, ErrMsg: "description is required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.duplicates {
		for _, a := range s.agents {
			if a.Description == description {
				c.JSON(http.StatusOK, envelope{Status: http.StatusConflict, ErrMsg: "collector already exists"})
				return
			}
		}
	}

	record := domain.AgentRecord{ID: s.nextID, Description: description}
	s.nextID++
	s.agents = append(s.agents, record)
	c.JSON(http.StatusOK, envelope{Status: http.StatusOK, Data: record, ErrMsg: "OK"})
}

func (s *Server) deleteAgent(c *gin.Context) {
	id, err := strconv.Atoi(c.Query("id"))
	if err != nil {
		c.JSON(http.StatusOK, envelope{Status: http.StatusBadRequest, ErrMsg: "invalid id"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, a := range s.agents {
		if a.ID == id {
			s.agents = append(s.agents[:i], s.agents[i+1:]...)
			c.JSON(http.StatusOK, envelope{Status: http.StatusOK, Data: true, ErrMsg: "OK"})
			return
		}
	}
	c.JSON(http.StatusOK, envelope{Status: http.StatusNotFound, ErrMsg: fmt.Sprintf("collector %d does not exist", id)})
}

func (s *Server) download(c *gin.Context) {
	id, err := strconv.Atoi(c.Query("id"))
	if err != nil {
		c.JSON(http.StatusOK, envelope{Status: http.StatusBadRequest, ErrMsg: "invalid id"})
		return
	}
	switch c.Query("arch") {
	case "32", "64":
	default:
		c.JSON(http.StatusOK, envelope{Status: http.StatusBadRequest, ErrMsg: "invalid arch"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.agents {
		if a.ID == id {
			c.Data(http.StatusOK, "application/octet-stream", s.installer)
			return
		}
	}
	c.JSON(http.StatusOK, envelope{Status: http.StatusNotFound, ErrMsg: fmt.Sprintf("collector %d does not exist", id)})
}

func authMiddleware(creds credentials.Credentials) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !matches(c.Query("c"), creds.Company) ||
			!matches(c.Query("u"), creds.User) ||
			!matches(c.Query("p"), creds.Secret) {
			c.AbortWithStatusJSON(http.StatusOK, envelope{Status: http.StatusForbidden, ErrMsg: "Authentication failed"})
			return
		}
		c.Next()
	}
}

func matches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("rpc request",
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

func lastSegment(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
