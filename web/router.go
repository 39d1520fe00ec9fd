package web

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/tobyv/warbler/activitypub"
	"github.com/tobyv/warbler/store"
	"github.com/tobyv/warbler/util"
	"golang.org/x/time/rate"
)

const contentTypeActivityJSON = "application/activity+json"
const contentTypeLDJSON = "application/ld+json"

// Document ids are timestamp/slug/uuid based; anything else is rejected
// before touching the filesystem.
var documentIdPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// Server is the HTTP surface: the actor profile, WebFinger, the inbox
// endpoint, and the served document store.
type Server struct {
	conf      *util.AppConfig
	inbox     *activitypub.Inbox
	followers *store.FollowerStore
	actorDoc  *ActorDocument
	dataDir   string
}

func NewServer(conf *util.AppConfig, inbox *activitypub.Inbox, followers *store.FollowerStore, actorDoc *ActorDocument, dataDir string) *Server {
	return &Server{
		conf:      conf,
		inbox:     inbox,
		followers: followers,
		actorDoc:  actorDoc,
		dataDir:   dataDir,
	}
}

// Run builds the gin engine and serves until the listener fails.
func (s *Server) Run() error {
	log.Info("Starting HTTP server", "host", s.conf.Conf.Host, "port", s.conf.Conf.HttpPort)
	return s.engine().Run(fmt.Sprintf("%s:%d", s.conf.Conf.Host, s.conf.Conf.HttpPort))
}

func (s *Server) engine() *gin.Engine {
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	// Stricter limit and a body-size cap for the federation endpoints
	apLimiter := NewRateLimiter(rate.Limit(5), 10)
	maxBodySize := MaxBytesMiddleware(1 * 1024 * 1024)

	g.GET("/.well-known/webfinger", s.handleWebfinger)

	ap := g.Group("/activitypub")
	{
		ap.GET("/actor", s.handleActor)
		ap.POST("/inbox", RateLimitMiddleware(apLimiter), maxBodySize, func(c *gin.Context) {
			s.inbox.HandleInbox(c.Writer, c.Request)
		})
		ap.GET("/outbox", s.serveDocument("outbox.json"))
		ap.GET("/followers", s.handleFollowers)
		ap.GET("/posts/:id", s.serveDocumentById("posts"))
		ap.GET("/activities/:id", s.serveDocumentById("activities"))
	}

	g.GET("/feed", s.handleFeed)

	return g
}

func (s *Server) handleWebfinger(c *gin.Context) {
	resource := c.Query("resource")
	resp, err := GetWebfinger(resource, s.conf)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleActor(c *gin.Context) {
	if !acceptsActivityJSON(c) {
		c.JSON(http.StatusNotAcceptable, gin.H{"error": "Not acceptable"})
		return
	}
	c.Header("Content-Type", contentTypeActivityJSON+"; charset=utf-8")
	c.JSON(http.StatusOK, s.actorDoc)
}

func (s *Server) handleFollowers(c *gin.Context) {
	followers := s.followers.List()
	c.Header("Content-Type", contentTypeActivityJSON+"; charset=utf-8")
	c.JSON(http.StatusOK, gin.H{
		"@context":     "https://www.w3.org/ns/activitystreams",
		"id":           fmt.Sprintf("https://%s/activitypub/followers", s.conf.Conf.Domain),
		"type":         "OrderedCollection",
		"totalItems":   len(followers),
		"orderedItems": followers,
	})
}

// serveDocument serves a single JSON document from the data directory.
func (s *Server) serveDocument(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !acceptsActivityJSON(c) {
			c.JSON(http.StatusNotAcceptable, gin.H{"error": "Not acceptable"})
			return
		}
		s.serveFile(c, filepath.Join(s.dataDir, name))
	}
}

// serveDocumentById serves documents from a subdirectory of the data
// directory, keyed by the :id route parameter.
func (s *Server) serveDocumentById(subdir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !acceptsActivityJSON(c) {
			c.JSON(http.StatusNotAcceptable, gin.H{"error": "Not acceptable"})
			return
		}

		id := c.Param("id")
		if !documentIdPattern.MatchString(id) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
		s.serveFile(c, filepath.Join(s.dataDir, subdir, id+".json"))
	}
}

func (s *Server) serveFile(c *gin.Context, path string) {
	buf, err := os.ReadFile(path)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	c.Data(http.StatusOK, contentTypeActivityJSON+"; charset=utf-8", buf)
}

func (s *Server) handleFeed(c *gin.Context) {
	rss, err := GetRSS(s.conf, s.dataDir)
	if err != nil {
		c.String(http.StatusNotFound, "")
		return
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(rss))
}

func acceptsActivityJSON(c *gin.Context) bool {
	accept := c.GetHeader("Accept")
	return strings.Contains(accept, contentTypeActivityJSON) || strings.Contains(accept, contentTypeLDJSON)
}
