package api

import (
	"context"
	"net/http"
	"net/http/httputil"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/bitmark-inc/covid19-uk/background"
	"github.com/bitmark-inc/covid19-uk/logmodule"
)

var log *logrus.Entry

func init() {
	log = logrus.WithField("prefix", "gin")
}

// Pinger - dependency checked by the health endpoint
type Pinger interface {
	Ping() error
}

// Server to run a http server instance
type Server struct {
	// Server instance
	server *http.Server

	// latest prepared tables
	holder *background.Holder

	// optional stores checked by healthz
	pingers []Pinger

	// prometheus exposition of the metrics scope
	metricsHandler http.Handler

	traceMode bool
}

// NewServer new instance of server
func NewServer(holder *background.Holder, metricsHandler http.Handler, pingers ...Pinger) *Server {
	return &Server{
		holder:         holder,
		pingers:        pingers,
		metricsHandler: metricsHandler,
		traceMode:      viper.GetBool("server.trace"),
	}
}

// Run to run the server
func (s *Server) Run(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.setupRouter(),
	}

	return s.server.ListenAndServe()
}

func (s *Server) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         10 * time.Second,
	}))

	apiRoute := r.Group("/api")
	apiRoute.Use(logmodule.Ginrus("API"))
	apiRoute.Use(s.DumpRequest)
	apiRoute.Use(cors.New(cors.Config{
		AllowMethods:    []string{"GET"},
		AllowHeaders:    []string{"Origin"},
		ExposeHeaders:   []string{"Content-Length"},
		AllowAllOrigins: true,
		MaxAge:          12 * time.Hour,
	}))
	{
		apiRoute.GET("/release", s.release)
		apiRoute.GET("/datasets", s.listDatasets)
		apiRoute.GET("/datasets/:name", s.getDataset)
	}

	if s.metricsHandler != nil {
		metricRoute := r.Group("/metrics")
		metricRoute.Use(logmodule.Ginrus("Metric"))
		metricRoute.GET("", gin.WrapH(s.metricsHandler))
	}

	r.GET("/healthz", s.healthz)

	return r
}

// Shutdown to shutdown the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// DumpRequest is a middleware to dump incoming http requests if the
// trace mode is enabled.
func (s *Server) DumpRequest(c *gin.Context) {
	if s.traceMode {
		dump, err := httputil.DumpRequest(c.Request, false)
		if err != nil {
			log.WithFields(logrus.Fields{
				"method": c.Request.Method,
				"path":   c.Request.URL.Path,
			}).Error("fail to dump request")
		}

		log.WithField("req", string(dump)).Debug("incoming request")
	}

	c.Next()
}

// shouldInterupt sends error message and determine if it should interupt the current flow
func shouldInterupt(err error, c *gin.Context) bool {
	if err == nil {
		return false
	}

	log.Error(err)
	abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer)
	return true
}

func (s *Server) healthz(c *gin.Context) {
	for _, p := range s.pingers {
		if shouldInterupt(p.Ping(), c) {
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "OK",
		"version": viper.GetString("server.version"),
	})
}

func responseWithEncoding(c *gin.Context, code int, obj ErrorResponse) {
	acceptEncoding := c.GetHeader("Accept-Encoding")
	switch acceptEncoding {
	default:
		c.JSON(code, obj)
	}
}

func abortWithEncoding(c *gin.Context, code int, obj ErrorResponse, errors ...error) {
	for _, err := range errors {
		c.Error(err)
	}
	responseWithEncoding(c, code, obj)
	c.Abort()
}
