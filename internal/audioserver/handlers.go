package audioserver

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/unicode/norm"

	"tempo/internal/library"
	"tempo/internal/logging"
	"tempo/internal/services"
)

// ConvertRequest is the body of POST /convert-to-mp3.
type ConvertRequest struct {
	TrackDefinition *library.Track `json:"trackDefinition"`
}

func (s *Server) routes() http.Handler {
	router := gin.New()
	router.Use(recovery(s.logger), requestLogger(s.logger), corsMiddleware(s.origins))

	router.GET("/ping", s.handlePing)
	router.POST("/convert-to-mp3", s.handleConvert)
	router.GET("/converted/*filepath", s.handleConverted)
	router.HEAD("/converted/*filepath", s.handleConverted)
	router.GET("/all-converted", s.handleAllConverted)
	router.NoRoute(s.handleStatic)
	return router
}

func (s *Server) handlePing(c *gin.Context) {
	root := s.Root()
	if _, err := validateRoot(root); err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	c.String(http.StatusOK, "pong")
}

func (s *Server) handleConvert(c *gin.Context) {
	var req ConvertRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.String(http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	if req.TrackDefinition == nil {
		c.String(http.StatusBadRequest, "trackDefinition is required")
		return
	}
	out, err := s.conv.Convert(c.Request.Context(), req.TrackDefinition)
	if err != nil {
		s.writeError(c, "convert-to-mp3", err)
		return
	}
	c.String(http.StatusOK, out)
}

func (s *Server) handleConverted(c *gin.Context) {
	folder, err := s.conv.Folder(c.Request.Context())
	if err != nil {
		s.writeError(c, "converted", err)
		return
	}
	requested := c.Param("filepath")
	if hasDotDot(requested) {
		c.String(http.StatusForbidden, "path traversal not allowed")
		return
	}
	target := filepath.FromSlash(path.Clean("/" + requested))
	if _, inside := library.RelativeTo(folder.Path, target); !inside {
		target = filepath.Join(folder.Path, target)
	}
	s.serveFile(c, folder.Path, target)
}

func (s *Server) handleAllConverted(c *gin.Context) {
	c.JSON(http.StatusOK, s.conv.All())
}

func (s *Server) handleStatic(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.String(http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	requested := c.Request.URL.Path
	if hasDotDot(requested) {
		c.String(http.StatusForbidden, "path traversal not allowed")
		return
	}
	root := s.Root()
	if root == "" {
		c.String(http.StatusNotFound, "no audio root configured")
		return
	}
	target := filepath.Join(root, filepath.FromSlash(path.Clean("/"+requested)))
	if _, err := os.Stat(target); errors.Is(err, fs.ErrNotExist) {
		if alt := norm.NFC.String(target); alt != target {
			target = alt
		}
	}
	s.serveFile(c, root, target)
}

func (s *Server) serveFile(c *gin.Context, root, target string) {
	resolved, err := filepath.EvalSymlinks(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.String(http.StatusNotFound, "file not found")
			return
		}
		s.writeError(c, "static", services.Wrap(services.ErrIO, "audioserver", "resolve", target, err))
		return
	}
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		s.writeError(c, "static", services.Wrap(services.ErrIO, "audioserver", "resolve root", root, err))
		return
	}
	if _, inside := library.RelativeTo(resolvedRoot, resolved); !inside {
		c.String(http.StatusForbidden, "path outside served folder")
		return
	}
	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		c.String(http.StatusNotFound, "file not found")
		return
	}
	c.File(resolved)
}

func (s *Server) writeError(c *gin.Context, route string, err error) {
	status := services.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.WarnWithContext(s.logger, "request failed", "http_request_failed",
			logging.String("route", route),
			logging.Error(err))
	}
	c.String(status, err.Error())
}

func hasDotDot(p string) bool {
	for _, segment := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if segment == ".." {
			return true
		}
	}
	return false
}
