package handler

import (
	"net/http"

	"github.com/gofiber/template/html/v2"

	"github.com/MatsTornblom/Vibzprofile/web"
)

// NewViewEngine loads the embedded page templates.
func NewViewEngine() *html.Engine {
	engine := html.NewFileSystem(http.FS(web.Views()), ".html")
	engine.AddFunc("deref", func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	})
	return engine
}
