// Package denial supplies the response returned for requests the admission
// policy rejects.
package denial

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"redirector/internal/config"
)

// FallbackBody is served when no custom page is available.
const FallbackBody = "<html><head><title>404 Not Found</title></head><body><h1>Oops Page does not Exist</h1></body></html>"

// Status and ContentType are fixed for every denial.
const (
	Status      = http.StatusNotFound
	ContentType = echo.MIMETextHTMLCharsetUTF8
)

// Page resolves the denial body. A file-backed page re-reads its file on each
// denial so operators can swap the page without a restart; any read failure
// falls back to FallbackBody.
type Page struct {
	path   string
	static []byte
	logger *slog.Logger
}

// NewPage creates a file-backed Page from the configured denial page path.
func NewPage(cfg *config.Config, logger *slog.Logger) *Page {
	return &Page{
		path:   cfg.Denial.Page,
		logger: logger.With("component", "denial_page"),
	}
}

// NewStaticPage creates a Page that always serves body.
func NewStaticPage(body string) *Page {
	return &Page{static: []byte(body)}
}

// Body returns the denial body.
func (p *Page) Body() []byte {
	if p.static != nil {
		return p.static
	}
	if p.path != "" {
		data, err := os.ReadFile(p.path)
		if err == nil {
			return data
		}
		p.logger.Debug("denial page unavailable, using fallback", "path", p.path, "err", err)
	}
	return []byte(FallbackBody)
}
