package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/damacus/your-files/internal/logger"
	"github.com/damacus/your-files/internal/middleware"
	"github.com/damacus/your-files/internal/models"
	"github.com/damacus/your-files/internal/services"
	"github.com/damacus/your-files/internal/utils"
)

// FilesHandler serves the Your Files page and its JSON API.
type FilesHandler struct {
	browser *services.Browser
}

func NewFilesHandler(browser *services.Browser) *FilesHandler {
	return &FilesHandler{browser: browser}
}

// Register mounts the page and API routes on e.
func (h *FilesHandler) Register(e *echo.Echo) {
	e.GET("/your-files", h.Page)

	api := e.Group("/api/files")
	api.GET("", h.List)
	api.POST("/upload", h.Upload)
	api.POST("/delete", h.Delete)
	api.POST("/folder", h.CreateFolder)
	api.GET("/download", h.Download)
	api.GET("/usage", h.Usage)
}

// Page renders the browser for the prefix query parameter.
func (h *FilesHandler) Page(c echo.Context) error {
	ctx := c.Request().Context()
	listing, err := h.browser.List(ctx, c.QueryParam("prefix"))
	if err != nil {
		return err
	}

	page := models.BrowserPage{
		Title:   services.RootCrumbName,
		Listing: *listing,
	}
	if token, ok := c.Get(middleware.CSRFContextKey).(string); ok {
		page.CSRFToken = token
	}
	if used, err := h.browser.Usage(ctx); err == nil {
		page.Usage = utils.FormatBytes(used)
	} else {
		logger.Ctx(ctx).Debug().Err(err).Msg("bucket usage unavailable")
	}

	return c.Render(http.StatusOK, "browser", page)
}

// List returns the listing of the prefix query parameter as JSON.
func (h *FilesHandler) List(c echo.Context) error {
	listing, err := h.browser.List(c.Request().Context(), c.QueryParam("prefix"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listing)
}

// Upload stores the multipart "files" parts under the prefix query
// parameter. Each part may have a matching "relativePath" value carrying its
// path inside a dropped directory.
func (h *FilesHandler) Upload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid upload form")
	}
	defer form.RemoveAll()

	files := form.File["files"]
	if len(files) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "No file uploaded")
	}
	sources := services.FormSources(files, form.Value["relativePath"])

	ctx := c.Request().Context()
	run, err := h.browser.Upload(ctx, sources, c.QueryParam("prefix"))
	if err != nil {
		return err
	}
	go abortOnDisconnect(ctx, run.Done(), run.Abort)
	tasks := run.Wait()

	uploaded := 0
	for _, t := range tasks {
		if t.Status == models.UploadUploaded {
			uploaded++
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"tasks":    tasks,
		"uploaded": uploaded,
		"failed":   len(tasks) - uploaded,
	})
}

type deleteRequest struct {
	Files   []string `json:"files"`
	Folders []string `json:"folders"`
}

// Delete removes the selected files and folders and reports every task.
func (h *FilesHandler) Delete(c echo.Context) error {
	var req deleteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid delete request")
	}
	if len(req.Files) == 0 && len(req.Folders) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "Nothing selected")
	}

	ctx := c.Request().Context()
	run := h.browser.Delete(ctx, req.Files, req.Folders)
	go abortOnDisconnect(ctx, run.Done(), run.Abort)
	tasks := run.Wait()

	return c.JSON(http.StatusOK, map[string]interface{}{
		"tasks":   tasks,
		"summary": run.String(),
	})
}

// CreateFolder creates folderName under the prefix query parameter.
func (h *FilesHandler) CreateFolder(c echo.Context) error {
	key, err := h.browser.CreateFolder(c.Request().Context(), c.QueryParam("prefix"), c.FormValue("folderName"))
	if err != nil {
		if key != "" {
			code, message := StatusFor(err)
			return c.JSON(code, map[string]interface{}{
				"error": message,
				"key":   key,
			})
		}
		return err
	}
	return c.JSON(http.StatusCreated, map[string]string{"key": key})
}

// Download redirects to a presigned link for the key query parameter.
func (h *FilesHandler) Download(c echo.Context) error {
	url, err := h.browser.DownloadURL(c.Request().Context(), c.QueryParam("key"))
	if err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, url)
}

// Usage reports the bytes stored in the bucket.
func (h *FilesHandler) Usage(c echo.Context) error {
	used, err := h.browser.Usage(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"bucket":    h.browser.Bucket(),
		"bytes":     used,
		"formatted": utils.FormatBytes(used),
	})
}

// abortOnDisconnect aborts a run when the client goes away before it ends.
func abortOnDisconnect(ctx context.Context, done <-chan struct{}, abort func()) {
	select {
	case <-ctx.Done():
		abort()
	case <-done:
	}
}
