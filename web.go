package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/rs/zerolog/log"

	"inversecrop/internal/codec"
	"inversecrop/internal/config"
	"inversecrop/internal/crop"
)

type Config struct {
	RootDir          string
	Addr             string
	Settings         *config.Config
	OnBeforeShutdown func()
	OnReady          func(addr string)
	OnExport         func(name string)
}

type WebApp struct {
	config       Config
	sessions     *SessionStore
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

func NewWebApp(cfg Config) *WebApp {
	if cfg.Settings == nil {
		cfg.Settings = config.Default()
	}
	return &WebApp{
		config:     cfg,
		sessions:   NewSessionStore(cfg.Settings),
		shutdownCh: make(chan struct{}),
	}
}

func (a *WebApp) Shutdown() {
	a.shutdownOnce.Do(func() {
		close(a.shutdownCh)
	})
}

func (a *WebApp) Run(ctx context.Context) error {
	webapp := a.routes(ctx)

	webapp.Hooks().OnListen(func(listen fiber.ListenData) error {
		if fn := a.config.OnReady; fn != nil {
			fn(fmt.Sprintf("http://%s:%s", listen.Host, listen.Port))
		}
		return nil
	})

	go func() {
		select {
		case <-ctx.Done():
		case <-a.shutdownCh:
		}
		if fn := a.config.OnBeforeShutdown; fn != nil {
			fn()
		}
		if err := webapp.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("Failed to shutdown web application")
		}
	}()

	addr := a.config.Addr
	if addr == "" {
		// Let the OS assign a random available port
		addr = "localhost:0"
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	if err := webapp.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// routes builds the fiber application. Handlers run with ctx as their user
// context so they log through the same logger as the rest of the program.
func (a *WebApp) routes(ctx context.Context) *fiber.App {
	webapp := fiber.New(fiber.Config{
		Immutable:             true,
		DisableStartupMessage: true,
		BodyLimit:             64 << 20,
		ErrorHandler:          errorHandler,
	})

	webapp.Use(func(c *fiber.Ctx) error {
		c.SetUserContext(ctx)
		return c.Next()
	})

	filesRoot := http.Dir(a.config.RootDir)
	webapp.Get("/api/view", func(c *fiber.Ctx) error {
		filePath := c.Query("file")
		return filesystem.SendFile(c, filesRoot, filePath)
	})

	webapp.Get("/api/ls", func(c *fiber.Ctx) error {
		dir, err := walkImages(c.UserContext(), a.config.RootDir)
		if err != nil {
			return fmt.Errorf("failed to walk dir: %w", err)
		}

		for i := range dir.Files {
			dir.Files[i].URL = "/api/view?file=" + url.QueryEscape(dir.Files[i].Name)
		}

		return c.JSON(dir)
	})

	sessions := webapp.Group("/api/sessions")
	sessions.Post("/", a.createSession)
	sessions.Get("/:id", a.getSession)
	sessions.Delete("/:id", a.deleteSession)
	sessions.Get("/:id/preview", a.preview)
	sessions.Get("/:id/default-region", a.defaultRegion)
	sessions.Post("/:id/map", a.mapRegion)
	sessions.Post("/:id/crops", a.addCrop)
	sessions.Post("/:id/undo", a.undo)
	sessions.Post("/:id/reset", a.reset)
	sessions.Get("/:id/render", a.render)

	webapp.Post("/api/shutdown", func(c *fiber.Ctx) error {
		a.Shutdown()
		return nil
	})

	return webapp
}

func errorHandler(c *fiber.Ctx, err error) error {
	log.Ctx(c.UserContext()).Error().
		Err(err).
		Str("path", c.Path()).
		Str("method", c.Method()).
		Msg("Request failed")

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		if fiberErr.Code == http.StatusNotFound && c.Path() == "/favicon.ico" {
			return nil
		}
		return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message, "kind": "request"})
	}
	if errors.Is(err, errSessionNotFound) {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "Session not found.", "kind": "not_found"})
	}

	kind, message := crop.Describe(err)
	status := http.StatusInternalServerError
	switch kind {
	case crop.KindDecode:
		status = http.StatusUnprocessableEntity
	case crop.KindMissingSelection:
		status = http.StatusBadRequest
	case crop.KindCompositing:
		if crop.IsGeometry(err) {
			status = http.StatusUnprocessableEntity
		}
	}
	return c.Status(status).JSON(fiber.Map{"error": message, "kind": kind})
}

func (a *WebApp) session(c *fiber.Ctx) (*Session, error) {
	return a.sessions.Get(c.Params("id"))
}

func (a *WebApp) state(sess *Session) SessionState {
	return sess.State(codec.DownloadName(sess.Source, a.config.Settings.Export.Format))
}

// resolveFile maps a client supplied relative path into the root directory.
func resolveFile(root, name string) string {
	return filepath.Join(root, filepath.FromSlash(path.Clean("/"+name)))
}

func (a *WebApp) createSession(c *fiber.Ctx) error {
	var request struct {
		File   string `json:"file"`
		Source string `json:"source"`
	}
	if err := c.BodyParser(&request); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	var handle string
	switch {
	case request.File != "":
		handle = resolveFile(a.config.RootDir, request.File)
	case strings.HasPrefix(request.Source, "data:"),
		strings.HasPrefix(request.Source, "http://"),
		strings.HasPrefix(request.Source, "https://"):
		handle = request.Source
	case request.Source != "":
		return fiber.NewError(http.StatusBadRequest, "source must be a data URL or an http(s) URL")
	default:
		return fiber.NewError(http.StatusBadRequest, "file or source is required")
	}

	sess, err := a.sessions.Open(c.UserContext(), handle)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(a.state(sess))
}

func (a *WebApp) getSession(c *fiber.Ctx) error {
	sess, err := a.session(c)
	if err != nil {
		return err
	}
	return c.JSON(a.state(sess))
}

func (a *WebApp) deleteSession(c *fiber.Ctx) error {
	if err := a.sessions.Delete(c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func (a *WebApp) preview(c *fiber.Ctx) error {
	sess, err := a.session(c)
	if err != nil {
		return err
	}
	settings := a.config.Settings
	format := codec.NormalizeMime(c.Query("format", settings.Preview.Format))
	if codec.Extension(format) == "bin" {
		return fiber.NewError(http.StatusBadRequest, "unsupported format")
	}
	maxWidth := c.QueryInt("max_width", settings.Preview.MaxWidth)

	img := sess.Sequencer.Preview()
	b := img.Bounds()
	t := crop.FitTransform(b.Dx(), b.Dy(), maxWidth)
	var out image.Image = img
	if t != crop.Identity {
		out = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	c.Set("X-Image-Width", strconv.Itoa(b.Dx()))
	c.Set("X-Image-Height", strconv.Itoa(b.Dy()))
	c.Set("X-Display-Scale", strconv.FormatFloat(t.ScaleX, 'f', -1, 64))

	if c.Query("encoding") == "dataurl" {
		dataURL, err := codec.EncodeDataURL(out, format, settings.ExportOptions())
		if err != nil {
			return fmt.Errorf("failed to encode preview: %w", err)
		}
		return c.JSON(fiber.Map{
			"data_url": dataURL,
			"width":    b.Dx(),
			"height":   b.Dy(),
			"scale":    t.ScaleX,
		})
	}

	var buf bytes.Buffer
	if err := codec.Encode(&buf, out, format, settings.ExportOptions()); err != nil {
		return fmt.Errorf("failed to encode preview: %w", err)
	}
	c.Set(fiber.HeaderContentType, format)
	return c.Send(buf.Bytes())
}

func (a *WebApp) defaultRegion(c *fiber.Ctx) error {
	sess, err := a.session(c)
	if err != nil {
		return err
	}
	o, err := crop.ParseOrientation(c.Query("orientation", string(crop.Horizontal)))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	b := sess.Sequencer.Preview().Bounds()
	return c.JSON(fiber.Map{"orientation": o, "region": crop.DefaultRegion(b.Dx(), b.Dy(), o)})
}

func (a *WebApp) mapRegion(c *fiber.Ctx) error {
	sess, err := a.session(c)
	if err != nil {
		return err
	}
	var request struct {
		Rect      crop.Rect       `json:"rect"`
		Transform *crop.Transform `json:"transform"`
		Display   *struct {
			ClientWidth  float64 `json:"client_width"`
			ClientHeight float64 `json:"client_height"`
			OffsetX      float64 `json:"offset_x"`
			OffsetY      float64 `json:"offset_y"`
		} `json:"display"`
	}
	if err := c.BodyParser(&request); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	b := sess.Sequencer.Preview().Bounds()
	t := crop.Identity
	switch {
	case request.Transform != nil:
		t = *request.Transform
	case request.Display != nil:
		d := request.Display
		t = crop.NewDisplayTransform(b.Dx(), b.Dy(), d.ClientWidth, d.ClientHeight, d.OffsetX, d.OffsetY)
	}

	region := t.ToImage(request.Rect, b.Dx(), b.Dy())
	return c.JSON(fiber.Map{"region": region, "display": t.ToDisplay(region)})
}

func (a *WebApp) addCrop(c *fiber.Ctx) error {
	sess, err := a.session(c)
	if err != nil {
		return err
	}
	var request struct {
		Region      *crop.Region     `json:"region"`
		Orientation crop.Orientation `json:"orientation"`
	}
	if err := c.BodyParser(&request); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if request.Orientation == "" {
		request.Orientation = crop.Horizontal
	}

	if _, err := sess.Sequencer.Add(c.UserContext(), request.Region, request.Orientation); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(a.state(sess))
}

func (a *WebApp) undo(c *fiber.Ctx) error {
	sess, err := a.session(c)
	if err != nil {
		return err
	}
	var request struct {
		Index *int `json:"index"`
	}
	if err := c.BodyParser(&request); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if request.Index == nil {
		return fiber.NewError(http.StatusBadRequest, "index is required")
	}

	if err := sess.Sequencer.UndoTo(c.UserContext(), *request.Index); err != nil {
		return err
	}
	return c.JSON(a.state(sess))
}

func (a *WebApp) reset(c *fiber.Ctx) error {
	sess, err := a.session(c)
	if err != nil {
		return err
	}
	sess.Sequencer.Reset(c.UserContext())
	return c.JSON(a.state(sess))
}

func (a *WebApp) render(c *fiber.Ctx) error {
	sess, err := a.session(c)
	if err != nil {
		return err
	}
	settings := a.config.Settings
	format := codec.NormalizeMime(c.Query("format", settings.Export.Format))
	if codec.Extension(format) == "bin" {
		return fiber.NewError(http.StatusBadRequest, "unsupported format")
	}
	opts := codec.Options{
		Quality:  c.QueryInt("quality", settings.Export.Quality),
		Lossless: c.QueryBool("lossless", settings.Export.Lossless),
	}
	feather := c.QueryInt("feather", settings.Compositing.ExportFeatherRadius)

	out, err := sess.Sequencer.FinalRender(c.UserContext(), feather)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := codec.Encode(&buf, out, format, opts); err != nil {
		return fmt.Errorf("failed to encode render: %w", err)
	}

	name := codec.DownloadName(sess.Source, format)
	c.Attachment(name)
	c.Set(fiber.HeaderContentType, format)
	if fn := a.config.OnExport; fn != nil {
		fn(name)
	}
	return c.Send(buf.Bytes())
}
