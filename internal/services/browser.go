package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"log"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const renderTimeout = 30 * time.Second

// SlideSpec describes one slide for the browser to lay out: the meme image
// plus the lyric line shown as a caption.
type SlideSpec struct {
	ImageData []byte
	MimeType  string
	Caption   string
}

// BrowserRenderer rasterizes slides through a headless browser. One browser
// process is shared across jobs; each slide renders in its own page, so
// concurrent jobs do not interfere.
type BrowserRenderer struct {
	mu       sync.Mutex
	headless bool
	browser  *rod.Browser
}

func NewBrowserRenderer(headless bool) *BrowserRenderer {
	return &BrowserRenderer{headless: headless}
}

// ensureStarted lazily launches the browser, reconnecting if a previous
// process died underneath us.
func (b *BrowserRenderer) ensureStarted() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		if _, err := b.browser.Version(); err == nil {
			return b.browser, nil
		}
		log.Printf("[Browser] Stale browser connection detected, relaunching...")
		_ = b.browser.Close()
		b.browser = nil
	}

	controlURL, err := launcher.New().Headless(b.headless).Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	b.browser = browser
	log.Printf("[Browser] Connected (headless=%v)", b.headless)
	return browser, nil
}

// Close shuts the shared browser process down.
func (b *BrowserRenderer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}

// RenderSlide lays the slide out at the output resolution and screenshots it
// to outputPath as PNG.
func (b *BrowserRenderer) RenderSlide(ctx context.Context, spec SlideSpec, outputPath string) error {
	return b.capture(ctx, buildSlideHTML(spec), outputPath)
}

// RenderTitleCard produces the opening slide shown before the first lyric.
func (b *BrowserRenderer) RenderTitleCard(ctx context.Context, title string, outputPath string) error {
	return b.capture(ctx, buildTitleHTML(title), outputPath)
}

func (b *BrowserRenderer) capture(ctx context.Context, pageHTML, outputPath string) error {
	browser, err := b.ensureStarted()
	if err != nil {
		return err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             outputWidth,
		Height:            outputHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		return fmt.Errorf("failed to set viewport: %w", err)
	}

	page = page.Context(ctx).Timeout(renderTimeout)

	if err := page.SetDocumentContent(pageHTML); err != nil {
		return fmt.Errorf("failed to set page content: %w", err)
	}
	if err := page.WaitStable(500 * time.Millisecond); err != nil {
		return fmt.Errorf("page never stabilized: %w", err)
	}

	data, err := page.Screenshot(false, nil)
	if err != nil {
		return fmt.Errorf("screenshot failed: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

func buildSlideHTML(spec SlideSpec) string {
	dataURI := fmt.Sprintf("data:%s;base64,%s", spec.MimeType, base64.StdEncoding.EncodeToString(spec.ImageData))

	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><style>
html,body{margin:0;padding:0;width:%dpx;height:%dpx;background:#000;overflow:hidden}
.stage{position:relative;width:%dpx;height:%dpx;display:flex;align-items:center;justify-content:center}
img{max-width:%dpx;max-height:%dpx;object-fit:contain}
.caption{position:absolute;bottom:48px;left:60px;right:60px;text-align:center;
font-family:'Arial Black',Arial,sans-serif;font-size:56px;line-height:1.2;color:#fff;
-webkit-text-stroke:2px #000;text-shadow:3px 3px 6px rgba(0,0,0,.9)}
</style></head>
<body><div class="stage"><img src="%s"><div class="caption">%s</div></div></body></html>`,
		outputWidth, outputHeight, outputWidth, outputHeight, outputWidth, outputHeight,
		dataURI, html.EscapeString(spec.Caption))
}

func buildTitleHTML(title string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><style>
html,body{margin:0;padding:0;width:%dpx;height:%dpx;background:#000;overflow:hidden}
.stage{width:%dpx;height:%dpx;display:flex;flex-direction:column;align-items:center;justify-content:center}
h1{font-family:'Arial Black',Arial,sans-serif;font-size:96px;color:#fff;margin:0;
max-width:%dpx;text-align:center;text-shadow:4px 4px 8px rgba(255,255,255,.15)}
.sub{font-family:Arial,sans-serif;font-size:40px;color:#888;margin-top:32px}
</style></head>
<body><div class="stage"><h1>%s</h1><div class="sub">MemeSync</div></div></body></html>`,
		outputWidth, outputHeight, outputWidth, outputHeight, outputWidth-200,
		html.EscapeString(title))
}
