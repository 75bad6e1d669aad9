package export

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// US letter with 0.75in margins.
const (
	pageWidthInches  = 8.5
	pageHeightInches = 11.0
	pageMarginInches = 0.75
)

const renderTimeout = 30 * time.Second

func chromiumBinaryPresent() bool {
	for _, name := range []string{"chromium-browser", "chromium"} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}

func exportPDF(html string, title string) (*Result, error) {
	if !chromiumBinaryPresent() {
		return nil, fmt.Errorf("%w: chromium not installed", ErrPDFDependencyMissing)
	}

	ctx, cancel := context.WithTimeout(context.Background(), renderTimeout)
	defer cancel()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
	)...)
	defer cancelAlloc()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	var data []byte
	err := chromedp.Run(tabCtx,
		chromedp.Navigate("data:text/html;charset=utf-8,"+percentEncodeForDataURL(html)),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			data, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(pageWidthInches).
				WithPaperHeight(pageHeightInches).
				WithMarginTop(pageMarginInches).
				WithMarginBottom(pageMarginInches).
				WithMarginLeft(pageMarginInches).
				WithMarginRight(pageMarginInches).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chrome pdf generation failed: %w", err)
	}

	return &Result{
		Data:     data,
		Filename: sanitizeFilename(title) + ".pdf",
		MimeType: "application/pdf",
	}, nil
}

// percentEncodeForDataURL encodes a string for use in a data URL. Spaces must
// become %20, not +, so url.QueryEscape is not usable here.
func percentEncodeForDataURL(s string) string {
	var out strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~':
			out.WriteRune(r)
		case r == ' ':
			out.WriteString("%20")
		default:
			for _, b := range []byte(string(r)) {
				fmt.Fprintf(&out, "%%%02X", b)
			}
		}
	}
	return out.String()
}

func sanitizeFilename(title string) string {
	var out strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out.WriteRune(r)
		case r == ' ':
			out.WriteRune('-')
		}
	}

	name := out.String()
	if len(name) > 50 {
		name = name[:50]
	}
	if name == "" {
		name = "roadmap"
	}
	return name
}
