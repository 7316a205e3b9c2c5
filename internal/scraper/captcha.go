package scraper

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// CaptchaSolver reads the text of a captcha image.
type CaptchaSolver interface {
	SolveCaptcha(ctx context.Context, image []byte) (string, error)
}

const (
	captchaImageSelector = "img#captcha_image, img[id*='captcha'], img[src*='captcha']"
	captchaInputSelector = "input#fcaptcha_code, input[name*='captcha'], input[id*='captcha']"
	captchaRefresh       = "a[onclick*='refreshCaptcha'], img[onclick*='refreshCaptcha'], #captcha_refresh"
)

// handleCaptcha fills the captcha field when the form shows one.
func (s *Scraper) handleCaptcha(ctx context.Context, page *rod.Page) error {
	has, captchaImg, err := page.Has(captchaImageSelector)
	if err != nil {
		return fmt.Errorf("failed to look for captcha: %w", err)
	}
	if !has {
		s.logger.Debug("No CAPTCHA detected")
		return nil
	}

	if s.solver == nil {
		return fmt.Errorf("captcha present and no solver configured")
	}

	captchaData, err := s.getCaptchaImage(captchaImg)
	if err != nil {
		return fmt.Errorf("failed to get CAPTCHA image: %w", err)
	}

	solveCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	captchaText, err := s.solver.SolveCaptcha(solveCtx, captchaData)
	if err != nil {
		return fmt.Errorf("failed to solve CAPTCHA: %w", err)
	}
	if captchaText == "" {
		return fmt.Errorf("captcha solver returned no text")
	}

	captchaInput, err := page.Element(captchaInputSelector)
	if err != nil {
		return fmt.Errorf("CAPTCHA input field not found: %w", err)
	}
	if err := captchaInput.SelectAllText(); err == nil {
		_ = captchaInput.Input("")
	}
	if err := captchaInput.Input(captchaText); err != nil {
		return fmt.Errorf("failed to enter CAPTCHA: %w", err)
	}
	s.logger.Debug("CAPTCHA text entered", "length", len(captchaText))

	return nil
}

// getCaptchaImage returns the captcha bytes from an inline data URI, or
// from a screenshot of the element.
func (s *Scraper) getCaptchaImage(captchaImg *rod.Element) ([]byte, error) {
	src, err := captchaImg.Attribute("src")
	if err == nil && src != nil && strings.HasPrefix(*src, "data:image") {
		if parts := strings.SplitN(*src, ",", 2); len(parts) == 2 {
			if data, err := base64.StdEncoding.DecodeString(parts[1]); err == nil {
				return data, nil
			}
		}
	}

	screenshot, err := captchaImg.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to screenshot CAPTCHA: %w", err)
	}
	return screenshot, nil
}

// refreshCaptcha asks the page for a new captcha image after a rejection.
func (s *Scraper) refreshCaptcha(page *rod.Page) {
	if has, btn, err := page.Has(captchaRefresh); err == nil && has {
		if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
			s.logger.Debug("Captcha refresh failed", "error", err)
		}
		time.Sleep(time.Second)
	}
}
