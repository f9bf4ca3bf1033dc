// Package appinfo looks up branding metadata (name, logo, primary color) for
// the app behind a provider code. The upstream app service is best-effort:
// every failure degrades to "no info" so landing pages still render.
package appinfo

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brpsystems/applinks/internal/metrics"
)

const (
	lookupTimeout = 5 * time.Second
	maxBodyBytes  = 256 << 10
)

// Logo describes one app logo asset.
type Logo struct {
	ContentURL  string `json:"contentUrl"`
	ImageWidth  int    `json:"imageWidth"`
	ImageHeight int    `json:"imageHeight"`
}

// AppInfo is the branding payload rendered into landing pages.
type AppInfo struct {
	AppName      string `json:"appName"`
	Logo         *Logo  `json:"logo,omitempty"`
	PrimaryColor string `json:"primaryColor"`
}

// Client resolves provider codes against the app service.
type Client struct {
	serviceURL string
	httpClient *http.Client
}

// NewClient creates a metadata client for the given app-service base URL.
func NewClient(serviceURL string) *Client {
	return &Client{
		serviceURL: serviceURL,
		httpClient: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
	}
}

// Lookup returns branding metadata for providerCode, or nil when the code is
// unknown or the upstream is unreachable. It never returns an error to the
// caller: "no info" and "not found" are the same outcome here.
func (c *Client) Lookup(ctx context.Context, providerCode string) *AppInfo {
	ref, err := c.appRef(ctx, providerCode)
	if err != nil {
		metrics.AppInfoLookups.WithLabelValues("error").Inc()
		log.Debug().Err(err).Str("code", providerCode).Msg("appinfo: ref lookup failed")
		return nil
	}
	if ref == nil {
		metrics.AppInfoLookups.WithLabelValues("miss").Inc()
		return nil
	}

	info, err := c.appDetails(ctx, ref.AppID, ref.API3URL)
	if err != nil {
		metrics.AppInfoLookups.WithLabelValues("error").Inc()
		log.Debug().Err(err).Int64("app_id", ref.AppID).Msg("appinfo: detail lookup failed")
		return nil
	}
	if info == nil {
		metrics.AppInfoLookups.WithLabelValues("miss").Inc()
		return nil
	}
	metrics.AppInfoLookups.WithLabelValues("hit").Inc()
	return info
}

type appRef struct {
	AppID   int64  `json:"appId"`
	API3URL string `json:"api3Url"`
}

// appRef resolves the provider code to an app id and the API host serving it.
func (c *Client) appRef(ctx context.Context, providerCode string) (*appRef, error) {
	u := fmt.Sprintf("%s?appCode=%s", c.serviceURL, url.QueryEscape(providerCode))
	body, status, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, nil
	}

	var apps []appRef
	if err := json.Unmarshal(body, &apps); err != nil {
		return nil, fmt.Errorf("decode app list: %w", err)
	}
	if len(apps) == 0 || apps[0].AppID == 0 || apps[0].API3URL == "" {
		return nil, nil
	}
	return &apps[0], nil
}

func (c *Client) appDetails(ctx context.Context, appID int64, api3URL string) (*AppInfo, error) {
	u := fmt.Sprintf("%s/api/ver3/apps/%d", api3URL, appID)
	body, status, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, nil
	}

	var raw struct {
		AppName string `json:"appName"`
		Assets  []struct {
			Type        string `json:"type"`
			Theme       string `json:"theme"`
			ContentURL  string `json:"contentUrl"`
			ImageWidth  int    `json:"imageWidth"`
			ImageHeight int    `json:"imageHeight"`
		} `json:"assets"`
		Themes struct {
			Light struct {
				PrimaryColor string `json:"primaryColor"`
			} `json:"light"`
			Dark struct {
				PrimaryColor string `json:"primaryColor"`
			} `json:"dark"`
		} `json:"themes"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode app info: %w", err)
	}

	info := &AppInfo{AppName: raw.AppName}

	// Prefer the light-theme logo, fall back to dark.
	for _, theme := range []string{"light", "dark"} {
		for _, a := range raw.Assets {
			if a.Type == "LOGO" && a.Theme == theme {
				info.Logo = &Logo{ContentURL: a.ContentURL, ImageWidth: a.ImageWidth, ImageHeight: a.ImageHeight}
				break
			}
		}
		if info.Logo != nil {
			break
		}
	}

	info.PrimaryColor = raw.Themes.Light.PrimaryColor
	if info.PrimaryColor == "" {
		info.PrimaryColor = raw.Themes.Dark.PrimaryColor
	}
	if info.PrimaryColor == "" {
		info.PrimaryColor = "#0000FF"
	}
	return info, nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

// Healthy checks app-service reachability.
func (c *Client) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serviceURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("app service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("app service unhealthy: http %d", resp.StatusCode)
	}
	return nil
}
