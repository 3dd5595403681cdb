// Package geocoder resolves coordinates to a street address through a
// Nominatim-compatible reverse geocoding service.
package geocoder

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Geocoder 反向地理编码接口
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

// nominatimResponse Nominatim /reverse 响应
type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// NominatimGeocoder Nominatim 客户端
type NominatimGeocoder struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewNominatim 创建 Nominatim 客户端
func NewNominatim(baseURL string, timeout time.Duration, logger *zap.Logger) *NominatimGeocoder {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "fleettrack/1.0")

	return &NominatimGeocoder{
		httpClient: client,
		logger:     logger,
	}
}

// Reverse 坐标转地址
func (g *NominatimGeocoder) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	var response nominatimResponse
	resp, err := g.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"lat":    fmt.Sprintf("%.6f", lat),
			"lon":    fmt.Sprintf("%.6f", lon),
			"format": "jsonv2",
		}).
		SetResult(&response).
		Get("/reverse")
	if err != nil {
		return "", fmt.Errorf("reverse geocoding request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("reverse geocoding returned status %d", resp.StatusCode())
	}
	if response.Error != "" {
		return "", fmt.Errorf("reverse geocoding failed: %s", response.Error)
	}

	g.logger.Debug("Address resolved",
		zap.Float64("lat", lat),
		zap.Float64("lon", lon),
		zap.String("address", response.DisplayName),
	)
	return response.DisplayName, nil
}
