package hidro

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/tidwall/gjson"

	"github.com/02loveslollipop/shizuku-hidroweb/internal/logging"
	"github.com/02loveslollipop/shizuku-hidroweb/internal/metrics"
	"github.com/02loveslollipop/shizuku-hidroweb/internal/models"
)

const (
	authPath      = "/EstacoesTelemetricas/OAUth/v1"
	telemetryPath = "/EstacoesTelemetricas/HidroinfoanaSerieTelemetricaAdotada/v2"

	paramStations   = "Codigos_Estacoes"
	paramFilterType = "Tipo Filtro Data"
	paramSearchDate = "Data de Busca (yyyy-MM-dd)"
	paramRange      = "Range Intervalo de busca"

	filterByReadingDate = "DATA_LEITURA"
	searchDateLayout    = "2006-01-02"

	// maxErrorBody bounds how much of an error response is kept in UpstreamError.
	maxErrorBody = 2048
)

// tokenPaths lists where the auth response has been seen to carry the token.
var tokenPaths = []string{
	"items.token",
	"items.tokenautenticacao",
	"items.tokenAutenticacao",
	"items.access_token",
	"token",
	"tokenautenticacao",
	"access_token",
}

// Client talks to the ANA HidroWeb telemetry service. It holds no session state.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client; httpClient should carry the per-request timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    httpClient,
	}
}

// Login exchanges the account identifier and secret for a bearer token.
func (c *Client) Login(ctx context.Context, identifier, secret string) (string, error) {
	if c.baseURL == "" {
		return "", &ConfigError{Field: "base URL"}
	}
	if identifier == "" || secret == "" {
		return "", &ConfigError{Field: "credentials"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+authPath, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Identificador", identifier)
	req.Header.Set("Senha", secret)
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req, "login")
	if err != nil {
		var upstream *UpstreamError
		if errors.As(err, &upstream) && (upstream.StatusCode == http.StatusUnauthorized || upstream.StatusCode == http.StatusForbidden) {
			return "", &AuthError{Reason: fmt.Sprintf("status %d", upstream.StatusCode)}
		}
		return "", fmt.Errorf("request token: %w", err)
	}

	for _, path := range tokenPaths {
		if v := gjson.GetBytes(body, path); v.Type == gjson.String {
			if token := CleanToken(v.String()); token != "" {
				return token, nil
			}
		}
	}
	return "", &AuthError{Reason: "no token in response"}
}

// FetchWindow returns the raw records for one station starting at windowStart and
// covering rangeDays days. An empty slice is a valid result.
func (c *Client) FetchWindow(ctx context.Context, token, stationCode string, windowStart time.Time, rangeDays int) ([]models.RawRecord, error) {
	return c.FetchStations(ctx, token, []string{stationCode}, windowStart, rangeDays)
}

// FetchStations is FetchWindow for several stations in one request.
func (c *Client) FetchStations(ctx context.Context, token string, stationCodes []string, windowStart time.Time, rangeDays int) ([]models.RawRecord, error) {
	if c.baseURL == "" {
		return nil, &ConfigError{Field: "base URL"}
	}
	if rangeDays < 1 {
		return nil, fmt.Errorf("hidro: invalid range of %d days", rangeDays)
	}

	q := url.Values{}
	q.Set(paramStations, strings.Join(stationCodes, ","))
	q.Set(paramFilterType, filterByReadingDate)
	q.Set(paramSearchDate, windowStart.Format(searchDateLayout))
	q.Set(paramRange, RangeLabel(rangeDays))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+telemetryPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+CleanToken(token))
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req, "telemetry")
	if err != nil {
		return nil, fmt.Errorf("request telemetry %s from %s: %w", strings.Join(stationCodes, ","), windowStart.Format(searchDateLayout), err)
	}
	return ParseRecords(body)
}

func (c *Client) do(req *http.Request, operation string) ([]byte, error) {
	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveUpstream(operation, 0, started)
		return nil, err
	}
	defer resp.Body.Close()
	metrics.ObserveUpstream(operation, resp.StatusCode, started)
	logging.Ctx(req.Context()).Debug().
		Str("component", "hidro").
		Str("operation", operation).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("upstream call")

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: truncate(string(body))}
	}

	// The service sometimes answers 200 with an error code in the envelope.
	if code := gjson.GetBytes(body, "code"); code.Type == gjson.Number && code.Int() >= 400 {
		msg := gjson.GetBytes(body, "message").String()
		if msg == "" {
			msg = truncate(string(body))
		}
		return nil, &UpstreamError{StatusCode: int(code.Int()), Body: msg}
	}
	return body, nil
}

// ParseRecords accepts a bare array, or an object whose items field is an array
// or a single object, and returns the records as raw JSON.
func ParseRecords(body []byte) ([]models.RawRecord, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return []models.RawRecord{}, nil
	}
	if !gjson.Valid(trimmed) {
		return nil, fmt.Errorf("hidro: response is not valid JSON")
	}

	root := gjson.Parse(trimmed)
	var list gjson.Result
	switch {
	case root.IsArray():
		list = root
	case root.IsObject():
		items := root.Get("items")
		switch {
		case items.IsArray():
			list = items
		case items.IsObject():
			return []models.RawRecord{models.RawRecord(items.Raw)}, nil
		default:
			return []models.RawRecord{}, nil
		}
	default:
		return nil, fmt.Errorf("hidro: unexpected response shape")
	}

	out := make([]models.RawRecord, 0, len(list.Array()))
	for _, item := range list.Array() {
		if item.IsObject() {
			out = append(out, models.RawRecord(item.Raw))
		}
	}
	return out, nil
}

// RangeLabel renders the upstream range parameter, e.g. DIAS_30.
func RangeLabel(days int) string {
	return "DIAS_" + strconv.Itoa(days)
}

// CleanToken drops whitespace and control characters; upstream tokens have
// been observed with embedded newlines.
func CleanToken(token string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, token)
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
