// Package weather fetches current conditions from the OpenWeather API.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const DefaultBaseURL = "https://api.openweathermap.org"

// ErrLookupFailed matches every error returned by Client.Current.
var ErrLookupFailed = errors.New("weather lookup failed")

// LookupError carries a non-200 upstream answer.
type LookupError struct {
	Status  int
	Message string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("weather lookup failed: status %d: %s", e.Status, e.Message)
}

func (e *LookupError) Is(target error) bool { return target == ErrLookupFailed }

type Report struct {
	City        string
	Status      int
	Temperature float64
	FeelsLike   float64
	Description string
	WindSpeed   float64
}

type Config struct {
	APIKey  string
	BaseURL string
	Lang    string
	Timeout time.Duration
}

type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	lang    string
	upper   cases.Caser
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	lang := strings.TrimSpace(cfg.Lang)
	if lang == "" {
		lang = "ru"
	}
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.Russian
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: base,
		apiKey:  cfg.APIKey,
		lang:    lang,
		upper:   cases.Upper(tag),
	}
}

// owmResponse covers both success and error bodies. cod is a number on
// success and a string on errors, so it is left raw.
type owmResponse struct {
	Cod     json.RawMessage `json:"cod"`
	Message string          `json:"message"`
	Name    string          `json:"name"`
	Main    struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

// Current returns the conditions for city right now.
func (c *Client) Current(ctx context.Context, city string) (Report, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return Report{}, &LookupError{Status: http.StatusBadRequest, Message: "city is empty"}
	}
	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")
	q.Set("lang", c.lang)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/data/2.5/weather?"+q.Encode(), nil)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Report{}, fmt.Errorf("%w: read body: %v", ErrLookupFailed, err)
	}
	var data owmResponse
	if err := json.Unmarshal(body, &data); err != nil && resp.StatusCode == http.StatusOK {
		return Report{}, fmt.Errorf("%w: decode: %v", ErrLookupFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := data.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return Report{}, &LookupError{Status: resp.StatusCode, Message: msg}
	}

	r := Report{
		City:        city,
		Status:      resp.StatusCode,
		Temperature: data.Main.Temp,
		FeelsLike:   data.Main.FeelsLike,
		WindSpeed:   data.Wind.Speed,
	}
	if len(data.Weather) > 0 {
		r.Description = c.capitalize(data.Weather[0].Description)
	}
	return r, nil
}

func (c *Client) capitalize(s string) string {
	if s == "" {
		return s
	}
	_, n := utf8.DecodeRuneInString(s)
	return c.upper.String(s[:n]) + s[n:]
}

// Text renders the report the way it is shown to users.
func (r Report) Text() string {
	var b strings.Builder
	b.WriteString("Погода в ")
	b.WriteString(r.City)
	b.WriteString(":\n")
	b.WriteString("Температура: " + formatFloat(r.Temperature) + "°C\n")
	b.WriteString("Ощущается как: " + formatFloat(r.FeelsLike) + "°C\n")
	if r.Description != "" {
		b.WriteString(r.Description + "\n")
	}
	b.WriteString("Ветер: " + formatFloat(r.WindSpeed) + " м/с")
	return b.String()
}

// Notice renders a lookup failure for the user.
func Notice(err error) string {
	var le *LookupError
	if errors.As(err, &le) {
		return "Ошибка: " + le.Message
	}
	return "Ошибка получения погоды: " + err.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
