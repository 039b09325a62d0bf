package terminal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"propcheck/internal/domain"
)

// Client talks to a terminal bridge: a sidecar process that wraps the vendor
// terminal and exposes its account, history and price data over HTTP. One
// Client corresponds to one logged-in terminal session.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Server   string `json:"server"`
}

// Login authenticates the bridge session.
func (c *Client) Login(ctx context.Context, login, password, server string) error {
	body, err := json.Marshal(loginRequest{Login: login, Password: password, Server: server})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("terminal bridge: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("login rejected: status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	c.log.Info().Str("login", login).Str("server", server).Msg("terminal session established")
	return nil
}

// Close tears down the bridge session.
func (c *Client) Close(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/logout", nil)
	if err != nil {
		return err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	res.Body.Close()
	return nil
}

func (c *Client) AccountSnapshot(ctx context.Context) (domain.AccountSnapshot, error) {
	var snap domain.AccountSnapshot
	if err := c.getJSON(ctx, "/account", nil, &snap); err != nil {
		return domain.AccountSnapshot{}, err
	}
	return snap, nil
}

type wireDeal struct {
	Time       int64   `json:"time"`
	Symbol     string  `json:"symbol"`
	Type       int     `json:"type"`
	Entry      int     `json:"entry"`
	Volume     float64 `json:"volume"`
	Price      float64 `json:"price"`
	Profit     float64 `json:"profit"`
	Swap       float64 `json:"swap"`
	Commission float64 `json:"commission"`
	PositionID int64   `json:"position_id"`
}

// DealHistory returns all deals since from, oldest first.
func (c *Client) DealHistory(ctx context.Context, from time.Time) ([]domain.Deal, error) {
	var wire []wireDeal
	query := url.Values{"from": {strconv.FormatInt(from.Unix(), 10)}}
	if err := c.getJSON(ctx, "/deals", query, &wire); err != nil {
		return nil, err
	}
	deals := make([]domain.Deal, 0, len(wire))
	for _, d := range wire {
		deals = append(deals, domain.Deal{
			Time:       time.Unix(d.Time, 0).UTC(),
			Symbol:     d.Symbol,
			Direction:  domain.Direction(d.Type),
			Entry:      domain.DealEntry(d.Entry),
			Volume:     d.Volume,
			Price:      d.Price,
			Profit:     d.Profit,
			Swap:       d.Swap,
			Commission: d.Commission,
			PositionID: d.PositionID,
		})
	}
	return deals, nil
}

// ClosedPositions reconstructs closed positions from the deal stream; the
// bridge itself has no position-history endpoint.
func (c *Client) ClosedPositions(ctx context.Context, from time.Time) ([]domain.Position, error) {
	deals, err := c.DealHistory(ctx, from)
	if err != nil {
		return nil, err
	}
	positions := PositionsFromDeals(deals)
	c.log.Info().Int("deals", len(deals)).Int("positions", len(positions)).Msg("closed positions reconstructed")
	return positions, nil
}

type wireBar struct {
	Time  int64   `json:"time"`
	Close float64 `json:"close"`
}

func (c *Client) MinuteBars(ctx context.Context, symbol string, from, to time.Time) ([]domain.Bar, error) {
	var wire []wireBar
	query := url.Values{
		"symbol":    {symbol},
		"timeframe": {"M1"},
		"from":      {strconv.FormatInt(from.Unix(), 10)},
		"to":        {strconv.FormatInt(to.Unix(), 10)},
	}
	if err := c.getJSON(ctx, "/bars", query, &wire); err != nil {
		return nil, err
	}
	bars := make([]domain.Bar, 0, len(wire))
	for _, b := range wire {
		bars = append(bars, domain.Bar{Time: time.Unix(b.Time, 0).UTC(), Close: b.Close})
	}
	return bars, nil
}

func (c *Client) InstrumentInfo(ctx context.Context, symbol string) (domain.InstrumentInfo, error) {
	var info domain.InstrumentInfo
	query := url.Values{"symbol": {symbol}}
	if err := c.getJSON(ctx, "/instrument", query, &info); err != nil {
		return domain.InstrumentInfo{}, err
	}
	return info, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("terminal bridge: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("terminal bridge: %s not found", path)
	}
	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("terminal bridge: %s status %d: %s", path, res.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(res.Body).Decode(out)
}
