package twilio

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

	"remindr/internal/carrier"
)

const defaultBaseURL = "https://api.twilio.com"

type Client struct {
	AccountSID string
	AuthToken  string
	HTTP       *http.Client

	MessagingServiceSID string
	FromNumber          string
	BaseURL             string
	StatusCallbackURL   string
}

type SendRequest struct {
	To                string
	Body              string
	StatusCallbackURL string
}

type SendResponse struct {
	Sid       string `json:"sid"`
	Status    string `json:"status"`
	ErrorCode *int   `json:"error_code"`
	Message   string `json:"message"`
	// Code is set on error payloads.
	Code int `json:"code"`
}

func (c *Client) SendSMS(ctx context.Context, req SendRequest) (SendResponse, int, []byte, error) {
	form := url.Values{}
	form.Set("To", req.To)
	form.Set("Body", req.Body)
	if req.StatusCallbackURL != "" {
		form.Set("StatusCallback", req.StatusCallbackURL)
	}
	if c.MessagingServiceSID != "" {
		form.Set("MessagingServiceSid", c.MessagingServiceSID)
	} else {
		form.Set("From", c.FromNumber)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return SendResponse{}, 0, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(httpReq)
}

func (c *Client) FetchMessage(ctx context.Context, sid string) (SendResponse, int, []byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.accountURL()+"/Messages/"+url.PathEscape(sid)+".json", nil)
	if err != nil {
		return SendResponse{}, 0, nil, err
	}
	return c.do(httpReq)
}

func (c *Client) do(httpReq *http.Request) (SendResponse, int, []byte, error) {
	httpReq.SetBasicAuth(c.AccountSID, c.AuthToken)

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return SendResponse{}, 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	var out SendResponse
	_ = json.Unmarshal(b, &out)

	// Twilio returns 201 for created; treat 2xx as success
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Message != "" {
			return out, resp.StatusCode, b, errors.New(out.Message)
		}
		return out, resp.StatusCode, b, fmt.Errorf("twilio request failed with status %d", resp.StatusCode)
	}
	return out, resp.StatusCode, b, nil
}

// Send implements carrier.Gateway.
func (c *Client) Send(ctx context.Context, to, body string) (carrier.SendResult, error) {
	resp, httpStatus, _, err := c.SendSMS(ctx, SendRequest{To: to, Body: body, StatusCallbackURL: c.StatusCallbackURL})
	if err != nil {
		return carrier.SendResult{}, Categorize(err, httpStatus, resp.Code)
	}
	return carrier.SendResult{CarrierMsgID: resp.Sid, Status: resp.Status}, nil
}

// Status implements carrier.Gateway.
func (c *Client) Status(ctx context.Context, carrierMsgID string) (string, error) {
	resp, httpStatus, _, err := c.FetchMessage(ctx, carrierMsgID)
	if err != nil {
		return "", Categorize(err, httpStatus, resp.Code)
	}
	return resp.Status, nil
}

func (c *Client) accountURL() string {
	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return baseURL + "/2010-04-01/Accounts/" + c.AccountSID
}

func (c *Client) messagesURL() string { return c.accountURL() + "/Messages.json" }

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// Twilio error codes that say something about the recipient rather than the request.
var (
	invalidAddressCodes = map[int]bool{21211: true, 21214: true, 21614: true, 21217: true}
	permanentCodes      = map[int]bool{21610: true, 21408: true, 30003: true, 30005: true, 30006: true, 30007: true}
	rateLimitCodes      = map[int]bool{20429: true, 14107: true, 30022: true}
)

// Categorize maps a Twilio failure onto the carrier taxonomy.
func Categorize(err error, httpStatus, code int) *carrier.Error {
	ce := &carrier.Error{HTTPStatus: httpStatus, Err: err}
	if code != 0 {
		ce.Code = strconv.Itoa(code)
	}
	switch {
	case invalidAddressCodes[code]:
		ce.Category = carrier.InvalidAddress
	case permanentCodes[code]:
		ce.Category = carrier.PermanentRejection
	case rateLimitCodes[code] || httpStatus == http.StatusTooManyRequests:
		ce.Category = carrier.RateLimited
	case httpStatus == 0 || httpStatus == http.StatusRequestTimeout || httpStatus >= 500:
		ce.Category = carrier.TransientNetwork
	default:
		ce.Category = carrier.PermanentRejection
	}
	return ce
}

// CategorizeCode maps a delivery-status error code from a status callback.
func CategorizeCode(code string) carrier.Category {
	n, err := strconv.Atoi(code)
	if err != nil {
		return ""
	}
	switch {
	case invalidAddressCodes[n]:
		return carrier.InvalidAddress
	case permanentCodes[n]:
		return carrier.PermanentRejection
	case rateLimitCodes[n]:
		return carrier.RateLimited
	}
	return carrier.TransientNetwork
}
