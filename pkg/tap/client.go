package tap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/partsdepot/partsdepot-backend/pkg/config"
	pkgerrors "github.com/partsdepot/partsdepot-backend/pkg/errors"
	"github.com/partsdepot/partsdepot-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"

	defaultTimeout = 15 * time.Second
)

var (
	errSecretKeyRequired     = errors.New("tap secret key is required")
	errWebhookSecretRequired = errors.New("tap webhook secret is required")
	errInvalidTapEnv         = fmt.Errorf("tap environment must be %q or %q", testEnv, liveEnv)
)

// Client wraps Tap's charges API with centralized auth, logging, bounded
// timeouts, and error mapping. Local records are never mutated here; callers
// decide what a gateway response means.
type Client struct {
	http          *http.Client
	baseURL       string
	secretKey     string
	webhookSecret string
	environment   string
	logger        *logger.Logger
}

// NewClient initializes the Tap wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.TapConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	secretKey := strings.TrimSpace(cfg.SecretKey)
	if secretKey == "" {
		return nil, errSecretKeyRequired
	}
	if err := validateSecretKey(env, secretKey); err != nil {
		return nil, err
	}

	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if webhookSecret == "" {
		return nil, errWebhookSecretRequired
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.tap.company/v2"
	}

	c := &Client{
		http:          &http.Client{Timeout: timeout},
		baseURL:       baseURL,
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		environment:   env,
		logger:        logg,
	}

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("tap client initialized (%s)", env))
	}
	return c, nil
}

// Environment reports the normalized Tap environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// CreateCharge opens a charge at the gateway and returns its id, status and
// redirect URL.
func (c *Client) CreateCharge(ctx context.Context, params ChargeCreateParams) (*Charge, error) {
	c.log(ctx, "request", "create_charge", map[string]any{
		"amount":   params.Amount,
		"currency": params.Currency,
		"order":    params.OrderReference,
	})
	var charge Charge
	if err := c.do(ctx, http.MethodPost, "/charges", params.body(), &charge); err != nil {
		c.log(ctx, "error", "create_charge", map[string]any{"error": err.Error()})
		return nil, err
	}
	c.log(ctx, "response", "create_charge", map[string]any{
		"charge_id": charge.ID,
		"status":    charge.Status,
	})
	return &charge, nil
}

// GetCharge fetches a charge by id.
func (c *Client) GetCharge(ctx context.Context, chargeID string) (*Charge, error) {
	if strings.TrimSpace(chargeID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge id required")
	}
	c.log(ctx, "request", "get_charge", map[string]any{"charge_id": chargeID})
	var charge Charge
	if err := c.do(ctx, http.MethodGet, "/charges/"+chargeID, nil, &charge); err != nil {
		c.log(ctx, "error", "get_charge", map[string]any{"error": err.Error()})
		return nil, err
	}
	return &charge, nil
}

// RefundCharge refunds part or all of a charge.
func (c *Client) RefundCharge(ctx context.Context, params RefundParams) (*Refund, error) {
	if strings.TrimSpace(params.ChargeID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge id required")
	}
	c.log(ctx, "request", "refund_charge", map[string]any{
		"charge_id": params.ChargeID,
		"amount":    params.Amount,
	})
	var refund Refund
	if err := c.do(ctx, http.MethodPost, "/refunds", params.body(), &refund); err != nil {
		c.log(ctx, "error", "refund_charge", map[string]any{"error": err.Error()})
		return nil, err
	}
	c.log(ctx, "response", "refund_charge", map[string]any{
		"refund_id": refund.ID,
		"status":    refund.Status,
	})
	return &refund, nil
}

// VoidAuthorize cancels an authorization before capture.
func (c *Client) VoidAuthorize(ctx context.Context, authorizeID string) (*Charge, error) {
	if strings.TrimSpace(authorizeID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "authorize id required")
	}
	c.log(ctx, "request", "void_authorize", map[string]any{"authorize_id": authorizeID})
	var charge Charge
	if err := c.do(ctx, http.MethodPost, "/authorize/"+authorizeID+"/void", nil, &charge); err != nil {
		c.log(ctx, "error", "void_authorize", map[string]any{"error": err.Error()})
		return nil, err
	}
	return &charge, nil
}

// UpdateChargeMetadata replaces the metadata attached to a charge.
func (c *Client) UpdateChargeMetadata(ctx context.Context, chargeID string, metadata map[string]string) (*Charge, error) {
	if strings.TrimSpace(chargeID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge id required")
	}
	body := map[string]any{"metadata": metadata}
	c.log(ctx, "request", "update_charge", map[string]any{"charge_id": chargeID})
	var charge Charge
	if err := c.do(ctx, http.MethodPut, "/charges/"+chargeID, body, &charge); err != nil {
		c.log(ctx, "error", "update_charge", map[string]any{"error": err.Error()})
		return nil, err
	}
	return &charge, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, dest any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode tap request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build tap request")
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "tap unreachable").
			WithDetails(map[string]any{"provider": "tap"})
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read tap response").
			WithDetails(map[string]any{"provider": "tap"})
	}

	if resp.StatusCode >= 400 {
		return c.remoteError(resp.StatusCode, payload)
	}

	if dest != nil {
		if err := json.Unmarshal(payload, dest); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode tap response").
				WithDetails(map[string]any{"provider": "tap"})
		}
	}
	return nil
}

func (c *Client) remoteError(status int, payload []byte) error {
	var body errorEnvelope
	_ = json.Unmarshal(payload, &body)

	code := ""
	message := ""
	if len(body.Errors) > 0 {
		code = body.Errors[0].Code
		message = body.Errors[0].Description
	}
	if message == "" {
		message = fmt.Sprintf("tap returned status %d", status)
	}
	return pkgerrors.New(pkgerrors.CodeDependency, "tap request failed").
		WithDetails(map[string]any{
			"provider":       "tap",
			"http_status":    status,
			"provider_code":  code,
			"provider_error": message,
		})
}

func (c *Client) log(ctx context.Context, phase, operation string, fields map[string]any) {
	if c.logger == nil {
		return
	}
	merged := map[string]any{"phase": phase, "operation": operation}
	for k, v := range fields {
		merged[k] = v
	}
	c.logger.Info(c.logger.WithFields(ctx, merged), "tap."+operation)
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidTapEnv
	}
}

func validateSecretKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test_") {
			return nil
		}
		return fmt.Errorf("tap environment %q requires a test secret key (sk_test_)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live_") {
			return nil
		}
		return fmt.Errorf("tap environment %q requires a live secret key (sk_live_)", liveEnv)
	default:
		return errInvalidTapEnv
	}
}
