// verify-access exercises the reader/approver/admin permission lattice
// against a deployed gateway. It assumes the given execution role, signs
// each request with SigV4 the way a notebook user profile would, and
// compares the gateway's verdicts with what the lattice predicts.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"mlflow-fargate/policy"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	var (
		endpoint = pflag.String("endpoint", "", "gateway invoke URL, e.g. https://abc123.execute-api.us-west-2.amazonaws.com/prod")
		region   = pflag.String("region", "us-west-2", "gateway region")
		roleName = pflag.String("role", "reader", "access tier to exercise: reader, approver or admin")
		roleArn  = pflag.String("role-arn", "", "execution role ARN to assume for the chosen tier")
		model    = pflag.String("model", "california-housing-model", "registered model name for the create-twice scenario")
		timeout  = pflag.Duration("timeout", 30*time.Second, "per-request timeout")
	)
	pflag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().
		Timestamp().
		Str("session", uuid.NewString()[:8]).
		Logger()

	if *endpoint == "" || *roleArn == "" {
		logger.Fatal().Msg("--endpoint and --role-arn are required")
	}
	role := policy.Role(*roleName)
	checks := checksFor(role)
	if checks == nil {
		logger.Fatal().Str("role", *roleName).Msg("unknown role")
	}

	ctx := context.Background()
	invoker, err := newCaller(ctx, *endpoint, *region, *roleArn, *timeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("assume execution role")
	}

	failed := 0
	for _, c := range checks {
		allowed, status, detail, err := invoker.run(ctx, c)
		if err != nil {
			logger.Error().Err(err).Str("check", c.Name).Msg("request failed")
			failed++
			continue
		}
		event := logger.Info()
		if allowed != c.WantAllowed {
			event = logger.Error()
			failed++
		}
		event.Str("check", c.Name).
			Str("request", c.Method+" "+c.Path).
			Bool("allowed", allowed).
			Bool("expected", c.WantAllowed).
			Int("status", status).
			Str("detail", detail).
			Msg("verified")
	}

	// Only tiers that may write to the registry run the create-twice
	// scenario; for a reader the create itself is already covered above.
	if role == policy.Approver || role == policy.Admin {
		if err := invoker.createTwice(ctx, *model, &logger); err != nil {
			logger.Error().Err(err).Msg("create-twice scenario")
			failed++
		}
	}

	if failed > 0 {
		logger.Fatal().Int("failed", failed).Msg("access verification failed")
	}
	logger.Info().Str("role", string(role)).Msg("access verification passed")
}

type caller struct {
	endpoint string
	region   string
	creds    aws.CredentialsProvider
	signer   *v4.Signer
	client   *http.Client
}

func newCaller(ctx context.Context, endpoint, region, roleArn string, timeout time.Duration) (*caller, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), roleArn, func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = "verify-access"
	})
	return &caller{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		region:   region,
		creds:    aws.NewCredentialsCache(provider),
		signer:   v4.NewSigner(),
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// do sends one SigV4-signed request and returns the status and body.
func (c *caller) do(ctx context.Context, method, path, body string) (int, []byte, error) {
	url := c.endpoint + "/" + policy.APIPrefix + path
	req, err := http.NewRequestWithContext(ctx, method, url, strings.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	sum := sha256.Sum256([]byte(body))
	creds, err := c.creds.Retrieve(ctx)
	if err != nil {
		return 0, nil, err
	}
	err = c.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), "execute-api", c.region, time.Now())
	if err != nil {
		return 0, nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// run executes one check. The gateway rejects unauthorized calls with 403
// before they reach the tracking server, so 403 is the denial signal and
// any other status means the call got through.
func (c *caller) run(ctx context.Context, ch check) (allowed bool, status int, detail string, err error) {
	status, body, err := c.do(ctx, ch.Method, ch.Path, ch.Body)
	if err != nil {
		return false, 0, "", err
	}
	return status != http.StatusForbidden, status, summarize(body), nil
}

// createTwice runs the end-to-end registry scenario: the first create of
// the named model must succeed and the repeat must fail with the server's
// already-exists code rather than a generic error.
func (c *caller) createTwice(ctx context.Context, model string, logger *zerolog.Logger) error {
	body := fmt.Sprintf(`{"name":%q}`, model)

	status, respBody, err := c.do(ctx, http.MethodPost, "registered-models/create", body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("first create of %s returned %d: %s", model, status, summarize(respBody))
	}
	logger.Info().Str("model", model).Msg("registered model created")

	status, respBody, err = c.do(ctx, http.MethodPost, "registered-models/create", body)
	if err != nil {
		return err
	}
	if code := errorCode(respBody); status == http.StatusOK || code != "RESOURCE_ALREADY_EXISTS" {
		return fmt.Errorf("second create of %s returned %d (%s), want RESOURCE_ALREADY_EXISTS", model, status, summarize(respBody))
	}
	logger.Info().Str("model", model).Msg("duplicate create rejected with RESOURCE_ALREADY_EXISTS")
	return nil
}

// errorCode extracts the tracking server's error code, if the body is one
// of its error payloads.
func errorCode(body []byte) string {
	var payload struct {
		ErrorCode string `json:"error_code"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.ErrorCode
}

// summarize condenses a response body to a log-friendly line. Tracking
// server errors carry error_code/message; IAM denials carry Message with
// the denied action and resource ARN.
func summarize(body []byte) string {
	var mlflowErr struct {
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(body, &mlflowErr); err == nil && mlflowErr.ErrorCode != "" {
		return mlflowErr.ErrorCode + ": " + truncate(mlflowErr.Message, 120)
	}
	var denial struct {
		Message string `json:"Message"`
	}
	if err := json.Unmarshal(body, &denial); err == nil && denial.Message != "" {
		return truncate(denial.Message, 160)
	}
	return truncate(string(body), 120)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
