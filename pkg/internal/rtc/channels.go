package rtc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
)

type Config struct {
	BaseURL        string
	AppID          string
	AppCertificate string
	CustomerKey    string
	CustomerSecret string

	TokenDuration  time.Duration
	RequestTimeout time.Duration
	// CloseFor is how long a closed channel refuses new joins.
	CloseFor time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.BaseURL) == 0 {
		c.BaseURL = "https://api.agora.io"
	}
	if c.TokenDuration <= 0 {
		c.TokenDuration = time.Hour
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.CloseFor <= 0 {
		c.CloseFor = time.Hour
	}
	return c
}

// Client signs channel tokens and manages channels over the rest api.
type Client struct {
	*TokenBuilder
	config Config
}

func NewClient(config Config) *Client {
	config = config.withDefaults()
	return &Client{
		TokenBuilder: NewTokenBuilder(config.AppID, config.AppCertificate),
		config:       config,
	}
}

func (v *Client) TokenDuration() time.Duration {
	return v.config.TokenDuration
}

type kickingRuleResponse struct {
	Status  string `json:"status"`
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

// CloseChannel removes everyone from the channel and refuses joins for the
// configured period.
func (v *Client) CloseChannel(ctx context.Context, channel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := v.config.RequestTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}

	agent := fiber.Post(strings.TrimRight(v.config.BaseURL, "/")+"/dev/v1/kicking-rule").
		JSONEncoder(jsoniter.ConfigCompatibleWithStandardLibrary.Marshal).
		JSON(fiber.Map{
			"appid":      v.config.AppID,
			"cname":      channel,
			"time":       max(1, int(v.config.CloseFor.Minutes())),
			"privileges": []string{"join_channel"},
		}).
		BasicAuth(v.config.CustomerKey, v.config.CustomerSecret).
		Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON).
		Timeout(timeout)
	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return err
	}

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("unable to close channel %s: %v", channel, errs[0])
	}
	var resp kickingRuleResponse
	_ = jsoniter.Unmarshal(body, &resp)
	if status != fiber.StatusOK || resp.Status != "success" {
		return fmt.Errorf("unable to close channel %s: status %d: %s", channel, status, lo.Ternary(len(resp.Message) > 0, resp.Message, string(body)))
	}
	return nil
}

