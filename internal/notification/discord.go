// Package notification posts run outcomes to Discord webhooks.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

type DiscordMessage struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

const (
	colorRed   = 16711680
	colorGreen = 65280
)

// Discord sends to the error and success webhooks. A blank URL turns that
// kind of notification into a no-op.
type Discord struct {
	ErrorURL   string
	SuccessURL string
	Client     *http.Client
}

func (d *Discord) Error(ctx context.Context, command string, err error) error {
	return d.send(ctx, d.ErrorURL, DiscordEmbed{
		Title:       "🚨 " + command + " failed",
		Description: fmt.Sprintf("An error occurred: %s", err),
		Color:       colorRed,
	})
}

func (d *Discord) Success(ctx context.Context, command, summary string) error {
	return d.send(ctx, d.SuccessURL, DiscordEmbed{
		Title:       "✅ " + command + " finished",
		Description: summary,
		Color:       colorGreen,
	})
}

func (d *Discord) send(ctx context.Context, url string, embed DiscordEmbed) error {
	if url == "" {
		return nil
	}
	payload, err := json.Marshal(DiscordMessage{Embeds: []DiscordEmbed{embed}})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to send Discord notification, status code: %d", resp.StatusCode)
	}
	return nil
}
