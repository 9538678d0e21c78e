package agent

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/casualjim/mycelia/bus"
	json "github.com/goccy/go-json"
)

const discordAPI = "https://discord.com/api/v10"

// DiscordReactions counts reactions on Discord messages through the
// REST API. It satisfies the Reactions collaborator for deployments
// whose chat surface is Discord.
type DiscordReactions struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewDiscordReactions creates a reaction counter authenticated with the
// given bot token.
func NewDiscordReactions(token string) *DiscordReactions {
	return &DiscordReactions{
		token:   token,
		baseURL: discordAPI,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Count sums the reaction counts on one message.
func (r *DiscordReactions) Count(ctx context.Context, channelID, messageID int64) (int, error) {
	url := fmt.Sprintf("%s/channels/%d/messages/%d", r.baseURL, channelID, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &bus.ResourceError{Source: "discord", Err: err}
	}
	req.Header.Set("Authorization", "Bot "+r.token)

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, &bus.ResourceError{Source: "discord", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &bus.ResourceError{Source: "discord", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var message struct {
		Reactions []struct {
			Count int `json:"count"`
		} `json:"reactions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&message); err != nil {
		return 0, &bus.ResourceError{Source: "discord", Err: err}
	}

	total := 0
	for _, reaction := range message.Reactions {
		total += reaction.Count
	}
	return total, nil
}
