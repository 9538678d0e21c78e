package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/casualjim/mycelia/bus"
	"github.com/casualjim/mycelia/events"
	"github.com/casualjim/mycelia/memory"
	"github.com/casualjim/mycelia/pkg/slogx"
	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
)

// Reactions reports how much social feedback a chat message gathered.
// A nil Reactions collaborator scores every message as zero.
type Reactions interface {
	Count(ctx context.Context, channelID, messageID int64) (int, error)
}

const (
	defaultNoveltyThreshold = 0.5
	defaultSocialThreshold  = 1
	defaultNoveltyWeight    = 1.0
	defaultSocialWeight     = 1.0
	defaultWindowSize       = 10
)

// Reward consumes bot chat messages and scores them on two axes:
// novelty (cosine distance to a bounded window of recent message
// embeddings) and social feedback (reaction count). Scores above their
// thresholds contribute their weight to the reward, which is published
// durably as a ledger entry.
type Reward struct {
	publisher  *bus.Publisher
	subscriber *bus.Subscriber
	embed      memory.Embedder
	reactions  Reactions

	noveltyThreshold float64
	socialThreshold  int
	noveltyWeight    float64
	socialWeight     float64
	windowSize       int

	mu     sync.Mutex
	window [][]float64
}

var (
	// NoveltyThreshold sets the minimum novelty score that earns the
	// novelty weight.
	NoveltyThreshold = opts.ForName[Reward, float64]("noveltyThreshold")

	// SocialThreshold sets the minimum reaction count that earns the
	// social weight.
	SocialThreshold = opts.ForName[Reward, int]("socialThreshold")

	// NoveltyWeight sets the reward contributed by a novel message.
	NoveltyWeight = opts.ForName[Reward, float64]("noveltyWeight")

	// SocialWeight sets the reward contributed by a well-received message.
	SocialWeight = opts.ForName[Reward, float64]("socialWeight")

	// WindowSize bounds the embedding window novelty is scored against.
	WindowSize = opts.ForName[Reward, int]("windowSize")
)

// NewReward creates a reward agent. A nil embedder defaults to the
// deterministic hash embedding; a nil reactions collaborator disables
// social scoring.
func NewReward(broker bus.Broker, embed memory.Embedder, reactions Reactions, options ...opts.Option[Reward]) (*Reward, error) {
	if embed == nil {
		embed = memory.HashEmbedder
	}
	a := &Reward{
		publisher:        bus.NewPublisher(broker),
		subscriber:       bus.NewSubscriber(broker),
		embed:            embed,
		reactions:        reactions,
		noveltyThreshold: defaultNoveltyThreshold,
		socialThreshold:  defaultSocialThreshold,
		noveltyWeight:    defaultNoveltyWeight,
		socialWeight:     defaultSocialWeight,
		windowSize:       defaultWindowSize,
	}
	if err := opts.Apply(a, options); err != nil {
		return nil, err
	}
	return a, nil
}

// Start binds the durable consumer on the bot chat subject. It returns
// false when the subscription cannot be established.
func (a *Reward) Start(ctx context.Context, durable string) bool {
	err := a.subscriber.Subscribe(ctx, events.SubjectChatBot,
		bus.HandlerFor(a.handleChat), bus.WithDurable(durable))
	if err != nil {
		slog.Error("reward agent failed to subscribe", slogx.Error(err))
		return false
	}
	return true
}

// Stop releases the agent's subscriptions. Safe to call repeatedly.
func (a *Reward) Stop() { a.subscriber.UnsubscribeAll() }

func (a *Reward) handleChat(ctx context.Context, p events.ChatMessage, d bus.Delivery) error {
	novelty := a.scoreNovelty(p.Content)
	social := a.scoreSocial(ctx, p.ChannelID, p.MessageID)

	var reward float64
	if novelty >= a.noveltyThreshold {
		reward += a.noveltyWeight
	}
	if social >= a.socialThreshold {
		reward += a.socialWeight
	}
	slog.Info("scored bot message",
		slog.Float64("novelty", novelty),
		slog.Int("social", social),
		slog.Float64("reward", reward),
	)

	out := events.RewardRecorded{
		Prompt:    p.Prompt,
		Response:  p.Content,
		Reward:    reward,
		Timestamp: strfmt.DateTime(time.Now().UTC()),
	}
	if _, err := a.publisher.PublishPayload(ctx, out, true); err != nil {
		return err
	}
	return d.Ack()
}

// scoreNovelty returns 1 minus the highest cosine similarity between
// the message and the embedding window. The first message is maximally
// novel. The message's own embedding joins the window afterwards, so
// repeating a message immediately drops its score.
func (a *Reward) scoreNovelty(text string) float64 {
	emb := a.embed(text)

	a.mu.Lock()
	defer a.mu.Unlock()

	novelty := 1.0
	if len(a.window) > 0 {
		var maxSim float64
		for _, prev := range a.window {
			if sim := memory.Cosine(emb, prev); sim > maxSim {
				maxSim = sim
			}
		}
		novelty = 1 - maxSim
	}

	a.window = append(a.window, emb)
	if len(a.window) > a.windowSize {
		a.window = a.window[len(a.window)-a.windowSize:]
	}
	return novelty
}

// scoreSocial returns the reaction count for the message, or zero when
// no collaborator is configured, the message carries no ids, or the
// lookup fails. Social scoring is advisory and never fails the handler.
func (a *Reward) scoreSocial(ctx context.Context, channelID, messageID int64) int {
	if a.reactions == nil || channelID == 0 || messageID == 0 {
		return 0
	}
	count, err := a.reactions.Count(ctx, channelID, messageID)
	if err != nil {
		slog.Warn("reaction lookup failed", slogx.Error(err))
		return 0
	}
	return count
}
