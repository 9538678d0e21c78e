package agent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/casualjim/mycelia/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReactions returns a fixed count or an error.
type fakeReactions struct {
	count int
	err   error
}

func (r fakeReactions) Count(context.Context, int64, int64) (int, error) {
	return r.count, r.err
}

func TestRewardScoring(t *testing.T) {
	ctx := context.Background()

	t.Run("first message is maximally novel", func(t *testing.T) {
		broker := &fakeBroker{}
		a, err := NewReward(broker, nil, nil)
		require.NoError(t, err)

		d := &fakeDelivery{subject: events.SubjectChatBot}
		err = a.handleChat(ctx, events.ChatMessage{Content: "something new"}, d)
		require.NoError(t, err)
		assert.Equal(t, 1, d.acks)

		require.Len(t, broker.durable, 1)
		assert.Equal(t, events.SubjectRewardRecorded, broker.durable[0].subject)
		payload, err := events.Decode[events.RewardRecorded](broker.durable[0].data)
		require.NoError(t, err)
		assert.Equal(t, "something new", payload.Response)
		assert.InDelta(t, defaultNoveltyWeight, payload.Reward, 1e-9)
	})

	t.Run("a repeated message scores zero novelty", func(t *testing.T) {
		broker := &fakeBroker{}
		a, err := NewReward(broker, nil, nil)
		require.NoError(t, err)

		first := a.scoreNovelty("echo")
		second := a.scoreNovelty("echo")
		assert.InDelta(t, 1.0, first, 1e-9)
		assert.InDelta(t, 0.0, second, 1e-9)
	})

	t.Run("the novelty window is bounded", func(t *testing.T) {
		a, err := NewReward(&fakeBroker{}, nil, nil, WindowSize(2))
		require.NoError(t, err)

		a.scoreNovelty("a")
		a.scoreNovelty("b")
		a.scoreNovelty("c")
		assert.Len(t, a.window, 2)

		// "a" fell out of the window, so repeating it is novel again
		novelty := a.scoreNovelty("a")
		assert.Greater(t, novelty, 0.0)
	})

	t.Run("social feedback adds its weight", func(t *testing.T) {
		broker := &fakeBroker{}
		a, err := NewReward(broker, nil, fakeReactions{count: 5}, SocialThreshold(3), SocialWeight(2.0))
		require.NoError(t, err)

		d := &fakeDelivery{subject: events.SubjectChatBot}
		err = a.handleChat(ctx, events.ChatMessage{Content: "popular", ChannelID: 1, MessageID: 2}, d)
		require.NoError(t, err)

		payload, err := events.Decode[events.RewardRecorded](broker.durable[0].data)
		require.NoError(t, err)
		assert.InDelta(t, defaultNoveltyWeight+2.0, payload.Reward, 1e-9)
	})

	t.Run("reaction lookup failures score zero instead of failing", func(t *testing.T) {
		broker := &fakeBroker{}
		a, err := NewReward(broker, nil, fakeReactions{err: errors.New("api down")})
		require.NoError(t, err)

		d := &fakeDelivery{subject: events.SubjectChatBot}
		err = a.handleChat(ctx, events.ChatMessage{Content: "msg", ChannelID: 1, MessageID: 2}, d)
		require.NoError(t, err)
		assert.Equal(t, 1, d.acks)
	})

	t.Run("messages without ids skip social scoring", func(t *testing.T) {
		a, err := NewReward(&fakeBroker{}, nil, fakeReactions{count: 99}, SocialThreshold(1))
		require.NoError(t, err)
		assert.Zero(t, a.scoreSocial(ctx, 0, 0))
	})
}

func TestDiscordReactions(t *testing.T) {
	t.Run("sums reaction counts", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/channels/10/messages/20", r.URL.Path)
			assert.Equal(t, "Bot token", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"reactions": [{"count": 2}, {"count": 3}]}`))
		}))
		defer srv.Close()

		r := NewDiscordReactions("token")
		r.baseURL = srv.URL

		count, err := r.Count(context.Background(), 10, 20)
		require.NoError(t, err)
		assert.Equal(t, 5, count)
	})

	t.Run("non-200 is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		r := NewDiscordReactions("token")
		r.baseURL = srv.URL

		_, err := r.Count(context.Background(), 10, 20)
		require.Error(t, err)
	})

	t.Run("no reactions means zero", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		r := NewDiscordReactions("token")
		r.baseURL = srv.URL

		count, err := r.Count(context.Background(), 10, 20)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}
