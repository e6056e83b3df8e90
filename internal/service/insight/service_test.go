package insight

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashwinyue/chat-insight/internal/model"
	"github.com/ashwinyue/chat-insight/internal/repository"
	"github.com/ashwinyue/chat-insight/internal/testutil"
)

// seed 两个客户：一个已解决的会话带标注和摘要，一个进行中的空会话
func seed(t *testing.T) *repository.Repositories {
	t.Helper()
	repos := repository.NewRepositories(testutil.NewTestDB(t))
	store := repos.Store
	ctx := context.Background()

	dob := time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateClient(ctx, &model.Client{ClientID: "c1", Name: "Alice", DateOfBirth: &dob}))
	require.NoError(t, store.CreateClient(ctx, &model.Client{ClientID: "c2", Name: "Bob"}))
	_, err := store.EnsureAgent(ctx, &model.Agent{AgentID: "a1", Name: "Dana"})
	require.NoError(t, err)

	started := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("MYT", 8*3600))
	conv := &model.Conversation{ClientID: "c1", StartedAt: &started, Status: model.ConversationStatusSolved}
	require.NoError(t, store.CreateConversation(ctx, conv))
	require.NoError(t, store.CreateConversation(ctx, &model.Conversation{ClientID: "c2"}))

	c1, a1 := "c1", "a1"
	ts := func(min int) *time.Time {
		v := time.Date(2024, 1, 2, 3, min, 0, 0, time.UTC)
		return &v
	}
	m1 := &model.Message{Content: "my bill is wrong", ClientID: &c1, ConversationID: conv.ConversationID, Timestamp: ts(10)}
	m2 := &model.Message{Content: "let me fix that", AgentID: &a1, ConversationID: conv.ConversationID, Timestamp: ts(11)}
	m3 := &model.Message{Content: "still wrong!", ClientID: &c1, ConversationID: conv.ConversationID, Timestamp: ts(12)}
	for _, m := range []*model.Message{m1, m2, m3} {
		require.NoError(t, store.CreateMessage(ctx, m))
	}
	require.NoError(t, store.UpsertSentiment(ctx, m1.MessageID, model.SentimentWeakNegative))
	require.NoError(t, store.UpsertSentiment(ctx, m3.MessageID, model.SentimentStrongNegative))
	require.NoError(t, store.AddEmotionPresence(ctx, m1.MessageID, []string{model.EmotionNeutral, model.EmotionAnger}))
	require.NoError(t, store.AddEmotionPresence(ctx, m3.MessageID, []string{model.EmotionAnger}))
	require.NoError(t, store.AddTopics(ctx, conv.ConversationID, []string{"billing", "refund"}))
	require.NoError(t, store.UpsertSummary(ctx, conv.ConversationID, "Billing error reported."))
	require.NoError(t, store.UpsertProfile(ctx, &model.ClientProfile{ClientID: "c1", Openness: 0.3}))
	return repos
}

func TestListConversations(t *testing.T) {
	repos := seed(t)
	svc := NewService(repos.Insight, nil)

	views, err := svc.ListConversations(context.Background(), Filter{Status: model.ConversationStatusSolved})
	require.NoError(t, err)
	require.Len(t, views, 1)

	v := views[0]
	assert.Equal(t, "CONV-1", v.ID)
	assert.Equal(t, "c1", v.TenantID)
	assert.Equal(t, []string{"a1"}, v.AgentIDs)
	assert.Equal(t, model.ConversationStatusSolved, v.Status)
	assert.Equal(t, AggregateStrongNegative, v.Sentiment)
	assert.Equal(t, []string{model.EmotionAnger, model.EmotionNeutral}, v.Emotions)
	assert.Equal(t, []string{"billing", "refund"}, v.Topics)
	require.NotNil(t, v.Summary)
	assert.Equal(t, "Billing error reported.", *v.Summary)
	require.NotNil(t, v.StartedAt)
	assert.Equal(t, "2024-01-02T03:10:00Z", *v.StartedAt)
	assert.Equal(t, "2024-01-02T03:12:00Z", *v.LastUpdated)

	require.Len(t, v.Messages, 3)
	assert.Equal(t, SenderTenant, v.Messages[0].SenderType)
	assert.Equal(t, model.SenderAgent, v.Messages[1].SenderType)
	assert.Nil(t, v.Messages[1].Sentiment)
	require.NotNil(t, v.Messages[2].Sentiment)
	assert.Equal(t, -3, *v.Messages[2].Sentiment)

	open, err := svc.ListConversations(context.Background(), Filter{ClientID: "c2"})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, StatusInProgressLabel, open[0].Status)
	assert.Equal(t, AggregateNeutral, open[0].Sentiment)
	assert.Empty(t, open[0].Messages)
}

func TestKPIs(t *testing.T) {
	svc := NewService(seed(t).Insight, nil)
	k, err := svc.KPIs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &KPIs{Total: 2, InProgress: 1, Solved: 1, Negative: 2, Urgent: 0}, k)
}

func TestTenantsAndAgents(t *testing.T) {
	svc := NewService(seed(t).Insight, nil)
	svc.now = func() time.Time { return time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC) }

	tenants, err := svc.Tenants(context.Background())
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	require.NotNil(t, tenants[0].Age)
	// 生日前一天
	assert.Equal(t, 33, *tenants[0].Age)
	assert.Equal(t, DefaultProperty, tenants[0].Property)
	require.NotNil(t, tenants[0].BigFivePersonality)
	assert.Equal(t, 0.3, tenants[0].BigFivePersonality.Openness)
	assert.Nil(t, tenants[1].Age)
	assert.Nil(t, tenants[1].BigFivePersonality)

	agents, err := svc.Agents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []AgentView{{ID: "a1", Name: "Dana", Role: DefaultAgentRole}}, agents)
}

func TestDistributionsAndTopics(t *testing.T) {
	svc := NewService(seed(t).Insight, nil)
	ctx := context.Background()

	sentiments, err := svc.SentimentDistribution(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []SentimentShare{
		{ServiceArea: DefaultServiceArea, Sentiment: model.SentimentStrongNegative, Count: 1},
		{ServiceArea: DefaultServiceArea, Sentiment: model.SentimentWeakNegative, Count: 1},
	}, sentiments)

	emotions, err := svc.EmotionDistribution(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []EmotionShare{
		{ServiceArea: DefaultServiceArea, Emotion: model.EmotionAnger, Count: 2},
		{ServiceArea: DefaultServiceArea, Emotion: model.EmotionNeutral, Count: 1},
	}, emotions)

	topics, err := svc.TrendingTopics(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []TopicCount{{Topic: "billing", Count: 1}}, topics)

	digest, err := svc.SummaryDigest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Billing error reported.", digest.Summary)
}

func TestCache_InvalidatedByEvents(t *testing.T) {
	repos := seed(t)
	cache, err := NewMemoryCache(16, time.Minute)
	require.NoError(t, err)
	svc := NewService(repos.Insight, cache)
	ctx := context.Background()

	k, err := svc.KPIs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), k.Total)

	require.NoError(t, repos.Store.CreateConversation(ctx, &model.Conversation{ClientID: "c2"}))
	k, err = svc.KPIs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), k.Total, "served from cache")

	require.NoError(t, svc.Handle(ctx, nil))
	k, err = svc.KPIs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), k.Total)
}

func TestMemoryCache_Expires(t *testing.T) {
	cache, err := NewMemoryCache(4, 10*time.Millisecond)
	require.NoError(t, err)
	ctx := context.Background()

	cache.Set(ctx, "k", []byte("v"))
	got, ok := cache.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	time.Sleep(20 * time.Millisecond)
	_, ok = cache.Get(ctx, "k")
	assert.False(t, ok)
}

// ========== 投影函数测试 ==========

func TestAggregateSentiment(t *testing.T) {
	tests := []struct {
		scores []int
		want   string
	}{
		{nil, AggregateNeutral},
		{[]int{3, 2}, AggregateStrongPositive},
		{[]int{1, 0}, AggregateModeratePositive},
		{[]int{0, 0}, AggregateNeutral},
		{[]int{-1, 0}, AggregateModerateNegative},
		{[]int{-1, -1}, AggregateModerateNegative},
		{[]int{-3, -1}, AggregateStrongNegative},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AggregateSentiment(tt.scores), "%v", tt.scores)
	}
}

func TestFormatTime(t *testing.T) {
	assert.Nil(t, FormatTime(nil))
	ts := time.Date(2024, 3, 1, 8, 0, 0, 0, time.FixedZone("MYT", 8*3600))
	got := FormatTime(&ts)
	require.NotNil(t, got)
	assert.Equal(t, "2024-03-01T00:00:00Z", *got)
}
