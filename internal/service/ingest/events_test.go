package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashwinyue/chat-insight/internal/model"
)

// ========== DecodeBatches 测试 ==========

func TestDecodeBatches(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantNS  []string
		wantErr bool
	}{
		{
			name:   "array",
			body:   `[{"user_ns":"a","chat_history":[]},{"user_ns":" b ","chat_history":[]}]`,
			wantNS: []string{"a", "b"},
		},
		{
			name:   "single object",
			body:   `{"user_ns":"c","chat_history":[{"type":"in","msg_type":"text","payload":{"text":"hi"},"ts":1}]}`,
			wantNS: []string{"c"},
		},
		{name: "empty body", body: "  ", wantErr: true},
		{name: "not json", body: "user_ns=a", wantErr: true},
		{name: "missing namespace", body: `{"chat_history":[]}`, wantErr: true},
		{name: "blank namespace", body: `{"user_ns":"  ","chat_history":[]}`, wantErr: true},
		{name: "unknown direction", body: `{"user_ns":"a","chat_history":[{"type":"bot","ts":1}]}`, wantErr: true},
		{name: "unknown kind", body: `{"user_ns":"a","chat_history":[{"type":"in","msg_type":"sticker","ts":1}]}`, wantErr: true},
		{name: "negative ts", body: `{"user_ns":"a","chat_history":[{"type":"in","ts":-1}]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches, err := DecodeBatches([]byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedBatch)
				return
			}
			require.NoError(t, err)
			var got []string
			for _, b := range batches {
				got = append(got, b.Namespace)
			}
			assert.Equal(t, tt.wantNS, got)
		})
	}
}

func TestDecodeBatches_FlexiblePayload(t *testing.T) {
	body := `{"user_ns":"a","chat_history":[
		{"type":"agent","msg_type":"text","payload":{"text":"hi"},"agent_id":12,"ts":1.5},
		{"type":"agent","msg_type":"text","payload":"just a string","agent_id":"x-1","ts":2},
		{"type":"in","msg_type":"media","payload":{"url":"https://cdn/img.png"},"agent_id":null,"ts":3}
	]}`

	batches, err := DecodeBatches([]byte(body))
	require.NoError(t, err)
	events := batches[0].Events
	require.Len(t, events, 3)

	assert.Equal(t, FlexibleID("12"), events[0].AgentID)
	assert.Equal(t, FlexibleID("x-1"), events[1].AgentID)
	assert.Equal(t, FlexibleID(""), events[2].AgentID)
	assert.Equal(t, "", ExtractText(&events[1]))
	assert.Equal(t, "https://cdn/img.png", ExtractText(&events[2]))

	ts := events[0].Time()
	require.NotNil(t, ts)
	assert.True(t, ts.Equal(time.Unix(1, 500000000)))
}

func TestDecodeBatches_PostbackNullTitle(t *testing.T) {
	body := `{"user_ns":"a","chat_history":[
		{"type":"in","msg_type":"postback","payload":{"title":null,"text":"yes"},"ts":1},
		{"type":"in","msg_type":"postback","payload":{"text":"yes"},"ts":2},
		{"type":"in","msg_type":"text","payload":{"title":null,"text":"plain"},"ts":3}
	]}`

	batches, err := DecodeBatches([]byte(body))
	require.NoError(t, err)
	events := batches[0].Events
	require.Len(t, events, 3)

	// 带 title 键的 postback 只看 title，null 视为空白
	require.NotNil(t, events[0].Payload.Title)
	assert.Equal(t, "", ExtractText(&events[0]))
	assert.Nil(t, events[1].Payload.Title)
	assert.Equal(t, "yes", ExtractText(&events[1]))
	assert.Equal(t, "plain", ExtractText(&events[2]))
}

// ========== ExtractText 测试 ==========

func TestExtractText(t *testing.T) {
	title := "  Yes please "
	empty := ""
	tests := []struct {
		name string
		ev   RawEvent
		want string
	}{
		{name: "text", ev: RawEvent{MsgType: KindText, Payload: Payload{Text: "  hello  "}}, want: "hello"},
		{name: "postback title", ev: RawEvent{MsgType: KindPostback, Payload: Payload{Text: "yes", Title: &title}}, want: "Yes please"},
		{name: "postback empty title", ev: RawEvent{MsgType: KindPostback, Payload: Payload{Text: "yes", Title: &empty}}, want: ""},
		{name: "postback without title", ev: RawEvent{MsgType: KindPostback, Payload: Payload{Text: "yes"}}, want: "yes"},
		{name: "url fallback", ev: RawEvent{MsgType: KindMedia, Payload: Payload{URL: " https://x "}}, want: "https://x"},
		{name: "blank", ev: RawEvent{MsgType: KindText, Payload: Payload{Text: "\t \n"}}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractText(&tt.ev))
		})
	}
}

// ========== 排序与批次属性测试 ==========

func TestSortEvents_StableOnTies(t *testing.T) {
	events := []RawEvent{
		textEvent(DirectionIn, 3, "c"),
		textEvent(DirectionIn, 1, "a1"),
		textEvent(DirectionAgent, 2, "b"),
		textEvent(DirectionIn, 1, "a2"),
		textEvent(DirectionIn, 1, "a3"),
	}

	sorted := SortEvents(events)

	var got []string
	for i := range sorted {
		got = append(got, sorted[i].Payload.Text)
	}
	assert.Equal(t, []string{"a1", "a2", "a3", "b", "c"}, got)
	// 不修改入参
	assert.Equal(t, "c", events[0].Payload.Text)
}

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, model.ConversationStatusSolved, initialStatus([]RawEvent{
		textEvent(DirectionIn, 1, "hi"),
		textEvent(DirectionAgent, 2, "I will CLOSE this now"),
	}))
	assert.Equal(t, model.ConversationStatusInProgress, initialStatus([]RawEvent{
		textEvent(DirectionIn, 1, "hi"),
	}))
}

func TestBounds(t *testing.T) {
	start, end := bounds([]RawEvent{
		textEvent(DirectionIn, 0, "no ts"),
		textEvent(DirectionIn, 20, "b"),
		textEvent(DirectionIn, 10, "a"),
	})
	require.NotNil(t, start)
	require.NotNil(t, end)
	assert.Equal(t, int64(10), start.Unix())
	assert.Equal(t, int64(20), end.Unix())

	start, end = bounds([]RawEvent{textEvent(DirectionIn, 0, "x")})
	assert.Nil(t, start)
	assert.Nil(t, end)
}

func TestAgentName(t *testing.T) {
	ev := RawEvent{Type: DirectionAgent, AgentID: "9"}
	assert.Equal(t, "Agent-9", ev.AgentName())
	ev.Username = " Eve "
	assert.Equal(t, "Eve", ev.AgentName())
}
