package annotator

import (
	"bytes"
	"context"
	"errors"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestCallbackLogger(t *testing.T) {
	ctx := context.Background()

	t.Run("quiet without debug", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewCallbackLogger(zerolog.New(&buf), false)

		l.OnStart(ctx, runInfo("message"), nil)
		l.OnEnd(ctx, runInfo("message"), nil)
		assert.Empty(t, buf.String())

		l.OnError(ctx, runInfo("message"), errors.New("upstream 502"))
		assert.Contains(t, buf.String(), "upstream 502")
		assert.Contains(t, buf.String(), `"name":"annotator.message"`)
	})

	t.Run("debug records token usage", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewCallbackLogger(zerolog.New(&buf), true)

		l.OnStart(ctx, runInfo("conversation"), nil)
		l.OnEnd(ctx, runInfo("conversation"), &einomodel.CallbackOutput{
			TokenUsage: &einomodel.TokenUsage{PromptTokens: 120, CompletionTokens: 30, TotalTokens: 150},
		})

		out := buf.String()
		assert.Contains(t, out, "model call started")
		assert.Contains(t, out, `"prompt_tokens":120`)
		assert.Contains(t, out, `"completion_tokens":30`)
		assert.Contains(t, out, `"component":"ChatModel"`)
	})

	t.Run("nil info", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewCallbackLogger(zerolog.New(&buf), true)
		l.OnError(ctx, nil, errors.New("boom"))
		assert.Contains(t, buf.String(), "boom")
	})
}
