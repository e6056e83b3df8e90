package annotator

import (
	"context"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

// CallbackLogger 记录模型调用事件的 eino 回调处理器
type CallbackLogger struct {
	logger zerolog.Logger
	debug  bool
}

var _ callbacks.Handler = (*CallbackLogger)(nil)

// NewCallbackLogger 创建回调处理器，debug 为 false 时只记录错误
func NewCallbackLogger(logger zerolog.Logger, debug bool) *CallbackLogger {
	return &CallbackLogger{logger: logger, debug: debug}
}

func runInfo(kind string) *callbacks.RunInfo {
	return &callbacks.RunInfo{
		Name:      "annotator." + kind,
		Type:      "ChatModel",
		Component: components.ComponentOfChatModel,
	}
}

// OnStart 调用开始
func (l *CallbackLogger) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if l.debug {
		l.event(l.logger.Debug(), info).Msg("model call started")
	}
	return ctx
}

// OnEnd 调用成功
func (l *CallbackLogger) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	if l.debug {
		ev := l.event(l.logger.Debug(), info)
		if out := model.ConvCallbackOutput(output); out != nil && out.TokenUsage != nil {
			ev = ev.Int("prompt_tokens", out.TokenUsage.PromptTokens).
				Int("completion_tokens", out.TokenUsage.CompletionTokens)
		}
		ev.Msg("model call finished")
	}
	return ctx
}

// OnError 调用失败
func (l *CallbackLogger) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	l.event(l.logger.Warn(), info).Err(err).Msg("model call failed")
	return ctx
}

// OnStartWithStreamInput 标注不走流式，关闭输入流即可
func (l *CallbackLogger) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo, input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	return ctx
}

// OnEndWithStreamOutput 同上
func (l *CallbackLogger) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo, output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	output.Close()
	return ctx
}

func (l *CallbackLogger) event(ev *zerolog.Event, info *callbacks.RunInfo) *zerolog.Event {
	if info == nil {
		return ev
	}
	return ev.Str("name", info.Name).Str("component", string(info.Component))
}
