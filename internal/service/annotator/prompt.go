package annotator

import (
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/invopop/jsonschema"
)

const systemPrompt = "You are a text analytics model for customer support chats. Always respond with a single JSON object and nothing else."

const messageInstruction = `Analyze the MESSAGE and return STRICT JSON matching this schema:
%s
Rules: JSON only, no markdown. sentiment is one of SP, MP, WP, N, WN, MN, SN (strong/moderate/weak positive, neutral, weak/moderate/strong negative). Emotion values lie in [0,1]. topics are 0-5 lowercase keywords. If the message is empty, use "sentiment":"N", emotions.neutral=1.0 and empty topics.
MESSAGE:
"""%s"""`

const conversationInstruction = `Analyze the TRANSCRIPT of a support chat and return STRICT JSON matching this schema:
%s
Rules: JSON only, no markdown. summary is plain English in at most 35 words, one or two sentences, neutral tone, no personal data, do not invent facts. personality scores lie in [0,1].
TRANSCRIPT:
"""%s"""`

// 响应结构的 JSON Schema，既写入提示词也用于校验必填字段
var (
	messageJSONSchema      = reflectSchema[messageResponse]()
	conversationJSONSchema = reflectSchema[conversationResponse]()

	messageSchema      = mustMarshal(messageJSONSchema)
	conversationSchema = mustMarshal(conversationJSONSchema)
)

func buildMessagePrompt(text string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(fmt.Sprintf(messageInstruction, messageSchema, text)),
	}
}

func buildConversationPrompt(transcript string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(fmt.Sprintf(conversationInstruction, conversationSchema, transcript)),
	}
}

// reflectSchema 由响应结构体生成 JSON Schema
func reflectSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	return reflector.Reflect(v)
}

func mustMarshal(s *jsonschema.Schema) string {
	b, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("annotator: failed to build schema: %v", err))
	}
	return string(b)
}
