// Package search 将会话摘要与话题写入 Elasticsearch 并提供全文检索
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rs/zerolog/log"

	"github.com/ashwinyue/chat-insight/internal/config"
	"github.com/ashwinyue/chat-insight/internal/model"
	"github.com/ashwinyue/chat-insight/internal/service/event"
)

const defaultSize = 10

// ConversationSource 读取待索引的会话
type ConversationSource interface {
	GetConversation(ctx context.Context, id uint) (*model.Conversation, error)
}

// Document 索引文档
type Document struct {
	ConversationID uint     `json:"conversation_id"`
	ClientID       string   `json:"client_id"`
	Status         string   `json:"status"`
	Summary        string   `json:"summary"`
	Topics         []string `json:"topics"`
}

// Hit 检索结果
type Hit struct {
	Document
	Score float64 `json:"score"`
}

// Query 检索条件
type Query struct {
	Text     string `form:"q" binding:"required"`
	ClientID string `form:"client_id"`
	Status   string `form:"status" binding:"omitempty,oneof=in_progress solved"`
	Size     int    `form:"size" binding:"omitempty,min=1,max=100"`
}

// Service 会话检索
type Service struct {
	client *elasticsearch.Client
	index  string
	source ConversationSource
}

// NewClient 创建 ES 客户端
func NewClient(cfg *config.ElasticConfig) (*elasticsearch.Client, error) {
	return elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.Host},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
}

// NewService 创建检索服务，索引名为 <prefix>_conversations
func NewService(client *elasticsearch.Client, prefix string, source ConversationSource) *Service {
	return &Service{
		client: client,
		index:  IndexName(prefix),
		source: source,
	}
}

// IndexName 会话索引名
func IndexName(prefix string) string {
	if prefix == "" {
		return "conversations"
	}
	return prefix + "_conversations"
}

// EnsureIndex 索引不存在时创建
func (s *Service) EnsureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"conversation_id": map[string]interface{}{"type": "long"},
				"client_id":       map[string]interface{}{"type": "keyword"},
				"status":          map[string]interface{}{"type": "keyword"},
				"summary":         map[string]interface{}{"type": "text"},
				"topics": map[string]interface{}{
					"type":   "text",
					"fields": map[string]interface{}{"raw": map[string]interface{}{"type": "keyword"}},
				},
			},
		},
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	req := esapi.IndicesCreateRequest{
		Index: s.index,
		Body:  bytes.NewReader(body),
	}
	res, err = req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()
	// 并发创建时可能已被其他实例建好
	if res.IsError() && !strings.Contains(res.String(), "resource_already_exists_exception") {
		return fmt.Errorf("failed to create index: %s", res.String())
	}
	return nil
}

// Index 写入或覆盖一个会话文档
func (s *Service) Index(ctx context.Context, doc *Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	req := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: strconv.FormatUint(uint64(doc.ConversationID), 10),
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("failed to index conversation %d: %w", doc.ConversationID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch error: %s", res.String())
	}
	return nil
}

// Handle 摘要或状态变化时重新索引会话
func (s *Service) Handle(ctx context.Context, evt *event.Event) error {
	if evt == nil || evt.ConversationID == 0 {
		return nil
	}
	switch evt.Type {
	case event.SummaryUpdated, event.ConversationSolved, event.ConversationReopened:
	default:
		return nil
	}

	conv, err := s.source.GetConversation(ctx, evt.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to load conversation %d: %w", evt.ConversationID, err)
	}
	if err := s.Index(ctx, NewDocument(conv)); err != nil {
		return err
	}
	log.Debug().Uint("conversation_id", conv.ConversationID).Str("event", string(evt.Type)).Msg("conversation indexed")
	return nil
}

// NewDocument 由会话构造索引文档
func NewDocument(conv *model.Conversation) *Document {
	doc := &Document{
		ConversationID: conv.ConversationID,
		ClientID:       conv.ClientID,
		Status:         conv.Status,
		Topics:         make([]string, 0, len(conv.Topics)),
	}
	if conv.Summary != nil {
		doc.Summary = conv.Summary.SummaryText
	}
	for _, t := range conv.Topics {
		doc.Topics = append(doc.Topics, t.Topic)
	}
	return doc
}

// Search 在摘要和话题上做 multi_match 检索
func (s *Service) Search(ctx context.Context, q Query) ([]Hit, error) {
	size := q.Size
	if size <= 0 {
		size = defaultSize
	}

	var filters []interface{}
	if q.ClientID != "" {
		filters = append(filters, map[string]interface{}{"term": map[string]interface{}{"client_id": q.ClientID}})
	}
	if q.Status != "" {
		filters = append(filters, map[string]interface{}{"term": map[string]interface{}{"status": q.Status}})
	}
	boolQuery := map[string]interface{}{
		"must": []interface{}{
			map[string]interface{}{
				"multi_match": map[string]interface{}{
					"query":  q.Text,
					"fields": []string{"summary^2", "topics"},
				},
			},
		},
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	body, err := json.Marshal(map[string]interface{}{
		"size":  size,
		"query": map[string]interface{}{"bool": boolQuery},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch error: %s", res.String())
	}

	var response struct {
		Hits struct {
			Hits []struct {
				Score  float64  `json:"_score"`
				Source Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	hits := make([]Hit, 0, len(response.Hits.Hits))
	for _, h := range response.Hits.Hits {
		hits = append(hits, Hit{Document: h.Source, Score: h.Score})
	}
	return hits, nil
}
