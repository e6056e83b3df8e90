package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ashwinyue/chat-insight/internal/metrics"
	"github.com/ashwinyue/chat-insight/internal/model"
	"github.com/ashwinyue/chat-insight/internal/repository"
	"github.com/ashwinyue/chat-insight/internal/service/annotator"
	"github.com/ashwinyue/chat-insight/internal/service/event"
)

// errSkipEvent 单条事件数据错误，跳过该事件继续处理批次
var errSkipEvent = errors.New("skip event")

// Options 管道参数
type Options struct {
	EmotionThreshold float64
	Concurrency      int
}

// Pipeline 摄取管道
type Pipeline struct {
	store     repository.Store
	annotator annotator.Annotator
	language  annotator.LanguageDetector
	locker    Locker
	publisher event.Publisher
	opts      Options
	now       func() time.Time
}

// NewPipeline 创建摄取管道
// language、locker、publisher 可以为 nil
func NewPipeline(store repository.Store, ann annotator.Annotator, language annotator.LanguageDetector,
	locker Locker, publisher event.Publisher, opts Options) *Pipeline {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if publisher == nil {
		publisher = event.NopPublisher{}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Pipeline{
		store:     store,
		annotator: ann,
		language:  language,
		locker:    locker,
		publisher: publisher,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// NamespaceReport 单个命名空间的处理结果
type NamespaceReport struct {
	Namespace     string `json:"namespace"`
	Conversations []uint `json:"conversations"`
	Ingested      int    `json:"ingested"`
	Skipped       int    `json:"skipped"`
	Swept         int64  `json:"swept"`
	Empty         bool   `json:"empty,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Report 批量摄取结果
type Report struct {
	Namespaces []NamespaceReport `json:"namespaces"`
	Ingested   int               `json:"ingested"`
	Skipped    int               `json:"skipped"`
	Failed     int               `json:"failed"`
}

// Ingest 并发处理多个命名空间
// 先校验全部批次，任何一个不合法则整体拒绝且不写库
// 单个命名空间失败只记录在报告中，不影响其它命名空间
func (p *Pipeline) Ingest(ctx context.Context, batches []Batch) (*Report, error) {
	for i := range batches {
		if err := ValidateBatch(&batches[i]); err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
	}

	results := make([]NamespaceReport, len(batches))
	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i := range batches {
		g.Go(func() error {
			r, err := p.IngestNamespace(ctx, batches[i])
			if err != nil {
				log.Error().Err(err).Str("namespace", batches[i].Namespace).Msg("namespace ingestion abandoned")
				if r == nil {
					r = &NamespaceReport{Namespace: batches[i].Namespace}
				}
				r.Error = err.Error()
			}
			results[i] = *r
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{Namespaces: results}
	for _, r := range results {
		report.Ingested += r.Ingested
		report.Skipped += r.Skipped
		if r.Error != "" {
			report.Failed++
		}
	}
	return report, nil
}

// IngestNamespace 处理一个命名空间的事件批次
// 同一命名空间同一时刻只有一个写者；每个事件一个事务
func (p *Pipeline) IngestNamespace(ctx context.Context, batch Batch) (*NamespaceReport, error) {
	if err := ValidateBatch(&batch); err != nil {
		return nil, err
	}

	report := &NamespaceReport{Namespace: batch.Namespace, Conversations: []uint{}}
	events := SortEvents(batch.Events)
	if !hasText(events) {
		report.Empty = true
		metrics.NamespacesTotal.WithLabelValues("empty").Inc()
		log.Info().Str("namespace", batch.Namespace).Msg("skipped namespace without messages")
		return report, nil
	}

	err := p.locker.WithLock(ctx, NamespaceKey(batch.Namespace), func(ctx context.Context) error {
		return p.ingestLocked(ctx, batch.Namespace, events, report)
	})
	if err != nil {
		metrics.NamespacesTotal.WithLabelValues("failed").Inc()
		return report, err
	}
	metrics.NamespacesTotal.WithLabelValues("ok").Inc()
	return report, nil
}

func (p *Pipeline) ingestLocked(ctx context.Context, namespace string, events []RawEvent, report *NamespaceReport) error {
	// 客户与首个会话随第一个落库的事件在同一事务中创建
	start, end := bounds(events)
	status := initialStatus(events)
	cur := &cursor{
		clientID: namespace,
		status:   status,
		pending: &pendingConversation{
			client: model.Client{ClientID: namespace, Name: clientName(namespace, events)},
			conversation: model.Conversation{
				ClientID:  namespace,
				StartedAt: start,
				EndedAt:   end,
				Status:    status,
			},
		},
	}

	for i := range events {
		in := fromRaw(&events[i])
		var next *inbound
		if i+1 < len(events) {
			n := fromRaw(&events[i+1])
			next = &n
		}

		out, err := p.processEvent(ctx, cur, in, next)
		if errors.Is(err, errSkipEvent) {
			report.Skipped++
			metrics.EventsTotal.WithLabelValues("skipped").Inc()
			log.Debug().Err(err).Str("namespace", namespace).Int("index", i).Msg("event skipped")
			continue
		}
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		report.Ingested++
		metrics.EventsTotal.WithLabelValues("ingested").Inc()
		if out.opened != nil {
			report.Conversations = append(report.Conversations, out.opened.ConversationID)
		}
		if out.successor != nil {
			report.Conversations = append(report.Conversations, out.successor.ConversationID)
		}
	}

	swept, err := p.store.DeleteBlankMessages(ctx)
	if err != nil {
		return fmt.Errorf("failed to sweep blank messages: %w", err)
	}
	report.Swept = swept
	metrics.BlankMessagesSwept.Add(float64(swept))

	log.Info().
		Str("namespace", namespace).
		Int("ingested", report.Ingested).
		Int("skipped", report.Skipped).
		Int("conversations", len(report.Conversations)).
		Msg("namespace ingested")
	return nil
}

// cursor 当前会话游标
// pending 非空时会话尚未落库，conversationID 为 0
type cursor struct {
	clientID       string
	conversationID uint
	status         string
	pending        *pendingConversation
}

type pendingConversation struct {
	client       model.Client
	conversation model.Conversation
}

// inbound 归一化后的单条事件
type inbound struct {
	direction string
	kind      string
	text      string
	agentID   string
	agentName string
	timestamp *time.Time
}

func fromRaw(ev *RawEvent) inbound {
	in := inbound{
		direction: ev.Type,
		kind:      ev.MsgType,
		text:      ExtractText(ev),
		timestamp: ev.Time(),
	}
	if ev.Type == DirectionAgent {
		in.agentID = string(ev.AgentID)
		in.agentName = ev.AgentName()
	}
	return in
}

// outcome 单条事件的处理结果
type outcome struct {
	message    *model.Message
	annotation *annotator.MessageAnnotation
	summary    *annotator.ConversationAnnotation
	split      bool
	opened     *model.Conversation
	successor  *model.Conversation
}

// processEvent 处理单条事件
// 模型调用在事务外完成，消息及其全部标注在一个事务内提交
func (p *Pipeline) processEvent(ctx context.Context, cur *cursor, in inbound, next *inbound) (*outcome, error) {
	if in.text == "" {
		return nil, fmt.Errorf("%w: blank text", errSkipEvent)
	}
	if in.direction == DirectionAgent && in.agentID == "" {
		return nil, fmt.Errorf("%w: agent event without agent_id", errSkipEvent)
	}

	out := &outcome{}
	language := p.detectLanguage(in.text)

	if in.direction == DirectionIn && in.kind == KindText {
		ann := p.annotator.AnnotateMessage(ctx, in.text)
		out.annotation = &ann
	}

	status := cur.status
	if strings.Contains(in.text, ClosePhrase) && next != nil {
		status = model.ConversationStatusSolved
		out.split = next.kind != KindPostback
	}

	if status == model.ConversationStatusSolved {
		turns, err := p.clientTurns(ctx, cur.conversationID, in)
		if err != nil {
			return nil, err
		}
		summary := p.annotator.AnnotateConversation(ctx, turns)
		out.summary = &summary
	}

	err := p.store.Transaction(ctx, func(tx repository.Store) error {
		out.opened, out.successor = nil, nil
		convID := cur.conversationID
		if pc := cur.pending; pc != nil {
			client := pc.client
			if _, err := tx.EnsureClient(ctx, &client); err != nil {
				return err
			}
			conv := pc.conversation
			if err := tx.CreateConversation(ctx, &conv); err != nil {
				return fmt.Errorf("failed to create conversation: %w", err)
			}
			out.opened = &conv
			convID = conv.ConversationID
		}

		msg := &model.Message{
			Content:        in.text,
			Language:       language,
			Timestamp:      in.timestamp,
			ConversationID: convID,
		}
		switch in.direction {
		case DirectionIn:
			clientID := cur.clientID
			msg.ClientID = &clientID
		case DirectionAgent:
			agent, err := tx.EnsureAgent(ctx, &model.Agent{AgentID: in.agentID, Name: in.agentName})
			if err != nil {
				return err
			}
			msg.AgentID = &agent.AgentID
		}
		if err := tx.CreateMessage(ctx, msg); err != nil {
			return fmt.Errorf("failed to create message: %w", err)
		}
		out.message = msg

		if ann := out.annotation; ann != nil {
			if err := tx.UpsertSentiment(ctx, msg.MessageID, ann.Sentiment); err != nil {
				return fmt.Errorf("failed to save sentiment: %w", err)
			}
			present := annotator.PresentEmotions(ann.Emotions, p.opts.EmotionThreshold)
			if err := tx.AddEmotionPresence(ctx, msg.MessageID, present); err != nil {
				return fmt.Errorf("failed to save emotions: %w", err)
			}
			if err := tx.AddTopics(ctx, convID, ann.Topics); err != nil {
				return err
			}
		}

		if out.split {
			endedAt := p.eventTime(in)
			if err := tx.EndConversation(ctx, convID, endedAt); err != nil {
				return fmt.Errorf("failed to end conversation: %w", err)
			}
		} else if status == model.ConversationStatusSolved && cur.status != model.ConversationStatusSolved {
			if err := tx.UpdateConversationStatus(ctx, convID, status); err != nil {
				return fmt.Errorf("failed to update conversation status: %w", err)
			}
		}

		if out.summary != nil {
			if err := SaveConversationAnnotation(ctx, tx, cur.clientID, convID, out.summary, p.now()); err != nil {
				return err
			}
		}

		if out.split {
			startedAt := p.eventTime(in)
			successor := &model.Conversation{
				ClientID:  cur.clientID,
				StartedAt: &startedAt,
				Status:    model.ConversationStatusInProgress,
			}
			if err := tx.CreateConversation(ctx, successor); err != nil {
				return fmt.Errorf("failed to open successor conversation: %w", err)
			}
			out.successor = successor
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.afterCommit(ctx, cur, status, out)
	return out, nil
}

// afterCommit 推进游标并发布事件
func (p *Pipeline) afterCommit(ctx context.Context, cur *cursor, status string, out *outcome) {
	if out.opened != nil {
		cur.pending = nil
		cur.conversationID = out.opened.ConversationID
		p.publish(ctx, event.ConversationOpened, cur.clientID, cur.conversationID, out.opened.Status)
	}

	evt := event.New(event.MessageIngested, cur.clientID, cur.conversationID)
	evt.MessageID = out.message.MessageID
	p.publisher.Publish(ctx, evt)

	becameSolved := status == model.ConversationStatusSolved && cur.status != model.ConversationStatusSolved
	if becameSolved {
		p.publish(ctx, event.ConversationSolved, cur.clientID, cur.conversationID, status)
	}
	if out.summary != nil {
		p.publish(ctx, event.SummaryUpdated, cur.clientID, cur.conversationID, status)
	}

	if successor := out.successor; successor != nil {
		metrics.ConversationSplits.Inc()
		split := event.New(event.ConversationSplit, cur.clientID, cur.conversationID)
		split.Metadata = map[string]interface{}{"successor_id": successor.ConversationID}
		p.publisher.Publish(ctx, split)
		p.publish(ctx, event.ConversationOpened, cur.clientID, successor.ConversationID, successor.Status)

		cur.conversationID = successor.ConversationID
		cur.status = successor.Status
		return
	}
	cur.status = status
}

// clientTurns 会话中客户消息的对话轮次，包含尚未写入的当前消息
func (p *Pipeline) clientTurns(ctx context.Context, conversationID uint, in inbound) ([]annotator.Turn, error) {
	var msgs []*model.Message
	if conversationID != 0 {
		var err error
		msgs, err = p.store.ListClientMessages(ctx, conversationID)
		if err != nil {
			return nil, fmt.Errorf("failed to load client messages: %w", err)
		}
	}
	turns := make([]annotator.Turn, 0, len(msgs)+1)
	for _, m := range msgs {
		turns = append(turns, annotator.Turn{Role: annotator.RoleUser, Text: m.Content})
	}
	if in.direction == DirectionIn {
		turns = append(turns, annotator.Turn{Role: annotator.RoleUser, Text: in.text})
	}
	return turns, nil
}

func (p *Pipeline) detectLanguage(text string) string {
	if p.language == nil {
		return annotator.DefaultLanguage
	}
	return p.language.Detect(text)
}

func (p *Pipeline) eventTime(in inbound) time.Time {
	if in.timestamp != nil {
		return *in.timestamp
	}
	return p.now()
}

func (p *Pipeline) publish(ctx context.Context, t event.EventType, clientID string, conversationID uint, status string) {
	evt := event.New(t, clientID, conversationID)
	evt.Status = status
	p.publisher.Publish(ctx, evt)
}

// SaveConversationAnnotation 替换会话摘要与客户画像
func SaveConversationAnnotation(ctx context.Context, tx repository.Store, clientID string, conversationID uint,
	ann *annotator.ConversationAnnotation, now time.Time) error {
	if err := tx.UpsertSummary(ctx, conversationID, ann.Summary); err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	profile := &model.ClientProfile{
		ClientID:          clientID,
		Openness:          ann.Personality.Openness,
		Conscientiousness: ann.Personality.Conscientiousness,
		Extraversion:      ann.Personality.Extraversion,
		Agreeableness:     ann.Personality.Agreeableness,
		Neuroticism:       ann.Personality.Neuroticism,
		LastUpdatedAt:     now,
	}
	if err := tx.UpsertProfile(ctx, profile); err != nil {
		return fmt.Errorf("failed to save client profile: %w", err)
	}
	return nil
}
