// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"assistant-console-go/internal/cache"
	"assistant-console-go/internal/model"
	"assistant-console-go/internal/repository"
	"assistant-console-go/pkg/events"
	"assistant-console-go/pkg/log"

	"github.com/go-playground/validator/v10"
)

// minNameLength 是去除首尾空白后助手名称的最小长度。
const minNameLength = 3

// ValidationError 表示输入在到达数据源之前就被拒绝。
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// EventPublisher 发布已提交的助手变更，kafka.Producer 满足该接口。
type EventPublisher interface {
	Publish(ctx context.Context, event events.AssistantEvent) error
}

// AssistantService 定义了助手管理的业务操作。
type AssistantService interface {
	List(ctx context.Context) ([]model.Assistant, error)
	Refresh(ctx context.Context) ([]model.Assistant, error)
	Get(ctx context.Context, id string) (*model.Assistant, error)
	Create(ctx context.Context, input model.CreateAssistantInput) (*model.Assistant, error)
	Update(ctx context.Context, id string, input model.UpdateAssistantInput) (*model.Assistant, error)
	UpdateRules(ctx context.Context, id, rules string) (*model.Assistant, error)
	Delete(ctx context.Context, id string) error
	// HandleAssistantEvent 处理其他实例发布的变更事件，使本地缓存失效。
	HandleAssistantEvent(ctx context.Context, event events.AssistantEvent) error
}

type assistantService struct {
	repo      repository.AssistantRepository
	cache     *cache.AssistantCache
	publisher EventPublisher
	source    string
	validate  *validator.Validate
}

// NewAssistantService 创建一个新的 AssistantService 实例。publisher 可以为 nil。
func NewAssistantService(repo repository.AssistantRepository, assistantCache *cache.AssistantCache, publisher EventPublisher, source string) AssistantService {
	return &assistantService{
		repo:      repo,
		cache:     assistantCache,
		publisher: publisher,
		source:    source,
		validate:  newValidator(),
	}
}

// newValidator 让校验错误中的字段名与 JSON 字段名一致。
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// List 返回缓存中的助手列表，首次调用时从数据源加载。
func (s *assistantService) List(ctx context.Context) ([]model.Assistant, error) {
	return s.cache.List(ctx)
}

// Refresh 强制从数据源刷新列表。
func (s *assistantService) Refresh(ctx context.Context) ([]model.Assistant, error) {
	list, err := s.cache.Refresh(ctx)
	if errors.Is(err, cache.ErrSuperseded) {
		// 被更新的刷新或乐观修改取代，返回已加载的集合
		return s.cache.List(ctx)
	}
	return list, err
}

// Get 通过单项缓存获取助手。
func (s *assistantService) Get(ctx context.Context, id string) (*model.Assistant, error) {
	return s.cache.Item(ctx, id)
}

// Create 校验输入后创建助手，成功后使集合缓存和单项缓存失效。
func (s *assistantService) Create(ctx context.Context, input model.CreateAssistantInput) (*model.Assistant, error) {
	if err := s.validateCreate(input); err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, input)
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, events.AssistantCreated, created.ID)
	return created, nil
}

// Update 校验非 nil 字段后部分更新助手，未提供的字段保持原值。
func (s *assistantService) Update(ctx context.Context, id string, input model.UpdateAssistantInput) (*model.Assistant, error) {
	if err := s.validateUpdate(input); err != nil {
		return nil, err
	}
	updated, err := s.repo.Update(ctx, id, input)
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, events.AssistantUpdated, id)
	return updated, nil
}

// UpdateRules 只更新训练规则。
func (s *assistantService) UpdateRules(ctx context.Context, id, rules string) (*model.Assistant, error) {
	return s.Update(ctx, id, model.UpdateAssistantInput{Rules: &rules})
}

// Delete 乐观删除：先从缓存中移除，再调用数据源；
// 失败时原样恢复删除前的集合。无论成功与否，最后都会刷新一次缓存。
func (s *assistantService) Delete(ctx context.Context, id string) error {
	pending := s.cache.BeginDelete(id)

	err := s.repo.Delete(ctx, id)
	if err != nil {
		pending.Rollback()
		log.Warnw("删除助手失败，已回滚缓存", "assistantId", id, "error", err)
	} else {
		pending.Commit()
	}

	// 对账刷新不应随请求取消而中断
	settleCtx := context.WithoutCancel(ctx)
	s.cache.InvalidateItem(id)
	if rerr := s.cache.Invalidate(settleCtx); rerr != nil {
		log.Error("删除后刷新助手缓存失败", rerr)
	}

	if err != nil {
		return err
	}
	s.publish(settleCtx, events.AssistantDeleted, id)
	return nil
}

// HandleAssistantEvent 使受影响的缓存失效并刷新集合。
func (s *assistantService) HandleAssistantEvent(ctx context.Context, event events.AssistantEvent) error {
	log.Infow("收到远程助手变更事件", "type", event.Type, "assistantId", event.AssistantID, "source", event.Source)
	s.cache.InvalidateItem(event.AssistantID)
	return s.cache.Invalidate(ctx)
}

// afterWrite 使集合与单项缓存失效，并发布变更事件。刷新失败只记录日志。
func (s *assistantService) afterWrite(ctx context.Context, eventType events.Type, id string) {
	settleCtx := context.WithoutCancel(ctx)
	s.cache.InvalidateItem(id)
	if err := s.cache.Invalidate(settleCtx); err != nil {
		log.Error("写入后刷新助手缓存失败", err)
	}
	s.publish(settleCtx, eventType, id)
}

func (s *assistantService) publish(ctx context.Context, eventType events.Type, id string) {
	if s.publisher == nil {
		return
	}
	event := events.AssistantEvent{
		Type:        eventType,
		AssistantID: id,
		Source:      s.source,
		OccurredAt:  time.Now(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Errorf("发布助手变更事件失败: type=%s, id=%s, err=%v", eventType, id, err)
	}
}

func (s *assistantService) validateCreate(in model.CreateAssistantInput) error {
	if err := checkName(in.Name); err != nil {
		return err
	}
	if err := s.validate.Struct(in); err != nil {
		return toValidationError(err)
	}
	return checkResponseLength(in.ResponseLength)
}

func (s *assistantService) validateUpdate(in model.UpdateAssistantInput) error {
	if in.Name != nil {
		if err := checkName(*in.Name); err != nil {
			return err
		}
	}
	if err := s.validate.Struct(in); err != nil {
		return toValidationError(err)
	}
	if in.ResponseLength != nil {
		if err := s.validate.Struct(*in.ResponseLength); err != nil {
			return toValidationError(err)
		}
		return checkResponseLength(*in.ResponseLength)
	}
	return nil
}

func checkName(name string) error {
	if utf8.RuneCountInString(strings.TrimSpace(name)) < minNameLength {
		return &ValidationError{Field: "name", Message: fmt.Sprintf("名称至少需要 %d 个字符", minNameLength)}
	}
	return nil
}

func checkResponseLength(r model.ResponseLength) error {
	if r.Short < 0 || r.Medium < 0 || r.Long < 0 {
		return &ValidationError{Field: "responseLength", Message: "百分比不能为负数"}
	}
	if r.Total() != 100 {
		return &ValidationError{Field: "responseLength", Message: fmt.Sprintf("百分比之和必须恰好为 100，当前为 %d", r.Total())}
	}
	return nil
}

func toValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{Field: fe.Field(), Message: fmt.Sprintf("校验规则 %s 未通过", fe.Tag())}
	}
	return &ValidationError{Field: "input", Message: err.Error()}
}
