// Package relay 实现了转发编排，把关系表、对象缓存、分发器串联起来，
// 对每个入站控制事件和对象决定应答与转发去向
package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/buffer"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/cache"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/connection"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/database"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/dispatch"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/logger"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/message"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/moq"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/relation"
	"github.com/life-stream-dev/life-stream-go-moq-relay/internal/session"
)

// 应答错误码
const (
	AnnounceErrorDuplicate   uint64 = 0x1 // 命名空间已被宣告
	SubscribeErrorInternal   uint64 = 0x0
	SubscribeErrorNotExist   uint64 = 0x4 // 命名空间未被宣告
	FetchErrorNotSupported   uint64 = 0x0
	TerminateProtocolViolate uint64 = 0x2 // 会话级终止码
)

// Relay 转发编排器
// 自身不持有协议状态，所有共享表都通过各自的所有者协程访问
type Relay struct {
	relations *relation.Manager
	cache     *cache.Storage
	buffers   *buffer.Manager
	control   *dispatch.ControlDispatcher
	signals   *dispatch.SignalDispatcher
	sender    connection.MessageSender
	registry  database.TrackRegistry
	objectTTL time.Duration

	// 订阅者会话 → 对象写协程
	writers sync.Map
	// "命名空间#轨道名" → 上游订阅，TRACK_STATUS查询用
	tracks sync.Map
}

type trackKey struct {
	namespace string
	name      string
}

// NewRelay 创建转发编排器
func NewRelay(
	relations *relation.Manager,
	storage *cache.Storage,
	buffers *buffer.Manager,
	control *dispatch.ControlDispatcher,
	signals *dispatch.SignalDispatcher,
	sender connection.MessageSender,
	registry database.TrackRegistry,
	objectTTL time.Duration,
) *Relay {
	return &Relay{
		relations: relations,
		cache:     storage,
		buffers:   buffers,
		control:   control,
		signals:   signals,
		sender:    sender,
		registry:  registry,
		objectTTL: objectTTL,
	}
}

// RegisterObjectSender 登记会话的对象发送器并启动其写协程
func (r *Relay) RegisterObjectSender(id moq.SessionID, sender ObjectSender) {
	r.writers.Store(id, newObjectWriter(id, sender))
}

// HandleAnnounce 处理ANNOUNCE，冲突回送ANNOUNCE_ERROR，不终止会话
func (r *Relay) HandleAnnounce(ctx context.Context, sess *session.Session, msg *message.Announce) error {
	err := r.relations.Announce(ctx, msg.TrackNamespace, sess.ID)
	if errors.Is(err, relation.ErrAlreadyExists) {
		logger.WarnF("[%d] Namespace %q is already announced", sess.ID, msg.TrackNamespace.Join())
		return r.sender.SendMessage(ctx, sess.ID, &message.AnnounceError{
			TrackNamespace: msg.TrackNamespace,
			ErrorCode:      AnnounceErrorDuplicate,
			ReasonPhrase:   "namespace is already announced",
		})
	}
	if err != nil {
		return err
	}

	if dbErr := r.registry.SaveAnnouncement(database.NewAnnouncementRecord(msg.TrackNamespace.Join(), uint64(sess.ID))); dbErr != nil {
		logger.ErrorF("[%d] Fail to record announcement, details: %v", sess.ID, dbErr)
	}

	return r.sender.SendMessage(ctx, sess.ID, &message.AnnounceOk{TrackNamespace: msg.TrackNamespace})
}

// HandleUnannounce 处理UNANNOUNCE
func (r *Relay) HandleUnannounce(ctx context.Context, sess *session.Session, msg *message.Unannounce) error {
	if err := r.relations.Unannounce(ctx, msg.TrackNamespace, sess.ID); err != nil {
		return err
	}
	if dbErr := r.registry.DeleteAnnouncement(msg.TrackNamespace.Join()); dbErr != nil {
		logger.ErrorF("[%d] Fail to remove announcement record, details: %v", sess.ID, dbErr)
	}
	return nil
}

// HandleSubscribe 处理下游SUBSCRIBE
// 解析发布者、分配上游标识、登记关系，再把重写后的SUBSCRIBE转发给发布者；
// 命名空间未知时回送SUBSCRIBE_ERROR，绝不因此终止中继
func (r *Relay) HandleSubscribe(ctx context.Context, sess *session.Session, msg *message.Subscribe) error {
	downstream := relation.Pair{SessionID: sess.ID, SubscribeID: msg.SubscribeID}

	publisher, err := r.relations.Subscribe(ctx, msg.TrackNamespace, msg.TrackName, downstream, msg.SubscriberPriority)
	if errors.Is(err, moq.ErrNotFound) || errors.Is(err, relation.ErrAlreadyExists) {
		logger.WarnF("[%d] Subscribe rejected: %v", sess.ID, err)
		return r.sender.SendMessage(ctx, sess.ID, &message.SubscribeError{
			SubscribeID:  msg.SubscribeID,
			ErrorCode:    SubscribeErrorNotExist,
			ReasonPhrase: "track namespace is not announced",
			TrackAlias:   msg.TrackAlias,
		})
	}
	if err != nil {
		return err
	}

	// 下游别名由订阅者在SUBSCRIBE里自选
	if err := r.relations.SetSubscriptionTrackAlias(ctx, downstream, msg.TrackAlias); err != nil {
		return err
	}

	upID, upAlias, err := r.relations.AllocateSubscribeIDAndTrackAlias(ctx, publisher)
	if err != nil {
		return err
	}
	upstream := relation.Pair{SessionID: publisher, SubscribeID: upID}
	track := relation.Track{Namespace: msg.TrackNamespace, Name: msg.TrackName, Alias: upAlias}
	if err := r.relations.RecordRelation(ctx, upstream, track, downstream); err != nil {
		return err
	}
	r.tracks.Store(trackKey{msg.TrackNamespace.Join(), msg.TrackName}, upstream)

	rewritten := *msg
	rewritten.SubscribeID = upID
	rewritten.TrackAlias = upAlias
	if err := r.sender.SendMessage(ctx, publisher, &rewritten); err != nil {
		logger.ErrorF("[%d] Fail to relay subscribe to publisher %d, details: %v", sess.ID, publisher, err)
		return r.sender.SendMessage(ctx, sess.ID, &message.SubscribeError{
			SubscribeID:  msg.SubscribeID,
			ErrorCode:    SubscribeErrorInternal,
			ReasonPhrase: "publisher is unreachable",
			TrackAlias:   msg.TrackAlias,
		})
	}
	logger.DebugF("[%d] Subscribe relayed to publisher %d as (%d,%d)", sess.ID, publisher, upID, upAlias)
	return nil
}

// HandleSubscribeOk 处理发布者的SUBSCRIBE_OK
// 对每个下游订阅者重写订阅ID后转发并激活，单个失败只记日志
func (r *Relay) HandleSubscribeOk(ctx context.Context, sess *session.Session, msg *message.SubscribeOk) error {
	upstream := relation.Pair{SessionID: sess.ID, SubscribeID: msg.SubscribeID}
	downstreams, err := r.relations.ResolveDownstream(ctx, upstream)
	if err != nil {
		return err
	}
	track, err := r.relations.UpstreamTrack(ctx, upstream)
	if err != nil {
		logger.WarnF("[%d] SubscribeOk for unknown subscription %d", sess.ID, msg.SubscribeID)
		return nil
	}

	for _, downstream := range downstreams {
		rewritten := *msg
		rewritten.SubscribeID = downstream.SubscribeID
		if sendErr := r.sender.SendMessage(ctx, downstream.SessionID, &rewritten); sendErr != nil {
			logger.ErrorF("[%d] Fail to relay subscribe ok to session %d, details: %v",
				sess.ID, downstream.SessionID, sendErr)
			continue
		}
		alreadyActive, actErr := r.relations.Activate(ctx, downstream)
		if actErr != nil {
			logger.ErrorF("[%d] Fail to activate subscription (%d,%d), details: %v",
				sess.ID, downstream.SessionID, downstream.SubscribeID, actErr)
			continue
		}
		if alreadyActive {
			continue
		}
		sub, subErr := r.relations.GetSubscription(ctx, downstream)
		if subErr != nil {
			continue
		}
		record := &database.SubscriptionRecord{
			SessionID:   uint64(downstream.SessionID),
			SubscribeID: uint64(downstream.SubscribeID),
			Namespace:   track.Namespace.Join(),
			TrackName:   track.Name,
			TrackAlias:  uint64(sub.Track.Alias),
			Priority:    sub.Priority,
		}
		if dbErr := r.registry.SaveSubscription(record); dbErr != nil {
			logger.ErrorF("[%d] Fail to record subscription, details: %v", sess.ID, dbErr)
		}
	}
	return nil
}

// HandleSubscribeError 处理发布者的SUBSCRIBE_ERROR，转发给各下游并拆除关系
func (r *Relay) HandleSubscribeError(ctx context.Context, sess *session.Session, msg *message.SubscribeError) error {
	upstream := relation.Pair{SessionID: sess.ID, SubscribeID: msg.SubscribeID}
	downstreams, err := r.relations.ResolveDownstream(ctx, upstream)
	if err != nil {
		return err
	}
	for _, downstream := range downstreams {
		sub, subErr := r.relations.GetSubscription(ctx, downstream)
		rewritten := *msg
		rewritten.SubscribeID = downstream.SubscribeID
		if subErr == nil {
			rewritten.TrackAlias = sub.Track.Alias
		}
		if sendErr := r.sender.SendMessage(ctx, downstream.SessionID, &rewritten); sendErr != nil {
			logger.ErrorF("[%d] Fail to relay subscribe error to session %d, details: %v",
				sess.ID, downstream.SessionID, sendErr)
		}
		if remErr := r.relations.RemoveRelation(ctx, downstream); remErr != nil {
			logger.ErrorF("[%d] Fail to remove relation, details: %v", sess.ID, remErr)
		}
	}
	return nil
}

// HandleUnsubscribe 处理UNSUBSCRIBE
// 只移除这一条上下游关系，发布者的宣告保留
func (r *Relay) HandleUnsubscribe(ctx context.Context, sess *session.Session, msg *message.Unsubscribe) error {
	downstream := relation.Pair{SessionID: sess.ID, SubscribeID: msg.SubscribeID}
	if err := r.relations.RemoveRelation(ctx, downstream); err != nil {
		return err
	}
	if dbErr := r.registry.DeleteSubscription(uint64(sess.ID), uint64(msg.SubscribeID)); dbErr != nil {
		logger.ErrorF("[%d] Fail to remove subscription record, details: %v", sess.ID, dbErr)
	}
	return nil
}

// HandleTrackStatusRequest 处理TRACK_STATUS_REQUEST，用缓存里的最大组/对象号作答
func (r *Relay) HandleTrackStatusRequest(ctx context.Context, sess *session.Session, msg *message.TrackStatusRequest) error {
	status := &message.TrackStatus{
		TrackNamespace: msg.TrackNamespace,
		TrackName:      msg.TrackName,
		StatusCode:     message.TrackStatusRelayNoInfo,
	}

	if value, ok := r.tracks.Load(trackKey{msg.TrackNamespace.Join(), msg.TrackName}); ok {
		upstream := value.(relation.Pair)
		key := cache.Key{SessionID: upstream.SessionID, SubscribeID: upstream.SubscribeID}
		group, err := r.cache.GetLargestGroupID(ctx, key)
		if err == nil {
			object, objErr := r.cache.GetLargestObjectIDWithinLargestGroup(ctx, key)
			if objErr == nil {
				status.StatusCode = message.TrackStatusInProgress
				status.LastGroupID = group
				status.LastObjectID = object
			}
		} else if errors.Is(err, moq.ErrNotFound) {
			status.StatusCode = message.TrackStatusNotStarted
		}
	} else if _, err := r.relations.FindAnnouncer(ctx, msg.TrackNamespace); errors.Is(err, moq.ErrNotFound) {
		// 本实例没有存活的公告者时再查登记表，其他实例可能已登记该命名空间
		if _, regErr := r.registry.GetAnnouncement(msg.TrackNamespace.Join()); regErr == nil {
			status.StatusCode = message.TrackStatusNotStarted
		} else {
			status.StatusCode = message.TrackStatusNotExist
		}
	}

	return r.sender.SendMessage(ctx, sess.ID, status)
}

// HandleSubscribeNamespace 处理SUBSCRIBE_NAMESPACE，当前只确认登记
func (r *Relay) HandleSubscribeNamespace(ctx context.Context, sess *session.Session, msg *message.SubscribeNamespace) error {
	return r.sender.SendMessage(ctx, sess.ID, &message.SubscribeNamespaceOk{
		TrackNamespacePrefix: msg.TrackNamespacePrefix,
	})
}

// HandleFetch 处理FETCH
// 本中继不提供历史范围拉取，统一回送FETCH_ERROR
func (r *Relay) HandleFetch(ctx context.Context, sess *session.Session, msg *message.Fetch) error {
	return r.sender.SendMessage(ctx, sess.ID, &message.FetchError{
		SubscribeID:  msg.SubscribeID,
		ErrorCode:    FetchErrorNotSupported,
		ReasonPhrase: "fetch is not supported by this relay",
	})
}

// Terminate 向会话投递终止信号
func (r *Relay) Terminate(ctx context.Context, id moq.SessionID, code uint64, reason string) {
	if err := r.signals.Signal(ctx, id, dispatch.Signal{Code: code, Reason: reason}); err != nil {
		logger.WarnF("[%d] Fail to deliver termination signal, details: %v", id, err)
	}
}

// HandleDatagram 处理发布者发来的数据报对象
func (r *Relay) HandleDatagram(ctx context.Context, sess *session.Session, msg *message.ObjectDatagram) error {
	upstream := relation.Pair{SessionID: sess.ID, SubscribeID: msg.SubscribeID}
	object := moq.Object{
		GroupID:  msg.GroupID,
		ObjectID: msg.ObjectID,
		Priority: msg.PublisherPriority,
		Payload:  msg.Payload,
	}
	return r.forwardObject(ctx, sess, upstream, moq.ForwardingDatagram, object)
}

// HandleTrackHeader 处理每轨道流的流头，登记转发偏好与流头
func (r *Relay) HandleTrackHeader(ctx context.Context, sess *session.Session, header *message.StreamHeaderTrack) error {
	key := cache.Key{SessionID: sess.ID, SubscribeID: header.SubscribeID}
	if err := r.setPreference(ctx, sess, key, moq.ForwardingTrack); err != nil {
		return err
	}
	return r.cache.SetTrackHeader(ctx, key, header)
}

// HandleTrackObject 处理每轨道流中的对象记录
func (r *Relay) HandleTrackObject(ctx context.Context, sess *session.Session, header *message.StreamHeaderTrack, obj *message.TrackObject) error {
	upstream := relation.Pair{SessionID: sess.ID, SubscribeID: header.SubscribeID}
	object := moq.Object{
		GroupID:  obj.GroupID,
		ObjectID: obj.ObjectID,
		Priority: header.PublisherPriority,
		Payload:  obj.Payload,
	}
	return r.forwardObject(ctx, sess, upstream, moq.ForwardingTrack, object)
}

// HandleSubgroupHeader 处理每子组流的流头
func (r *Relay) HandleSubgroupHeader(ctx context.Context, sess *session.Session, header *message.StreamHeaderSubgroup) error {
	key := cache.Key{SessionID: sess.ID, SubscribeID: header.SubscribeID}
	if err := r.setPreference(ctx, sess, key, moq.ForwardingSubgroup); err != nil {
		return err
	}
	sub := cache.SubgroupKey{GroupID: header.GroupID, SubgroupID: header.SubgroupID}
	return r.cache.SetSubgroupHeader(ctx, key, sub, header)
}

// HandleSubgroupObject 处理每子组流中的对象记录
func (r *Relay) HandleSubgroupObject(ctx context.Context, sess *session.Session, header *message.StreamHeaderSubgroup, obj *message.SubgroupObject) error {
	upstream := relation.Pair{SessionID: sess.ID, SubscribeID: header.SubscribeID}
	object := moq.Object{
		GroupID:    header.GroupID,
		SubgroupID: header.SubgroupID,
		ObjectID:   obj.ObjectID,
		Priority:   header.PublisherPriority,
		Payload:    obj.Payload,
	}
	return r.forwardObject(ctx, sess, upstream, moq.ForwardingSubgroup, object)
}

// setPreference 登记转发偏好，与既有偏好冲突时终止发布者会话
func (r *Relay) setPreference(ctx context.Context, sess *session.Session, key cache.Key, preference moq.ForwardingPreference) error {
	err := r.cache.SetSubscription(ctx, key, preference)
	if errors.Is(err, moq.ErrProtocolViolation) {
		logger.ErrorF("[%d] Forwarding preference conflict on subscription %d", sess.ID, key.SubscribeID)
		r.Terminate(ctx, sess.ID, TerminateProtocolViolate, "forwarding preference conflict")
		return err
	}
	return err
}

// forwardObject 对象入缓存后对每个下游订阅者重写标识并入队转发
func (r *Relay) forwardObject(ctx context.Context, sess *session.Session, upstream relation.Pair, preference moq.ForwardingPreference, object moq.Object) error {
	key := cache.Key{SessionID: upstream.SessionID, SubscribeID: upstream.SubscribeID}
	if err := r.setPreference(ctx, sess, key, preference); err != nil {
		return err
	}
	if _, err := r.cache.InsertObject(ctx, key, object, r.objectTTL); err != nil {
		return err
	}

	downstreams, err := r.relations.ResolveDownstream(ctx, upstream)
	if err != nil {
		return err
	}
	for _, downstream := range downstreams {
		sub, subErr := r.relations.GetSubscription(ctx, downstream)
		if subErr != nil {
			logger.WarnF("[%d] Downstream (%d,%d) has no subscription record, object dropped",
				sess.ID, downstream.SessionID, downstream.SubscribeID)
			continue
		}
		value, ok := r.writers.Load(downstream.SessionID)
		if !ok {
			logger.WarnF("[%d] No object writer for session %d, object dropped", sess.ID, downstream.SessionID)
			continue
		}
		writer := value.(*objectWriter)
		writer.enqueue(rewriteObject(downstream, sub, preference, object))
	}
	return nil
}

// rewriteObject 以订阅者自己的订阅ID和轨道别名重新打包对象
func rewriteObject(downstream relation.Pair, sub relation.Subscription, preference moq.ForwardingPreference, object moq.Object) outboundObject {
	out := outboundObject{preference: preference}
	switch preference {
	case moq.ForwardingDatagram:
		out.datagram = &message.ObjectDatagram{
			SubscribeID:       downstream.SubscribeID,
			TrackAlias:        sub.Track.Alias,
			GroupID:           object.GroupID,
			ObjectID:          object.ObjectID,
			PublisherPriority: object.Priority,
			Payload:           object.Payload,
		}
	case moq.ForwardingTrack:
		out.trackHeader = &message.StreamHeaderTrack{
			SubscribeID:       downstream.SubscribeID,
			TrackAlias:        sub.Track.Alias,
			PublisherPriority: object.Priority,
		}
		out.trackObject = &message.TrackObject{
			GroupID:  object.GroupID,
			ObjectID: object.ObjectID,
			Payload:  object.Payload,
		}
	case moq.ForwardingSubgroup:
		out.subgroupHeader = &message.StreamHeaderSubgroup{
			SubscribeID:       downstream.SubscribeID,
			TrackAlias:        sub.Track.Alias,
			GroupID:           object.GroupID,
			SubgroupID:        object.SubgroupID,
			PublisherPriority: object.Priority,
		}
		out.subgroupObject = &message.SubgroupObject{
			ObjectID: object.ObjectID,
			Payload:  object.Payload,
		}
	}
	return out
}

// HandleDisconnect 会话断开后的级联清理
// 缓存、分发器、关系表、缓冲区、登记表各清一遍，防止任何表泄漏条目
func (r *Relay) HandleDisconnect(ctx context.Context, id moq.SessionID) {
	if err := r.cache.DeleteClient(ctx, id); err != nil {
		logger.ErrorF("[%d] Fail to purge cache, details: %v", id, err)
	}
	if err := r.control.Delete(ctx, id); err != nil {
		logger.ErrorF("[%d] Fail to remove control channel, details: %v", id, err)
	}
	if err := r.signals.Delete(ctx, id); err != nil {
		logger.ErrorF("[%d] Fail to remove signal channel, details: %v", id, err)
	}
	if err := r.relations.DeleteSession(ctx, id); err != nil {
		logger.ErrorF("[%d] Fail to purge relation table, details: %v", id, err)
	}
	if err := r.buffers.ReleaseSession(ctx, id); err != nil {
		logger.ErrorF("[%d] Fail to release buffers, details: %v", id, err)
	}
	if err := r.registry.DeleteSessionRecords(uint64(id)); err != nil {
		logger.ErrorF("[%d] Fail to remove registry records, details: %v", id, err)
	}
	if value, ok := r.writers.LoadAndDelete(id); ok {
		value.(*objectWriter).close()
	}
	r.tracks.Range(func(key, value any) bool {
		if value.(relation.Pair).SessionID == id {
			r.tracks.Delete(key)
		}
		return true
	})
	logger.InfoF("[%d] Session cleanup finished", id)
}
