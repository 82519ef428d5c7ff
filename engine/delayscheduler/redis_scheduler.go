package delayscheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/go-redis/redis/v8"
)

const (
	pendingResumesKey  = "chatflow:pending_resumes"      // Sorted set, score = unix de reanudación
	continuationPrefix = "chatflow:continuation:"        // continuación serializada por ID
	sessionIndexPrefix = "chatflow:session_resume:"      // sessionID -> continuationID, para cancelar
	claimBatchSize     = 10
	retentionSlack     = time.Hour
)

var _ engine.DelayScheduler = (*RedisDelayScheduler)(nil)

// RedisDelayScheduler agenda reanudaciones de sesión sobre un sorted set de
// Redis. Un worker revisa cada segundo las continuaciones vencidas; el ZRem
// atómico garantiza que con varias réplicas cada continuación se ejecute una
// sola vez.
type RedisDelayScheduler struct {
	redis         *redis.Client
	syncThreshold time.Duration

	mu      sync.Mutex
	handler engine.ContinuationHandler
	running bool
	stop    chan struct{}
}

func NewRedisDelayScheduler(redisClient *redis.Client, syncThreshold time.Duration) *RedisDelayScheduler {
	if syncThreshold <= 0 {
		syncThreshold = 30 * time.Second
	}
	return &RedisDelayScheduler{
		redis:         redisClient,
		syncThreshold: syncThreshold,
		stop:          make(chan struct{}),
	}
}

// SetHandler conecta el consumidor de continuaciones. Se llama una vez al
// armar el contenedor; scheduler y procesador se referencian mutuamente.
func (r *RedisDelayScheduler) SetHandler(handler engine.ContinuationHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = handler
}

// Schedule agenda una continuación para su hora programada
func (r *RedisDelayScheduler) Schedule(ctx context.Context, cont engine.Continuation) error {
	data, err := json.Marshal(cont)
	if err != nil {
		return engine.ErrContinuationFailed().
			WithDetail("session_id", cont.SessionID).
			WithDetail("reason", fmt.Sprintf("failed to marshal continuation: %v", err))
	}

	ttl := time.Until(cont.ScheduledFor) + retentionSlack
	contKey := continuationPrefix + cont.ID
	if err := r.redis.Set(ctx, contKey, data, ttl).Err(); err != nil {
		return engine.ErrContinuationFailed().
			WithDetail("session_id", cont.SessionID).
			WithDetail("reason", fmt.Sprintf("failed to store continuation: %v", err))
	}

	// Índice por sesión para poder cancelar si la sesión se aborta
	if err := r.redis.Set(ctx, sessionIndexPrefix+cont.SessionID, cont.ID, ttl).Err(); err != nil {
		return engine.ErrContinuationFailed().
			WithDetail("session_id", cont.SessionID).
			WithDetail("reason", fmt.Sprintf("failed to index continuation: %v", err))
	}

	if err := r.redis.ZAdd(ctx, pendingResumesKey, &redis.Z{
		Score:  float64(cont.ScheduledFor.Unix()),
		Member: cont.ID,
	}).Err(); err != nil {
		return engine.ErrContinuationFailed().
			WithDetail("session_id", cont.SessionID).
			WithDetail("reason", fmt.Sprintf("failed to enqueue continuation: %v", err))
	}

	log.Printf("⏰ Scheduled resume %s for session %s at %v", cont.ID, cont.SessionID, cont.ScheduledFor)
	return nil
}

// Cancel descarta la reanudación pendiente de una sesión, si existe
func (r *RedisDelayScheduler) Cancel(ctx context.Context, sessionID kernel.SessionID) error {
	indexKey := sessionIndexPrefix + sessionID.String()
	contID, err := r.redis.Get(ctx, indexKey).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}

	if err := r.redis.ZRem(ctx, pendingResumesKey, contID).Err(); err != nil {
		return err
	}
	r.redis.Del(ctx, continuationPrefix+contID, indexKey)

	log.Printf("🗑️ Cancelled pending resume for session %s", sessionID)
	return nil
}

// ShouldUseAsync delays por encima del umbral se agendan en vez de esperarse
func (r *RedisDelayScheduler) ShouldUseAsync(delay time.Duration) bool {
	return delay > r.syncThreshold
}

// GetPendingCount número de reanudaciones agendadas
func (r *RedisDelayScheduler) GetPendingCount(ctx context.Context) (int64, error) {
	return r.redis.ZCard(ctx, pendingResumesKey).Result()
}

// StartWorker arranca el worker de reanudaciones en background
func (r *RedisDelayScheduler) StartWorker(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		log.Println("⚠️ Resume worker already running")
		return
	}
	r.running = true

	log.Println("🚀 Starting resume worker...")
	go r.workerLoop(ctx)
}

// StopWorker detiene el worker
func (r *RedisDelayScheduler) StopWorker() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	close(r.stop)
	r.running = false
	log.Println("🛑 Resume worker stopped")
}

func (r *RedisDelayScheduler) workerLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			if err := r.processDue(ctx); err != nil {
				log.Printf("❌ Error processing due resumes: %v", err)
			}
		}
	}
}

func (r *RedisDelayScheduler) processDue(ctx context.Context) error {
	due, err := r.redis.ZRangeByScore(ctx, pendingResumesKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", time.Now().Unix()),
		Count: claimBatchSize,
	}).Result()
	if err != nil {
		return err
	}

	for _, contID := range due {
		// Reclamo atómico: solo una réplica se queda con la continuación
		removed, err := r.redis.ZRem(ctx, pendingResumesKey, contID).Result()
		if err != nil || removed == 0 {
			continue
		}
		go r.runContinuation(context.Background(), contID)
	}
	return nil
}

func (r *RedisDelayScheduler) runContinuation(ctx context.Context, contID string) {
	contKey := continuationPrefix + contID
	data, err := r.redis.Get(ctx, contKey).Result()
	if err != nil {
		log.Printf("❌ Failed to load continuation %s: %v", contID, err)
		return
	}

	var cont engine.Continuation
	if err := json.Unmarshal([]byte(data), &cont); err != nil {
		log.Printf("❌ Failed to unmarshal continuation %s: %v", contID, err)
		return
	}

	r.mu.Lock()
	handler := r.handler
	r.mu.Unlock()
	if handler == nil {
		log.Printf("⚠️ No continuation handler set, dropping %s", contID)
		return
	}

	if err := handler.HandleContinuation(ctx, cont); err != nil {
		log.Printf("❌ Continuation %s failed: %v", contID, err)
		return
	}

	r.redis.Del(ctx, contKey, sessionIndexPrefix+cont.SessionID)
	log.Printf("✅ Completed resume %s for session %s", contID, cont.SessionID)
}
