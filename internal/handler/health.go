package handler

import (
	"context"
	"net/http"
	"time"

	"sarnabroker/internal/infra"
	"sarnabroker/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// HealthDeps are the probes /health reports on.
type HealthDeps struct {
	DB         *gorm.DB
	Redis      *redis.Client
	SMSBreaker *infra.CircuitBreaker
	Queue      worker.Queue
}

// Health reports DB and Redis connectivity, the SMS breaker state and the SMS
// dead letter backlog. It never exposes credentials or internals.
func Health(deps HealthDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		dbStatus := "connected"
		sqlDB, err := deps.DB.DB()
		if err != nil || sqlDB.PingContext(ctx) != nil {
			dbStatus = "error"
		}

		redisStatus := "connected"
		if deps.Redis == nil || deps.Redis.Ping(ctx).Err() != nil {
			redisStatus = "error"
		}

		status := http.StatusOK
		if dbStatus != "connected" || redisStatus != "connected" {
			status = http.StatusServiceUnavailable
		}

		body := gin.H{
			"ok":    status == http.StatusOK,
			"db":    dbStatus,
			"redis": redisStatus,
		}
		if deps.SMSBreaker != nil {
			body["sms_gateway"] = deps.SMSBreaker.State().String()
		}
		if deps.Queue != nil && redisStatus == "connected" {
			if n, err := worker.DLQLength(ctx, deps.Queue, worker.QueueSMS); err == nil {
				body["sms_dead_letters"] = n
			}
		}
		c.JSON(status, body)
	}
}
