package logger

import (
	"errors"
	"net/http"
	"time"

	"docvision-service/pkg/config"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.Logger

// New builds a zap logger for the environment: JSON in production,
// colored console output elsewhere. Unknown levels fall back to info.
func New(cfg *config.Config) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.IsProduction() {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build(zap.Fields(zap.String("service", "docvision-service")))
}

// InitLogger builds the process logger and installs it globally
func InitLogger(cfg *config.Config) {
	l, err := New(cfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	SetLogger(l)
	l.Info("Logger initialized", zap.String("level", l.Level().String()))
}

func SetLogger(l *zap.Logger) {
	log = l
}

// GetLogger returns the global logger, a production logger if none was installed
func GetLogger() *zap.Logger {
	if log == nil {
		l, err := zap.NewProduction()
		if err != nil {
			panic("Failed to create fallback logger: " + err.Error())
		}
		log = l
	}
	return log
}

// Middleware attaches a request scoped logger to the context and writes one
// access line per request. 5xx answers log at error, 4xx at warn.
func Middleware(base *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			requestID := c.Request().Header.Get(RequestIDKey)
			if requestID == "" {
				requestID = c.Response().Header().Get(RequestIDKey)
			}
			reqLogger := base.With(zap.String("request_id", requestID))
			c.Set(ContextKey, reqLogger)

			err := next(c)

			status := responseStatus(c, err)
			fields := requestFields(c, status, time.Since(start))
			switch {
			case status >= http.StatusInternalServerError:
				if err != nil {
					fields = append(fields, zap.Error(err))
				}
				reqLogger.Error("HTTP request failed", fields...)
			case status >= http.StatusBadRequest:
				reqLogger.Warn("HTTP request rejected", fields...)
			default:
				reqLogger.Info("HTTP request completed", fields...)
			}
			return err
		}
	}
}

// responseStatus is the status the client will see. A returned error has not
// been written yet, so its code wins over the recorded one.
func responseStatus(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

func requestFields(c echo.Context, status int, latency time.Duration) []zapcore.Field {
	req := c.Request()
	return []zapcore.Field{
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.String("route", c.Path()),
		zap.Int("status", status),
		zap.Int64("bytes_out", c.Response().Size),
		zap.Duration("latency", latency),
		zap.String("ip", c.RealIP()),
		zap.String("user_agent", req.UserAgent()),
	}
}
