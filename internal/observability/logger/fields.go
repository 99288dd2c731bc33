package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field { return zap.String("method", v) }
func Path(v string) zap.Field { return zap.String("path", v) }
func Status(v int) zap.Field { return zap.Int("status", v) }
func Bytes(v int) zap.Field { return zap.Int("bytes", v) }
func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }
func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }
func UserAgent(v string) zap.Field { return zap.String("user_agent", v) }
func Origin(v string) zap.Field { return zap.String("origin", v) }

// =================================================================================
// CAMPOS ESTÁNDAR - NEGOCIO
// =================================================================================

func TenantID(v string) zap.Field { return zap.String("tenant_id", v) }
func UserID(v string) zap.Field { return zap.String("user_id", v) }
func SessionID(v string) zap.Field { return zap.String("session_id", v) }
func DeviceID(v string) zap.Field { return zap.String("device_id", v) }

// Email registra el email; usar solo en warn/debug, nunca en logs de éxito.
func Email(v string) zap.Field { return zap.String("email", v) }

// Partition identifica la cadena de auditoría (tenant o tenant/evidence).
func Partition(v string) zap.Field { return zap.String("partition", v) }

// ConnID identifica una conexión realtime.
func ConnID(v string) zap.Field { return zap.String("conn_id", v) }

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field { return zap.String("op", v) }
func Layer(v string) zap.Field { return zap.String("layer", v) }
func Err(err error) zap.Field { return zap.Error(err) }
func Count(v int64) zap.Field { return zap.Int64("count", v) }

// =================================================================================
// GENÉRICOS
// =================================================================================

func Any(key string, v any) zap.Field { return zap.Any(key, v) }
func String(key, v string) zap.Field { return zap.String(key, v) }
func Int(key string, v int) zap.Field { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
