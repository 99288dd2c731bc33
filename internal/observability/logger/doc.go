// Package logger expone un logger Zap único con scoping por contexto.
//
// Se inicializa una sola vez desde el comando serve:
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, ServiceName: "opslinkcad"})
//	defer logger.Sync()
//
// Los middlewares HTTP y el gate realtime inyectan un logger con request_id,
// tenant_id, user_id o conn_id usando ToContext. Services y repositorios lo
// recuperan con From(ctx) y agregan Layer/Component/Op:
//
//	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("Login"))
//	log.Warn("lockout threshold reached", logger.TenantID(t), logger.ClientIP(ip))
//
// Sin contexto se usa el singleton: logger.L().Info("sweep finished").
package logger
