package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/opslinkcad/internal/security/fieldcipher"
	"github.com/dropDatabas3/opslinkcad/internal/security/password"
)

// ErrNotConfigured envuelve cualquier falla de configuración obligatoria.
// serve sale con código != 0 antes de abrir el listener.
var ErrNotConfigured = errors.New("config: not configured")

const (
	EnvDev  = "dev"
	EnvTest = "test"
	EnvProd = "prod"

	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	minSecretLen = 32
)

// DefaultCORSOrigins son los orígenes de producción conocidos.
var DefaultCORSOrigins = []string{"https://opslinkcad.com", "https://safe.opslinksystems.xyz"}

type Config struct {
	App struct {
		// dev | test | staging | prod
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
		// CIDRs de proxies cuyo X-Forwarded-For se acepta. Vacío: sólo RemoteAddr.
		TrustedProxies     []string `yaml:"trusted_proxies"`
	} `yaml:"server"`

	Storage struct {
		// mongo | postgres | memory. Vacío => se infiere del DSN.
		Driver    string        `yaml:"driver"`
		DSN       string        `yaml:"dsn"`
		Database  string        `yaml:"database"`
		OpTimeout time.Duration `yaml:"op_timeout"`
		MaxConns  int32         `yaml:"max_conns"`
		MinConns  int32         `yaml:"min_conns"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	JWT struct {
		Issuer        string        `yaml:"issuer"`
		AccessSecret  string        `yaml:"access_secret"`
		RefreshSecret string        `yaml:"refresh_secret"`
		AccessTTL     time.Duration `yaml:"access_ttl"`
		RefreshTTL    time.Duration `yaml:"refresh_ttl"`
	} `yaml:"jwt"`

	Auth struct {
		Cookie struct {
			Name   string `yaml:"name"`
			Domain string `yaml:"domain"`
			Secure bool   `yaml:"secure"`
		} `yaml:"cookie"`
		LockoutThreshold int           `yaml:"lockout_threshold"`
		LockoutWindow    time.Duration `yaml:"lockout_window"`
		TOTPIssuer       string        `yaml:"totp_issuer"`
	} `yaml:"auth"`

	Security struct {
		// base64(96 bytes)
		FLEMasterKey  string `yaml:"fle_master_key"`
		PasswordHash  string `yaml:"password_hash"`
		BcryptCost    int    `yaml:"bcrypt_cost"`
		BlacklistPath string `yaml:"password_blacklist_path"`
	} `yaml:"security"`

	Rate struct {
		Enabled bool          `yaml:"enabled"`
		Max     int           `yaml:"max"`
		Window  time.Duration `yaml:"window"`
	} `yaml:"rate"`

	Jobs struct {
		SweepInterval    time.Duration `yaml:"sweep_interval"`
		AttemptRetention time.Duration `yaml:"attempt_retention"`
	} `yaml:"jobs"`
}

// Defaults retorna la config base, antes de archivo y env.
func Defaults() *Config {
	var c Config
	c.App.Env = EnvProd
	c.App.LogLevel = "info"
	c.Server.Addr = ":10000"
	c.Server.CORSAllowedOrigins = append([]string(nil), DefaultCORSOrigins...)
	c.Storage.OpTimeout = 8 * time.Second
	c.Cache.Kind = "memory"
	c.Cache.Redis.Prefix = "opslinkcad:rl:"
	c.JWT.Issuer = "opslinkcad"
	c.JWT.AccessTTL = 20 * time.Minute
	c.JWT.RefreshTTL = 30 * 24 * time.Hour
	c.Auth.Cookie.Secure = true
	c.Auth.LockoutThreshold = 10
	c.Auth.LockoutWindow = 15 * time.Minute
	c.Auth.TOTPIssuer = "OpsLink CAD"
	c.Security.PasswordHash = password.AlgBcrypt
	c.Security.BcryptCost = password.DefaultBcryptCost
	c.Rate.Enabled = true
	c.Rate.Max = 600
	c.Rate.Window = time.Minute
	c.Jobs.SweepInterval = 2 * time.Minute
	c.Jobs.AttemptRetention = 14 * 24 * time.Hour
	return &c
}

// LoadEnvFiles carga archivos .env sin pisar variables ya definidas.
// Los archivos inexistentes se ignoran.
func LoadEnvFiles(files ...string) {
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// Load arma la config: defaults -> YAML (si path != "") -> env -> Validate.
func Load(path string) (*Config, error) {
	c := Defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := c.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = InferDriver(c.Storage.DSN)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool, error) {
	s, ok := getEnvStr(key)
	if !ok {
		return 0, false, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s: %v", ErrNotConfigured, key, err)
	}
	return i, true, nil
}

func getEnvBool(key string) (bool, bool, error) {
	s, ok := getEnvStr(key)
	if !ok {
		return false, false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, false, fmt.Errorf("%w: %s: %v", ErrNotConfigured, key, err)
	}
	return b, true, nil
}

// getEnvDur acepta duraciones Go y además "Nd" para días.
func getEnvDur(key string) (time.Duration, bool, error) {
	s, ok := getEnvStr(key)
	if !ok {
		return 0, false, nil
	}
	d, err := ParseDuration(s)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s: %v", ErrNotConfigured, key, err)
	}
	return d, true, nil
}

func getEnvCSV(key string) ([]string, bool) {
	s, ok := getEnvStr(key)
	if !ok {
		return nil, false
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, true
}

// ParseDuration extiende time.ParseDuration con el sufijo "d".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("duración inválida %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// applyEnvOverrides: pisa el YAML con variables de entorno.
func (c *Config) applyEnvOverrides() error {
	str := map[string]*string{
		"APP_ENV":            &c.App.Env,
		"LOG_LEVEL":          &c.App.LogLevel,
		"HTTP_ADDR":          &c.Server.Addr,
		"STORAGE_DRIVER":     &c.Storage.Driver,
		"STORAGE_DSN":        &c.Storage.DSN,
		"STORAGE_DATABASE":   &c.Storage.Database,
		"CACHE_KIND":         &c.Cache.Kind,
		"REDIS_ADDR":         &c.Cache.Redis.Addr,
		"REDIS_PREFIX":       &c.Cache.Redis.Prefix,
		"JWT_ISSUER":         &c.JWT.Issuer,
		"JWT_ACCESS_SECRET":  &c.JWT.AccessSecret,
		"JWT_REFRESH_SECRET": &c.JWT.RefreshSecret,
		"COOKIE_NAME":        &c.Auth.Cookie.Name,
		"COOKIE_DOMAIN":      &c.Auth.Cookie.Domain,
		"TOTP_ISSUER":        &c.Auth.TOTPIssuer,
		"FLE_MASTERKEY_B64":  &c.Security.FLEMasterKey,
		"PASSWORD_HASH":      &c.Security.PasswordHash,
		"PASSWORD_BLACKLIST": &c.Security.BlacklistPath,
	}
	for k, dst := range str {
		if v, ok := getEnvStr(k); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	c.App.Env = strings.ToLower(c.App.Env)
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	c.Cache.Kind = strings.ToLower(c.Cache.Kind)

	if v, ok := getEnvCSV("CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}
	if v, ok := getEnvCSV("TRUSTED_PROXIES"); ok {
		c.Server.TrustedProxies = v
	}

	ints := map[string]*int{
		"REDIS_DB":          &c.Cache.Redis.DB,
		"BCRYPT_COST":       &c.Security.BcryptCost,
		"RATE_LIMIT_MAX":    &c.Rate.Max,
		"LOCKOUT_THRESHOLD": &c.Auth.LockoutThreshold,
	}
	for k, dst := range ints {
		v, ok, err := getEnvInt(k)
		if err != nil {
			return err
		}
		if ok {
			*dst = v
		}
	}
	for k, dst := range map[string]*int32{"STORE_MAX_CONNS": &c.Storage.MaxConns, "STORE_MIN_CONNS": &c.Storage.MinConns} {
		v, ok, err := getEnvInt(k)
		if err != nil {
			return err
		}
		if ok {
			*dst = int32(v)
		}
	}

	durs := map[string]*time.Duration{
		"STORE_OP_TIMEOUT":  &c.Storage.OpTimeout,
		"JWT_ACCESS_TTL":    &c.JWT.AccessTTL,
		"JWT_REFRESH_TTL":   &c.JWT.RefreshTTL,
		"LOCKOUT_WINDOW":    &c.Auth.LockoutWindow,
		"RATE_LIMIT_WINDOW": &c.Rate.Window,
		"SWEEP_INTERVAL":    &c.Jobs.SweepInterval,
		"ATTEMPT_RETENTION": &c.Jobs.AttemptRetention,
	}
	for k, dst := range durs {
		v, ok, err := getEnvDur(k)
		if err != nil {
			return err
		}
		if ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"RATE_LIMIT_ENABLED": &c.Rate.Enabled,
		"COOKIE_SECURE":      &c.Auth.Cookie.Secure,
	}
	for k, dst := range bools {
		v, ok, err := getEnvBool(k)
		if err != nil {
			return err
		}
		if ok {
			*dst = v
		}
	}
	return nil
}

// InferDriver deduce el driver a partir del esquema del DSN.
func InferDriver(dsn string) string {
	d := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(d, "mongodb://"), strings.HasPrefix(d, "mongodb+srv://"):
		return DriverMongo
	case strings.HasPrefix(d, "postgres://"), strings.HasPrefix(d, "postgresql://"), strings.Contains(d, "host="):
		return DriverPostgres
	case d == "memory", strings.HasPrefix(d, "memory://"):
		return DriverMemory
	}
	return ""
}

// IsDev reporta si el entorno permite atajos de desarrollo.
func (c *Config) IsDev() bool { return c.App.Env == EnvDev || c.App.Env == EnvTest }

// Validate junta todas las fallas obligatorias en un único error que envuelve
// ErrNotConfigured.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	if len(c.JWT.AccessSecret) < minSecretLen {
		add("JWT_ACCESS_SECRET debe tener al menos %d bytes", minSecretLen)
	}
	if len(c.JWT.RefreshSecret) < minSecretLen {
		add("JWT_REFRESH_SECRET debe tener al menos %d bytes", minSecretLen)
	}
	if c.JWT.AccessSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		add("JWT_ACCESS_SECRET y JWT_REFRESH_SECRET deben ser distintos")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		add("JWT TTLs deben ser positivos")
	}
	if _, err := fieldcipher.DecodeMasterKey(c.Security.FLEMasterKey); err != nil {
		add("FLE_MASTERKEY_B64: %v", err)
	}
	if c.Auth.Cookie.Name == "" {
		add("COOKIE_NAME requerido")
	}
	if c.Auth.Cookie.Domain == "" {
		add("COOKIE_DOMAIN requerido")
	}
	if _, err := password.NewHasher(c.Security.PasswordHash, c.Security.BcryptCost); err != nil {
		add("PASSWORD_HASH/BCRYPT_COST: %v", err)
	}
	if c.Storage.OpTimeout <= 0 {
		add("STORE_OP_TIMEOUT debe ser positivo")
	}
	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			add("REDIS_ADDR requerido con CACHE_KIND=redis")
		}
	default:
		add("CACHE_KIND %q no soportado", c.Cache.Kind)
	}
	if c.Rate.Enabled && (c.Rate.Max <= 0 || c.Rate.Window <= 0) {
		add("RATE_LIMIT_MAX/RATE_LIMIT_WINDOW deben ser positivos")
	}
	if c.Jobs.SweepInterval <= 0 || c.Jobs.AttemptRetention <= 0 {
		add("SWEEP_INTERVAL/ATTEMPT_RETENTION deben ser positivos")
	}
	if err := c.validateStorage(); err != nil {
		add("%v", err)
	}
	for _, cidr := range c.Server.TrustedProxies {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			add("TRUSTED_PROXIES: CIDR inválido %q", cidr)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrNotConfigured, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateStorage() error {
	dsn := strings.TrimSpace(c.Storage.DSN)
	switch c.Storage.Driver {
	case DriverMongo:
		return validateMongoDSN(dsn)
	case DriverPostgres:
		return validatePostgresDSN(dsn)
	case DriverMemory:
		if !c.IsDev() {
			return fmt.Errorf("STORAGE_DRIVER=memory solo en APP_ENV dev|test")
		}
		return nil
	case "":
		if dsn == "" {
			return fmt.Errorf("STORAGE_DSN requerido")
		}
		return fmt.Errorf("STORAGE_DSN: no se pudo inferir el driver")
	default:
		return fmt.Errorf("STORAGE_DRIVER %q no soportado", c.Storage.Driver)
	}
}

// validateMongoDSN exige TLS, retryWrites=true y w=majority. mongodb+srv
// habilita TLS salvo tls=false explícito.
func validateMongoDSN(dsn string) error {
	u, err := url.Parse(dsn)
	if err != nil || (u.Scheme != "mongodb" && u.Scheme != "mongodb+srv") {
		return fmt.Errorf("STORAGE_DSN: URI mongo inválida")
	}
	q := lowerQuery(u.Query())
	tls := q["tls"] == "true" || q["ssl"] == "true"
	if u.Scheme == "mongodb+srv" && q["tls"] != "false" && q["ssl"] != "false" {
		tls = true
	}
	var missing []string
	if !tls {
		missing = append(missing, "tls=true")
	}
	if q["retrywrites"] != "true" {
		missing = append(missing, "retryWrites=true")
	}
	if q["w"] != "majority" {
		missing = append(missing, "w=majority")
	}
	if len(missing) > 0 {
		return fmt.Errorf("STORAGE_DSN mongo requiere %s", strings.Join(missing, ", "))
	}
	return nil
}

// validatePostgresDSN acepta URL o key=value.
func validatePostgresDSN(dsn string) error {
	var sslmode string
	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return fmt.Errorf("STORAGE_DSN: URL postgres inválida")
		}
		sslmode = u.Query().Get("sslmode")
	} else {
		for _, kv := range strings.Fields(dsn) {
			if k, v, ok := strings.Cut(kv, "="); ok && strings.EqualFold(k, "sslmode") {
				sslmode = v
			}
		}
	}
	switch strings.ToLower(sslmode) {
	case "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("STORAGE_DSN postgres requiere sslmode=require|verify-ca|verify-full")
	}

	flat := strings.ToLower(dsn)
	if dec, err := url.QueryUnescape(flat); err == nil {
		flat = dec
	}
	flat = strings.ReplaceAll(flat, " ", "")
	if strings.Contains(flat, "synchronous_commit=off") {
		return fmt.Errorf("STORAGE_DSN postgres no admite synchronous_commit=off")
	}
	return nil
}

func lowerQuery(v url.Values) map[string]string {
	out := make(map[string]string, len(v))
	for k, vals := range v {
		if len(vals) > 0 {
			out[strings.ToLower(k)] = strings.ToLower(strings.TrimSpace(vals[len(vals)-1]))
		}
	}
	return out
}
