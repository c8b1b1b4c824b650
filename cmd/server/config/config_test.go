package config

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadHTTPDefaults(t *testing.T) {
	t.Setenv("API_KEY", "")

	cfg, err := LoadHTTP()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.APIKey != "" || cfg.RateLimitBurst != 0 || cfg.MaxBodyBytes != 8<<20 {
		t.Fatalf("unexpected http cfg: %+v", cfg)
	}
}

func TestLoadHTTP(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":8181")
	t.Setenv("API_KEY", "secret")
	t.Setenv("HTTP_RATE_LIMIT_INTERVAL", "5ms")
	t.Setenv("HTTP_RATE_LIMIT_BURST", "10")

	cfg, err := LoadHTTP()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != ":8181" || cfg.APIKey != "secret" || cfg.RateLimitInterval != 5*time.Millisecond || cfg.RateLimitBurst != 10 {
		t.Fatalf("unexpected http cfg: %+v", cfg)
	}

	t.Setenv("HTTP_RATE_LIMIT_BURST", "-1")
	if _, err := LoadHTTP(); err == nil {
		t.Fatalf("expected negative burst error")
	}
}

func TestLoadGRPC(t *testing.T) {
	t.Setenv("GRPC_RATE_LIMIT_INTERVAL", "5ms")
	t.Setenv("GRPC_RATE_LIMIT_BURST", "10")
	t.Setenv("APP_ENV", "production")

	cfg, err := LoadGRPC()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != ":50051" || cfg.RateLimitInterval != 5*time.Millisecond || cfg.RateLimitBurst != 10 {
		t.Fatalf("unexpected grpc cfg: %+v", cfg)
	}
	if cfg.EnableReflection {
		t.Fatalf("reflection must be off in production")
	}

	t.Setenv("GRPC_RATE_LIMIT_INTERVAL", "soon")
	if _, err := LoadGRPC(); err == nil {
		t.Fatalf("expected bad interval error")
	}
}

func TestLoadObservability(t *testing.T) {
	t.Setenv("OBS_ADDR", ":9999")

	cfg, err := LoadObservability()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Fatalf("unexpected observability addr: %+v", cfg)
	}
}

func TestLoadLogging(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "TEXT")

	cfg, err := LoadLogging()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Level != slog.LevelDebug || cfg.Format != "text" {
		t.Fatalf("unexpected logging cfg: %+v", cfg)
	}

	t.Setenv("LOG_FORMAT", "xml")
	if _, err := LoadLogging(); err == nil {
		t.Fatalf("expected unsupported format error")
	}
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "loud")
	if _, err := LoadLogging(); err == nil {
		t.Fatalf("expected bad level error")
	}
}

func TestLoadLedger(t *testing.T) {
	cfg, err := LoadLedger()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend != BackendSQLite || cfg.StaleAfter != 0 || cfg.SQLitePath == "" || cfg.JournalPath == "" {
		t.Fatalf("unexpected default ledger cfg: %+v", cfg)
	}

	t.Setenv("LEDGER_BACKEND", "Postgres")
	if _, err := LoadLedger(); err == nil {
		t.Fatalf("expected DATABASE_URL to be required for postgres")
	}

	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/db")
	t.Setenv("LEDGER_STALE_AFTER", "15m")
	cfg, err = LoadLedger()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend != BackendPostgres || cfg.DatabaseURL == "" || cfg.StaleAfter != 15*time.Minute {
		t.Fatalf("unexpected ledger cfg: %+v", cfg)
	}

	t.Setenv("LEDGER_BACKEND", "redis")
	if _, err := LoadLedger(); err == nil {
		t.Fatalf("redis is not a ledger backend")
	}
}

func TestLoadMasterData(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/db")

	cfg, err := LoadMasterData()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend != BackendPostgres {
		t.Fatalf("expected backend to follow the ledger, got %+v", cfg)
	}

	t.Setenv("MASTERDATA_BACKEND", "redis")
	t.Setenv("MASTERDATA_SEED_FILE", "seed.yaml")
	cfg, err = LoadMasterData()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend != BackendRedis || cfg.SeedFile != "seed.yaml" {
		t.Fatalf("unexpected master data cfg: %+v", cfg)
	}

	t.Setenv("MASTERDATA_BACKEND", "mongo")
	if _, err := LoadMasterData(); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DEFAULT_CUSTOMER_CODE", "C001")
	t.Setenv("DEFAULT_SALESPERSON_CODE", "")
	if _, err := LoadDefaults(); err == nil {
		t.Fatalf("expected missing salesperson error")
	}

	t.Setenv("DEFAULT_SALESPERSON_CODE", "7")
	t.Setenv("DEFAULT_WAREHOUSE_CODE", " WH1 ")
	d, err := LoadDefaults()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.CustomerCode != "C001" || d.SalespersonCode != "7" || d.WarehouseCode != "WH1" {
		t.Fatalf("unexpected defaults: %+v", d)
	}
}

func TestLoadGateway(t *testing.T) {
	if _, err := LoadGateway(); err == nil {
		t.Fatalf("expected ERP_GRPC_TARGET to be required")
	}

	t.Setenv("ERP_GRPC_TARGET", "dns:///erp:50052")
	t.Setenv("ERP_CALL_TIMEOUT", "12s")
	t.Setenv("ERP_BREAKER_MAX_FAILURES", "3")
	cfg, err := LoadGateway()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CallTimeout != 12*time.Second || cfg.BreakerMaxFailures != 3 || cfg.BreakerResetTimeout != 30*time.Second {
		t.Fatalf("unexpected gateway cfg: %+v", cfg)
	}
}

func TestLoadKafka(t *testing.T) {
	cfg, err := LoadKafka()
	if err != nil || cfg.Enabled() {
		t.Fatalf("expected kafka disabled by default, got %+v err %v", cfg, err)
	}

	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	if _, err := LoadKafka(); err == nil {
		t.Fatalf("expected KAFKA_TOPIC to be required")
	}

	t.Setenv("KAFKA_TOPIC", "orders.batches")
	cfg, err = LoadKafka()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Brokers) != 2 || cfg.Brokers[1] != "k2:9092" || cfg.GroupID != "orderbridge" {
		t.Fatalf("unexpected kafka cfg: %+v", cfg)
	}
}

func TestLoadRedis(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("REDIS_DIAL_TIMEOUT", "3s")
	t.Setenv("REDIS_READ_TIMEOUT", "4s")
	t.Setenv("REDIS_WRITE_TIMEOUT", "5s")
	t.Setenv("REDIS_POOL_SIZE", "9")
	t.Setenv("REDIS_MIN_IDLE_CONNS", "2")
	t.Setenv("REDIS_MAX_RETRIES", "3")
	t.Setenv("REDIS_OTEL", "true")

	cfg, err := LoadRedis()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.URL != "redis://localhost:6379/0" {
		t.Fatalf("unexpected redis url: %s", cfg.URL)
	}
	if cfg.HealthcheckTimeout != 2*time.Second {
		t.Fatalf("unexpected healthcheck timeout: %v", cfg.HealthcheckTimeout)
	}
	if cfg.DialTimeout == nil || *cfg.DialTimeout != 3*time.Second {
		t.Fatalf("unexpected dial timeout: %v", cfg.DialTimeout)
	}
	if cfg.WriteTimeout == nil || *cfg.WriteTimeout != 5*time.Second {
		t.Fatalf("unexpected write timeout: %v", cfg.WriteTimeout)
	}
	if cfg.PoolSize == nil || *cfg.PoolSize != 9 || cfg.MinIdleConns == nil || *cfg.MinIdleConns != 2 {
		t.Fatalf("unexpected pool settings: %+v", cfg)
	}
	if cfg.MaxRetries == nil || *cfg.MaxRetries != 3 || !cfg.EnableOTel {
		t.Fatalf("unexpected retry/otel settings: %+v", cfg)
	}
}

func TestLoadRedis_MissingURL(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	if _, err := LoadRedis(); err == nil {
		t.Fatalf("expected missing url error")
	}
}

func TestLoadRedisTLS_NoSettingsReturnsNil(t *testing.T) {
	if cfg, err := loadRedisTLSFromEnv(); err != nil || cfg != nil {
		t.Fatalf("expected nil tls config, got %#v err %v", cfg, err)
	}
}

func TestLoadRedisTLS_Errors(t *testing.T) {
	tests := map[string]map[string]string{
		"cert without key": {"REDIS_TLS_CERT_FILE": "cert"},
		"bad insecure":     {"REDIS_TLS_INSECURE_SKIP_VERIFY": "notabool"},
		"missing ca":       {"REDIS_TLS_CA_FILE": "/no/such/file"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := loadRedisTLSFromEnv(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadRedisTLS_LoadsFiles(t *testing.T) {
	certFile, keyFile, caFile := writeTempTLSFiles(t)

	t.Setenv("REDIS_TLS_CERT_FILE", certFile)
	t.Setenv("REDIS_TLS_KEY_FILE", keyFile)
	t.Setenv("REDIS_TLS_CA_FILE", caFile)
	t.Setenv("REDIS_TLS_INSECURE_SKIP_VERIFY", "true")

	cfg, err := loadRedisTLSFromEnv()
	if err != nil {
		t.Fatalf("load tls config: %v", err)
	}
	if cfg == nil || len(cfg.Certificates) == 0 || cfg.RootCAs == nil || !cfg.InsecureSkipVerify {
		t.Fatalf("unexpected tls config: %#v", cfg)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_OPT_DUR", "-1ms")
	if _, err := optionalDuration("X_OPT_DUR"); err == nil {
		t.Fatalf("expected negative duration error")
	}
	t.Setenv("X_OPT_INT", "-1")
	if _, err := optionalInt("X_OPT_INT"); err == nil {
		t.Fatalf("expected negative int error")
	}
	t.Setenv("X_OPT_BOOL", "notbool")
	if _, err := optionalBool("X_OPT_BOOL"); err == nil {
		t.Fatalf("expected bool parse error")
	}
	t.Setenv("X_INT64", "notint")
	if _, err := int64Or("X_INT64", 1); err == nil {
		t.Fatalf("expected int64 parse error")
	}
	if v, err := intOr("X_UNSET_INT", 7); err != nil || v != 7 {
		t.Fatalf("expected default 7, got %d err %v", v, err)
	}
	if v, err := durationOr("X_UNSET_DUR", time.Second); err != nil || v != time.Second {
		t.Fatalf("expected default 1s, got %v err %v", v, err)
	}
}

func writeTempTLSFiles(t *testing.T) (string, string, string) {
	t.Helper()

	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privKey.PublicKey, privKey)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}

	dir := t.TempDir()
	certFile := filepath.Join(dir, "redis_cert.pem")
	keyFile := filepath.Join(dir, "redis_key.pem")
	caFile := filepath.Join(dir, "redis_ca.pem")

	writePEMFile(t, certFile, "CERTIFICATE", certDER, 0644)
	writePEMFile(t, caFile, "CERTIFICATE", certDER, 0644)
	writePEMFile(t, keyFile, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(privKey), 0600)

	return certFile, keyFile, caFile
}

func writePEMFile(t *testing.T, path, blockType string, derBytes []byte, perm os.FileMode) {
	t.Helper()

	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: derBytes})
	if err := os.WriteFile(path, data, perm); err != nil {
		t.Fatalf("write pem: %v", err)
	}
}
