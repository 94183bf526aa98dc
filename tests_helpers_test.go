// tests_helpers_test.go

package gourdianguard

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Test Helper Functions

const (
	testAccessSecret  = "test-access-secret-32-bytes-long-123456"
	testRefreshSecret = "test-refresh-secret-32-bytes-long-12345"
)

// testClock is a manually advanced clock shared by a Service and its store.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() Config {
	cfg := DefaultConfig(testAccessSecret, testRefreshSecret)
	cfg.Issuer = "gourdianguard-test"
	cfg.AccessToken.TTL = time.Hour
	cfg.RefreshToken.TTL = 24 * time.Hour
	cfg.Guards = map[string]GuardConfig{
		"user":  {IdentityField: "id", MaxSessions: Unlimited},
		"admin": {IdentityField: "admin_id", MaxSessions: SingleSession},
	}
	return cfg
}

func testRedisStore(t *testing.T, opts ...StoreOption) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewRedisSessionStore(client, opts...)
	require.NoError(t, err)
	return store, mr
}

func testGormDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

func testGormStore(t *testing.T, opts ...StoreOption) *GormSessionStore {
	t.Helper()

	store, err := NewGormSessionStore(testGormDB(t), opts...)
	require.NoError(t, err)
	return store
}

func testMemoryStore(t *testing.T, opts ...StoreOption) *MemorySessionStore {
	t.Helper()

	store := NewMemorySessionStore(time.Hour, opts...)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// storeFactories builds every SessionStore implementation against clock.
func storeFactories() map[string]func(t *testing.T, clock *testClock) SessionStore {
	return map[string]func(t *testing.T, clock *testClock) SessionStore{
		"Memory": func(t *testing.T, clock *testClock) SessionStore {
			return testMemoryStore(t, WithStoreClock(clock.Now))
		},
		"Redis": func(t *testing.T, clock *testClock) SessionStore {
			store, _ := testRedisStore(t, WithStoreClock(clock.Now))
			return store
		},
		"Gorm": func(t *testing.T, clock *testClock) SessionStore {
			return testGormStore(t, WithStoreClock(clock.Now))
		},
	}
}

func testService(t *testing.T, cfg Config, store SessionStore, clock *testClock, opts ...Option) *Service {
	t.Helper()

	service, err := NewService(cfg, store, append([]Option{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	return service
}

func testRecord(clientType string, issuedAt time.Time, accessTTL, refreshTTL time.Duration) SessionRecord {
	return SessionRecord{
		ID:              uuid.New(),
		AccessToken:     "access-" + uuid.NewString(),
		RefreshToken:    "refresh-" + uuid.NewString(),
		ClientType:      clientType,
		AccessIssuedAt:  issuedAt,
		AccessTTL:       accessTTL,
		RefreshIssuedAt: issuedAt,
		RefreshTTL:      refreshTTL,
	}
}

func mustSessions(t *testing.T, store SessionStore, guard, identity string) []SessionRecord {
	t.Helper()

	records, err := store.Sessions(context.Background(), guard, identity)
	require.NoError(t, err)
	return records
}

func generateTempRSAPair(t *testing.T) (privatePath, publicPath string) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()
	privateBlock := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)}
	privatePath = filepath.Join(dir, "private.pem")
	require.NoError(t, os.WriteFile(privatePath, pem.EncodeToMemory(privateBlock), 0600))

	publicBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	require.NoError(t, err)
	publicPath = filepath.Join(dir, "public.pem")
	require.NoError(t, os.WriteFile(publicPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicBytes}), 0644))

	return privatePath, publicPath
}

func generateTempECDSAPair(t *testing.T) (privatePath, publicPath string) {
	t.Helper()

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	dir := t.TempDir()
	privateBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	require.NoError(t, err)
	privatePath = filepath.Join(dir, "ec_private.pem")
	require.NoError(t, os.WriteFile(privatePath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privateBytes}), 0600))

	publicBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	require.NoError(t, err)
	publicPath = filepath.Join(dir, "ec_public.pem")
	require.NoError(t, os.WriteFile(publicPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicBytes}), 0644))

	return privatePath, publicPath
}

func generateTempCertificate(t *testing.T) (privatePath, publicPath string) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test Org"},
		},
		NotBefore: time.Now(),
		NotAfter:  time.Now().Add(time.Hour),
	}

	certBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	require.NoError(t, err)

	dir := t.TempDir()
	privatePath = filepath.Join(dir, "cert_private.pem")
	require.NoError(t, os.WriteFile(privatePath, pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)}), 0600))

	publicPath = filepath.Join(dir, "cert_public.pem")
	require.NoError(t, os.WriteFile(publicPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certBytes}), 0644))

	return privatePath, publicPath
}
