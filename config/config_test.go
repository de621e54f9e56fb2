package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"24h", 24 * time.Hour, false},
		{"90m", 90 * time.Minute, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"2W", 14 * 24 * time.Hour, false},
		{"d", 0, true},
		{"tomorrow", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseDuration(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"development allows defaults", Config{DBDriver: "mysql", AppEnv: "development"}, ""},
		{"unknown driver", Config{DBDriver: "oracle", AppEnv: "development"}, `unsupported DB_DRIVER "oracle"`},
		{"production needs db password", Config{DBDriver: "postgres", AppEnv: "production", JWTSecret: "0123456789abcdef"}, "DB_PASSWORD"},
		{"production needs long jwt secret", Config{DBDriver: "mysql", AppEnv: "Production", DBPassword: "pw", JWTSecret: "short"}, "JWT_SECRET too short"},
		{"production ok", Config{DBDriver: "mysql", AppEnv: "production", DBPassword: "pw", JWTSecret: "0123456789abcdef"}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(&tc.cfg)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestGetDSN(t *testing.T) {
	c := Config{DBDriver: "mysql", DBHost: "db", DBPort: "3306", DBUser: "app", DBPassword: "pw", DBName: "shortstacks"}
	assert.Equal(t, "app:pw@tcp(db:3306)/shortstacks?charset=utf8mb4&parseTime=True&loc=Local", c.GetDSN())

	c.DBDriver = "postgres"
	c.DBPort = "5432"
	c.Timezone = "Asia/Bangkok"
	assert.Equal(t, "host=db port=5432 user=app password=pw dbname=shortstacks sslmode=disable TimeZone=Asia/Bangkok", c.GetDSN())
}

func TestLocation(t *testing.T) {
	assert.Equal(t, time.UTC, (&Config{}).Location())
	assert.Equal(t, time.UTC, (&Config{Timezone: "Mars/Olympus"}).Location())
	assert.Equal(t, "America/Chicago", (&Config{Timezone: "America/Chicago"}).Location().String())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("USE_SSM", "false")
	t.Setenv("APP_ENV", "development")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("JWT_EXPIRES_IN", "7d")
	t.Setenv("MAX_FILE_SIZE", "2048")
	t.Setenv("USE_REDIS_NOTIFICATIONS", "TRUE")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 7*24*time.Hour, cfg.JWTExpiresIn)
	assert.Equal(t, int64(2048), cfg.MaxFileSize)
	assert.True(t, cfg.UseRedisNotifications)
	assert.True(t, cfg.IsDevelopment())

	t.Setenv("MAX_FILE_SIZE", "lots")
	_, err = Load()
	assert.ErrorContains(t, err, "MAX_FILE_SIZE")
}
