package db

import "testing"

func TestDataSourceName(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  Config{DSN: "app:pw@tcp(db:3306)/ops", Host: "ignored"},
			want: "app:pw@tcp(db:3306)/ops",
		},
		{
			name: "built from fields",
			cfg:  Config{Host: "10.0.0.5", Port: "3307", User: "vortex", Password: "s3cret", Database: "vortexl2"},
			want: "vortex:s3cret@tcp(10.0.0.5:3307)/vortexl2?charset=utf8mb4&parseTime=True&loc=Local",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.dataSourceName(); got != tt.want {
				t.Fatalf("dataSourceName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"VORTEX_MYSQL_DSN", "VORTEX_MYSQL_HOST", "VORTEX_MYSQL_PORT", "VORTEX_MYSQL_USER", "VORTEX_MYSQL_PASS", "VORTEX_MYSQL_DB"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	if cfg.Host != "127.0.0.1" || cfg.Port != "3306" || cfg.User != "root" || cfg.Database != "vortexl2" {
		t.Fatalf("defaults = %+v", cfg)
	}

	t.Setenv("VORTEX_MYSQL_HOST", "db.internal")
	t.Setenv("VORTEX_MYSQL_DB", "accounts")
	cfg = FromEnv()
	if cfg.Host != "db.internal" || cfg.Database != "accounts" {
		t.Fatalf("overrides = %+v", cfg)
	}
}
