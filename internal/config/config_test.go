package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validServer() Server {
	return Server{
		Port:          "8080",
		CacheTTL:      10 * time.Minute,
		SessionIdle:   time.Hour,
		DefaultStart:  "2020-01-01",
		ForecastRate:  0.5,
		ForecastBurst: 2,
	}
}

func TestValidate_Server(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Server)
		wantErr string
	}{
		{name: "valid", mutate: func(*Server) {}},
		{name: "non-numeric port", mutate: func(s *Server) { s.Port = "http" }, wantErr: "Port"},
		{name: "bad start date", mutate: func(s *Server) { s.DefaultStart = "01/01/2020" }, wantErr: "DefaultStart"},
		{name: "zero forecast rate", mutate: func(s *Server) { s.ForecastRate = 0 }, wantErr: "ForecastRate"},
		{name: "zero burst", mutate: func(s *Server) { s.ForecastBurst = 0 }, wantErr: "ForecastBurst"},
		{name: "short session idle", mutate: func(s *Server) { s.SessionIdle = time.Second }, wantErr: "SessionIdle"},
		{name: "import without interval", mutate: func(s *Server) { s.ImportSource = "ftp://ftp.example.com/h.csv" }, wantErr: "ImportInterval"},
		{name: "import with interval", mutate: func(s *Server) {
			s.ImportSource = "ftp://ftp.example.com/h.csv"
			s.ImportInterval = 24 * time.Hour
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validServer()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error mentioning %s", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %s", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_Database(t *testing.T) {
	if err := Validate(Database{Driver: "postgres", DSN: "postgres://localhost/weather"}); err != nil {
		t.Errorf("postgres: %v", err)
	}
	if err := Validate(Database{Driver: "mysql", DSN: "x"}); err == nil || !strings.Contains(err.Error(), "Driver") {
		t.Errorf("mysql should fail on Driver, got %v", err)
	}
	if err := Validate(Database{Driver: "sqlite"}); err == nil || !strings.Contains(err.Error(), "DSN") {
		t.Errorf("empty DSN should fail, got %v", err)
	}
}

func TestStartDate(t *testing.T) {
	s := validServer()
	s.DefaultStart = "2019-06-15"
	if got := s.StartDate(); got != time.Date(2019, 6, 15, 0, 0, 0, 0, time.UTC) {
		t.Errorf("StartDate = %v", got)
	}
}

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("CLIMADASH_TEST_VALUE=from-dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CLIMADASH_TEST_VALUE", "")
	os.Unsetenv("CLIMADASH_TEST_VALUE")

	LoadEnv(path)
	if got := os.Getenv("CLIMADASH_TEST_VALUE"); got != "from-dotenv" {
		t.Errorf("CLIMADASH_TEST_VALUE = %q", got)
	}

	LoadEnv(filepath.Join(t.TempDir(), "missing.env"))
}
