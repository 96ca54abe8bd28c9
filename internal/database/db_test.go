package database

import (
	"strings"
	"testing"

	"github.com/clinicride/escort-booking/internal/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.Config{DBUser: "app", DBPass: "s3cret", DBHost: "db", DBPort: "3306", DBName: "escort"})
	for _, want := range []string{"app:s3cret@tcp(db:3306)/escort", "parseTime=true", "charset=utf8mb4"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}
}
