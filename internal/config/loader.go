package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures environment driven configuration values for the reminder
// service.
type Config struct {
	HTTPPort        int
	SQLiteDSN       string
	Timezone        string
	ReminderOffsets []int
	SMTPAddr        string
	SMTPFrom        string
}

// Load parses configuration values from the current process environment.
//
// The loader applies sensible defaults for optional fields while validating
// provided values and accumulating every problem into one error.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:        8080,
		SQLiteDSN:       "file:study.db?_pragma=foreign_keys(1)",
		Timezone:        "Asia/Seoul",
		ReminderOffsets: []int{30, 5},
		SMTPFrom:        "reminders@studyapp.local",
	}

	invalid := make([]string, 0, 2)

	if portValue := strings.TrimSpace(os.Getenv("STUDY_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "STUDY_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("STUDY_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if tz := strings.TrimSpace(os.Getenv("STUDY_TIMEZONE")); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			invalid = append(invalid, "STUDY_TIMEZONE")
		} else {
			cfg.Timezone = tz
		}
	}

	if offsetsValue := strings.TrimSpace(os.Getenv("STUDY_REMINDER_OFFSETS")); offsetsValue != "" {
		offsets, err := parseOffsets(offsetsValue)
		if err != nil {
			invalid = append(invalid, "STUDY_REMINDER_OFFSETS")
		} else {
			cfg.ReminderOffsets = offsets
		}
	}

	if addr := strings.TrimSpace(os.Getenv("STUDY_SMTP_ADDR")); addr != "" {
		cfg.SMTPAddr = addr
	}
	if from := strings.TrimSpace(os.Getenv("STUDY_SMTP_FROM")); from != "" {
		cfg.SMTPFrom = from
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func parseOffsets(value string) ([]int, error) {
	parts := strings.Split(value, ",")
	offsets := make([]int, 0, len(parts))
	for _, part := range parts {
		offset, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || offset <= 0 {
			return nil, fmt.Errorf("invalid offset %q", part)
		}
		offsets = append(offsets, offset)
	}
	if len(offsets) == 0 {
		return nil, fmt.Errorf("no offsets provided")
	}
	return offsets, nil
}
