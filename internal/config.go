package internal

import (
	"fmt"
	"time"
)

type Config struct {
	Host              string        `env:"HOST,required=true"`
	Port              int           `env:"PORT,required=true"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel          string        `env:"LOG_LEVEL,required=true"`
	CharReplacement   string        `env:"CHARACTER_REPLACEMENT,required=true"`
	LimitMessages     *int          `env:"LIMIT_MESSAGES"`
	GracePeriod       time.Duration `env:"GRACE_PERIOD,required=true"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL,required=true"`
	MetricInterval    time.Duration `env:"METRIC_INTERVAL,required=true"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
