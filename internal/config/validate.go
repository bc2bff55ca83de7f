package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidConfig 配置非法，启动时直接失败
var ErrInvalidConfig = errors.New("invalid configuration")

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ParseWeekday 解析星期名称（大小写不敏感）
func ParseWeekday(name string) (time.Weekday, error) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: unknown weekday %q", ErrInvalidConfig, name)
	}
	return d, nil
}

// ParseMonthDay 解析 MM-DD 格式的节假日
func ParseMonthDay(s string) (time.Month, int, error) {
	var m, d int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d-%d", &m, &d); err != nil {
		return 0, 0, fmt.Errorf("%w: holiday %q must be MM-DD", ErrInvalidConfig, s)
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return 0, 0, fmt.Errorf("%w: holiday %q out of range", ErrInvalidConfig, s)
	}
	return time.Month(m), d, nil
}

// Validate 校验业务相关配置
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.BusinessHours.problems()...)

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("%w: unsupported database driver %q", ErrInvalidConfig, c.Database.Driver))
	}

	if c.SLA.DefaultHours <= 0 {
		errs = append(errs, fmt.Errorf("%w: sla.default_hours must be positive", ErrInvalidConfig))
	}
	if c.SLA.AtRiskRatio <= 0 || c.SLA.AtRiskRatio >= 1 {
		errs = append(errs, fmt.Errorf("%w: sla.at_risk_ratio must be in (0,1)", ErrInvalidConfig))
	}
	for priority, row := range c.SLA.Matrix {
		for category, hours := range row {
			if hours <= 0 {
				errs = append(errs, fmt.Errorf("%w: sla.matrix.%s.%s must be positive", ErrInvalidConfig, priority, category))
			}
		}
	}

	if math.Abs(c.Priority.Weights.Sum()-1) > 0.001 {
		errs = append(errs, fmt.Errorf("%w: priority weights must sum to 1, got %.3f", ErrInvalidConfig, c.Priority.Weights.Sum()))
	}

	if c.Monitor.Enabled && strings.TrimSpace(c.Monitor.Schedule) == "" {
		errs = append(errs, fmt.Errorf("%w: monitor.schedule is required when the monitor is enabled", ErrInvalidConfig))
	}

	if c.Notification.Telegram.Enabled && (c.Notification.Telegram.BotToken == "" || c.Notification.Telegram.ChatID == "") {
		errs = append(errs, fmt.Errorf("%w: telegram notification needs bot_token and chat_id", ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// Validate 校验工作时间配置
func (b BusinessHoursConfig) Validate() error {
	return errors.Join(b.problems()...)
}

func (b BusinessHoursConfig) problems() []error {
	var errs []error
	if b.StartHour < 0 || b.StartHour > 23 || b.EndHour < 1 || b.EndHour > 24 || b.StartHour >= b.EndHour {
		errs = append(errs, fmt.Errorf("%w: working window [%d,%d) is invalid", ErrInvalidConfig, b.StartHour, b.EndHour))
	}
	if len(b.WorkingDays) == 0 {
		errs = append(errs, fmt.Errorf("%w: working_days must not be empty", ErrInvalidConfig))
	}
	for _, d := range b.WorkingDays {
		if _, err := ParseWeekday(d); err != nil {
			errs = append(errs, err)
		}
	}
	for _, h := range b.Holidays {
		if _, _, err := ParseMonthDay(h); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := time.LoadLocation(b.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, b.Timezone, err))
	}
	return errs
}
