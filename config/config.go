package config

import "github.com/spf13/viper"

// Circulation and fee rules.
const (
	LoanPeriodDays = 14
	MaxActiveLoans = 5

	DailyRateFirstWeek = 0.50
	DailyRateAfterWeek = 1.00
	MaxLateFee         = 15.00

	MaxPaymentAmount = 1000.00
)

type Config struct {
	Port                 string
	SQLitePath           string
	CORSOrigin           string
	WithDailyOverdueScan bool
	OverdueScanSchedule  string
}

func Load() Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("PORT", "5000")
	v.SetDefault("SQLITE_PATH", "./data/library.db")
	v.SetDefault("CORS_ORIGIN", "http://localhost:5173")
	v.SetDefault("WITH_DAILY_OVERDUE_SCAN", false)
	v.SetDefault("OVERDUE_SCAN_SCHEDULE", "0 0 * * *")

	return Config{
		Port:                 v.GetString("PORT"),
		SQLitePath:           v.GetString("SQLITE_PATH"),
		CORSOrigin:           v.GetString("CORS_ORIGIN"),
		WithDailyOverdueScan: v.GetBool("WITH_DAILY_OVERDUE_SCAN"),
		OverdueScanSchedule:  v.GetString("OVERDUE_SCAN_SCHEDULE"),
	}
}
