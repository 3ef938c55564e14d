package accountusage

import "fmt"

// dialect captures the few SQL differences between a live Snowflake account
// and a local postgres mirror of the usage views.
type dialect interface {
	// usageView qualifies an ACCOUNT_USAGE view name.
	usageView(name string) string
	// localView qualifies a SNOWFLAKE.LOCAL view name.
	localView(name string) string
	// sinceDays builds the "within the last N days" predicate for a
	// timestamp column.
	sinceDays(column string, days int) string
	// editionQuery returns the current-account edition lookup.
	editionQuery() string
	// supportsShow reports whether SHOW/DESCRIBE statements work.
	supportsShow() bool
}

type snowflakeDialect struct{}

func (snowflakeDialect) usageView(name string) string {
	return "snowflake.account_usage." + name
}

func (snowflakeDialect) localView(name string) string {
	return "snowflake.local." + name
}

func (snowflakeDialect) sinceDays(column string, days int) string {
	return fmt.Sprintf("%s >= DATEADD(DAY, -%d, CURRENT_DATE)", column, days)
}

func (snowflakeDialect) editionQuery() string {
	return `SELECT edition FROM snowflake.organization_usage.accounts WHERE account_name = CURRENT_ACCOUNT_NAME()`
}

func (snowflakeDialect) supportsShow() bool { return true }

// postgresDialect targets a development mirror where the usage views are
// loaded into an account_usage schema.
type postgresDialect struct{}

func (postgresDialect) usageView(name string) string {
	return "account_usage." + name
}

func (postgresDialect) localView(name string) string {
	return "account_usage." + name
}

func (postgresDialect) sinceDays(column string, days int) string {
	return fmt.Sprintf("%s >= CURRENT_DATE - INTERVAL '%d days'", column, days)
}

func (postgresDialect) editionQuery() string {
	return `SELECT edition FROM account_usage.accounts LIMIT 1`
}

func (postgresDialect) supportsShow() bool { return false }
