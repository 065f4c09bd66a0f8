package cron

const (
	JOB_NULL = iota
	JOB_CONSISTENCY_AUDIT
	JOB_QUEUE_WATCH
)

const (
	SCHEDULE_EVERY_DAY  = "0 0 0 * * ?"
	SCHEDULE_EVERY_HOUR = "0 0 * * * ?"
	SCHEDULE_EVERY_MIN  = "0 * * * * ?"
)
