package flags

const (
	errFailedToConnect = "failed-to-open-sql-connection"
)
