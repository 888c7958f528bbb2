package domain

type CommandType string

const (
	CommandViewsCount  CommandType = "viewscount"
	CommandProgressBar CommandType = "progressbar"
	CommandRefresh     CommandType = "refresh"
	CommandStatus      CommandType = "status"
	CommandClearCache  CommandType = "clearcache"
	CommandHelp        CommandType = "help"
	CommandUnknown     CommandType = "unknown"
)

func (c CommandType) String() string {
	return string(c)
}

func (c CommandType) IsValid() bool {
	switch c {
	case CommandViewsCount, CommandProgressBar, CommandRefresh, CommandStatus,
		CommandClearCache, CommandHelp, CommandUnknown:
		return true
	default:
		return false
	}
}
