package domain

// Mention is a post that tags the bot account.
type Mention struct {
	ID     int64
	Handle string
	Text   string
}

// Reply is a message the bot posts under a mention.
type Reply struct {
	EventID int64
	Handle  string
	Message string
	Images  []string
}

// CommandKind enumerates the commands a mention can carry.
type CommandKind string

const (
	CommandUnrecognized CommandKind = "unrecognized"
	CommandBareAddress  CommandKind = "bare_address"
	CommandBind         CommandKind = "bind"
	CommandBless        CommandKind = "bless"
)

// Command is the parsed form of a mention. Address is set for
// CommandBareAddress and CommandBind, Target for CommandBless.
type Command struct {
	Kind    CommandKind
	Address string
	Target  string
}
