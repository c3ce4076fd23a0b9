package models

import "strings"

// CommandType enumerates the chat commands answered over WhatsApp.
type CommandType string

const (
	CommandBalance   CommandType = "balance"
	CommandCustomers CommandType = "customers"
	CommandReport    CommandType = "report"
	CommandHelp      CommandType = "help"
	CommandUnknown   CommandType = "unknown"
)

// Command represents a parsed instruction extracted from WhatsApp text.
type Command struct {
	Type CommandType
	Raw  string
	Args []string
}

// Query joins the command arguments back into a free-text search string.
func (c Command) Query() string {
	return strings.Join(c.Args, " ")
}

// ParseCommand derives a Command instance from free-form text messages.
func ParseCommand(message string) Command {
	tokens := strings.Fields(strings.TrimSpace(message))
	cmd := Command{Raw: message, Type: CommandUnknown}
	if len(tokens) == 0 {
		return cmd
	}

	switch head := strings.ToLower(strings.TrimPrefix(tokens[0], "/")); head {
	case string(CommandBalance), "رصيد":
		cmd.Type = CommandBalance
	case string(CommandCustomers), "عملاء":
		cmd.Type = CommandCustomers
	case string(CommandReport), "تقرير":
		cmd.Type = CommandReport
	case string(CommandHelp):
		cmd.Type = CommandHelp
	}

	if len(tokens) > 1 {
		cmd.Args = tokens[1:]
	}

	return cmd
}
