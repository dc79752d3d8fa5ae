package bot

import "strings"

// Action is what an invocation asks the bot to do, whether typed as a command or pressed as a button.
type Action int

const (
	ActionNone Action = iota
	ActionStart
	ActionLink
	ActionStats
	ActionLeaderboard
)

// Callback payloads of the inline buttons.
const (
	CallbackLink        = "act:link"
	CallbackStats       = "act:stats"
	CallbackLeaderboard = "act:top"
)

var commandActions = map[string]Action{
	"start":       ActionStart,
	"help":        ActionStart,
	"link":        ActionLink,
	"mystats":     ActionStats,
	"leaderboard": ActionLeaderboard,
}

var callbackActions = map[string]Action{
	CallbackLink:        ActionLink,
	CallbackStats:       ActionStats,
	CallbackLeaderboard: ActionLeaderboard,
}

func (a Action) String() string {
	switch a {
	case ActionStart:
		return "start"
	case ActionLink:
		return "link"
	case ActionStats:
		return "stats"
	case ActionLeaderboard:
		return "leaderboard"
	default:
		return "none"
	}
}

// ParseCommand maps message text such as "/link" or "/mystats@refbot extra" to an Action.
func ParseCommand(text string) Action {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ActionNone
	}

	name := strings.Fields(text[1:])
	if len(name) == 0 {
		return ActionNone
	}
	command := strings.ToLower(name[0])
	if at := strings.IndexByte(command, '@'); at >= 0 {
		command = command[:at]
	}
	return commandActions[command]
}

// ParseCallback maps inline button data to an Action.
func ParseCallback(data string) Action {
	return callbackActions[strings.TrimSpace(data)]
}
