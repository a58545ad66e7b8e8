package server

import "strings"

// ParseConnect parses a login-screen command into (command, user, password).
// Handles: "connect name password", "create name password", quoted names.
func ParseConnect(msg string) (command, user, password string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "", "", ""
	}

	// Split into command and rest
	parts := strings.SplitN(msg, " ", 2)
	command = strings.ToLower(parts[0])
	if len(parts) < 2 {
		return command, "", ""
	}

	rest := strings.TrimSpace(parts[1])
	if rest == "" {
		return command, "", ""
	}

	// Handle quoted names (for names with spaces)
	if rest[0] == '"' {
		end := strings.Index(rest[1:], "\"")
		if end >= 0 {
			user = rest[1 : end+1]
			rest = strings.TrimSpace(rest[end+2:])
			password = rest
			return
		}
	}

	// Standard: name password
	parts = strings.SplitN(rest, " ", 2)
	user = parts[0]
	if len(parts) > 1 {
		password = strings.TrimSpace(parts[1])
	}
	return
}

// ValidateName reports whether a name is acceptable for a new player,
// returning a reason when it is not.
func ValidateName(name string) (string, bool) {
	if len(name) < 2 {
		return "That name is too short.", false
	}
	if len(name) > 24 {
		return "That name is too long.", false
	}
	for _, ch := range name {
		if ch == '"' || ch == ';' || ch == ',' || ch < 32 {
			return "That name contains illegal characters.", false
		}
	}
	if name[0] == '#' || name[0] == '@' {
		return "That name contains illegal characters.", false
	}
	switch strings.ToLower(name) {
	case "me", "here", "guest", "someone", "nobody":
		return "That name is not allowed.", false
	}
	return "", true
}

// WelcomeText is the default welcome screen shown to new connections.
const WelcomeText = `
  #####  #   #  ####   #####  ####   #   #   ###   #  #   #####
  #      ## ##  #   #  #      #   #  #   #  #   #  # #    #
  ####   # # #  ####   ####   ####   # # #  #####  ##     ####
  #      #   #  #   #  #      #  #   ## ##  #   #  # #    #
  #####  #   #  ####   #####  #   #  #   #  #   #  #  #   #####

            The embers never die.  They only sleep.

"connect <name> <password>" to connect to your existing character.
"create <name> <password>" to create a new character.
"WHO" to see who is connected.
"QUIT" to disconnect.

`
