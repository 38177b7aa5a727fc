package profile

import "github.com/MrWong99/typofix/pkg/types"

// electron describes an application whose accessibility tree neither reports
// reliable values nor accepts direct writes.
type electron struct {
	appID string
	name  string
}

// electronApps are Electron-based (or similarly opaque) applications. Names
// are matched exactly so that, e.g., "Code" does not capture "Xcode".
var electronApps = []electron{
	{"com.microsoft.VSCode", "Visual Studio Code"},
	{"com.microsoft.VSCodeInsiders", "Code"},
	{"com.github.atom", "Atom"},
	{"com.hnc.Discord", "Discord"},
	{"com.tinyspeck.slackmacgap", "Slack"},
	{"net.whatsapp.WhatsApp", "WhatsApp"},
	{"ru.keepcoder.Telegram", "Telegram"},
	{"org.whispersystems.signal-desktop", "Signal"},
	{"com.spotify.client", "Spotify"},
	{"com.figma.Desktop", "Figma"},
	{"notion.id", "Notion"},
	{"md.obsidian", "Obsidian"},
	{"com.postmanlabs.mac", "Postman"},
	{"com.insomnia.app", "Insomnia"},
}

// BuiltinEntries returns the profiles shipped with typofix.
func BuiltinEntries() []Entry {
	clip := types.ClipboardSimulatedPaste
	no := false
	out := make([]Entry, 0, len(electronApps)+1)
	for _, a := range electronApps {
		out = append(out, Entry{
			AppID:               a.appID,
			Name:                a.name,
			PreferredStrategy:   &clip,
			SupportsDirectRead:  &no,
			SupportsDirectWrite: &no,
		})
	}
	// Unbranded Electron shells report names such as "Electron Helper".
	out = append(out, Entry{
		NameContains:        "electron",
		PreferredStrategy:   &clip,
		SupportsDirectRead:  &no,
		SupportsDirectWrite: &no,
	})
	return out
}
